package monitor

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/replicator/internal/worker"
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	WorkerManager *worker.Manager
	Logger        *slog.Logger
	// StatusPath is rewritten with the current status every Interval.
	StatusPath string
	Interval   time.Duration
}

// Status is a point in time view of the engine.
type Status struct {
	Time           time.Time        `json:"time"`
	Session        string           `json:"session"`
	Objects        int              `json:"objects"`
	Peers          int              `json:"peers"`
	PendingWrites  int              `json:"pendingWrites"`
	LastTick       worker.TickStats `json:"lastTick"`
	LastTickMicros int64            `json:"lastTickMicros"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current engine status
func (s *Service) GetStatus() Status {
	m := s.deps.WorkerManager
	tick, took := m.LastTick()
	return Status{
		Time:           time.Now(),
		Session:        m.Peers().SessionID().String(),
		Objects:        m.Objects().Len(),
		Peers:          m.Peers().Peers(),
		PendingWrites:  m.PendingWrites(),
		LastTick:       tick,
		LastTickMicros: took.Microseconds(),
	}
}

// WriteStatus replaces the status file with the current status.
func (s *Service) WriteStatus() error {
	b, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.deps.StatusPath, append(b, '\n'), 0644)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "path", s.deps.StatusPath)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if s.deps.StatusPath == "" {
					logger.Info("Status", "status", s.GetStatus())
					continue
				}
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()
	<-done
}
