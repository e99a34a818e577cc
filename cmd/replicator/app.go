package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/OCAP2/replicator/internal/config"
	"github.com/OCAP2/replicator/internal/dispatcher"
	"github.com/OCAP2/replicator/internal/influx"
	"github.com/OCAP2/replicator/internal/logging"
	intOtel "github.com/OCAP2/replicator/internal/otel"
	"github.com/OCAP2/replicator/internal/peer"
	"github.com/OCAP2/replicator/internal/storage"
	"github.com/OCAP2/replicator/internal/worker"
)

// app is everything a long running command needs, wired from the config
// file.
type app struct {
	startedAt time.Time
	logs      *logging.SlogManager
	logger    *slog.Logger
	logFiles  []*os.File
	otel      *intOtel.Provider

	backend      storage.Backend
	closeBackend func() error
	influx       *influx.Manager

	peers      *peer.Context
	dispatcher *dispatcher.Dispatcher
	manager    *worker.Manager
}

func newApp(opts *RootOptions) (_ *app, err error) {
	a := &app{startedAt: time.Now()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := config.Load(opts.ConfigDir); err != nil {
		return nil, err
	}

	level := config.GetString("logLevel")
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}

	logsDir := config.GetString("logsDir")
	var logFile, otelFile *os.File
	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs dir: %w", err)
		}
		if logFile, err = a.openLog(logging.LogFilePath(logsDir, logging.ServiceName, a.startedAt)); err != nil {
			return nil, err
		}
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled && logsDir != "" {
		if otelFile, err = a.openLog(logging.LogFilePath(logsDir, logging.ServiceName+".otel", a.startedAt)); err != nil {
			return nil, err
		}
	}
	ic := intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
		Metrics:      otelCfg.Metrics,
	}
	if otelFile != nil {
		ic.LogWriter = otelFile
	}
	if a.otel, err = intOtel.New(ic); err != nil {
		return nil, fmt.Errorf("failed to set up OpenTelemetry: %w", err)
	}

	repl := config.GetReplicationConfig()
	sessionID := uuid.Nil
	if repl.SessionID != "" {
		if sessionID, err = uuid.Parse(repl.SessionID); err != nil {
			return nil, fmt.Errorf("invalid sessionId %q: %w", repl.SessionID, err)
		}
	}
	a.peers = peer.NewContext(sessionID)

	a.logs = logging.NewSlogManager()
	a.logs.Track(a.peers, nil)
	if logFile != nil {
		a.logs.Setup(logFile, level, a.otel.LoggerProvider())
	} else {
		a.logs.Setup(nil, level, a.otel.LoggerProvider())
	}
	a.logger = a.logs.Logger()

	zlog := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	if logFile != nil {
		zlog = zerolog.New(logFile).With().Timestamp().Logger()
	}

	a.backend, a.closeBackend, err = storage.NewBackend(config.GetStorageConfig(), a.logger, zlog)
	if err != nil {
		return nil, err
	}
	if err := a.backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	var poses worker.PoseRecorder
	if viper.GetBool("influx.enabled") {
		backup := filepath.Join(logsDir, fmt.Sprintf("poses_%s.lp.gz", a.startedAt.Format("20060102_150405")))
		a.influx = influx.NewManager(zlog, backup)
		if err := a.influx.Connect(); err != nil {
			a.logger.Warn("Pose recording disabled", "error", err)
		} else {
			poses = a.influx
		}
	}

	if a.dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(zlog)); err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	a.manager = worker.NewManager(worker.Dependencies{
		Peers:  a.peers,
		Logger: a.logger,
		Poses:  poses,
		Config: repl,
	}, a.backend)
	a.manager.RegisterHandlers(a.dispatcher)
	a.logs.Track(a.peers, a.manager.Objects())

	a.logger.Info("Replicator ready",
		"version", CurrentVersion,
		"storage", config.GetStorageConfig().Type,
		"poses", poses != nil)
	return a, nil
}

func (a *app) openLog(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	a.logFiles = append(a.logFiles, f)
	return f, nil
}

// Close stops everything newApp started, in reverse order.
func (a *app) Close() error {
	var errs []error
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
		if e, ok := a.backend.(storage.Exporter); ok && e.GetExportedFilePath() != "" && a.logger != nil {
			a.logger.Info("Snapshot exported", "path", e.GetExportedFilePath())
		}
	}
	if a.closeBackend != nil {
		if err := a.closeBackend(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("influx: %w", err))
		}
	}
	if a.otel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if a.logs != nil {
			if err := a.logs.Flush(ctx); err != nil {
				errs = append(errs, fmt.Errorf("log flush: %w", err))
			}
		}
		if err := a.otel.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("otel: %w", err))
		}
	}
	for _, f := range a.logFiles {
		_ = f.Close()
	}
	a.logFiles = nil
	return errors.Join(errs...)
}

// metricSums returns the engine counters when metrics are enabled.
func (a *app) metricSums(ctx context.Context) map[string]int64 {
	if a.otel == nil || !a.otel.Enabled() {
		return nil
	}
	rm, err := a.otel.Collect(ctx)
	if err != nil {
		a.logger.Warn("Failed to collect metrics", "error", err)
		return nil
	}
	return intOtel.Sums(rm)
}
