package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/OCAP2/replicator/internal/config"
	"github.com/OCAP2/replicator/internal/dispatcher"
	"github.com/OCAP2/replicator/internal/monitor"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Script string
	Status string
}

// ScriptEvent is one line of a run script. Payload is passed as is for
// edits; Data carries hex encoded state packets for object:data.
type ScriptEvent struct {
	Command string          `json:"command"`
	Source  string          `json:"source,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Data    string          `json:"data,omitempty"`
	DelayMs int             `json:"delayMs,omitempty"`
}

// RunResult summarizes a run.
type RunResult struct {
	Restored int              `json:"restored"`
	Events   int              `json:"events"`
	Failed   int              `json:"failed"`
	Objects  int              `json:"objects"`
	Packets  int              `json:"packets"`
	Bytes    int              `json:"bytes"`
	Metrics  map[string]int64 `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the engine from an event script",
		Long: `Restore objects from the configured storage, then play a script of events
against them while the simulation ticks in the background. Each script line
is a JSON object:

  {"command": "object:edit", "payload": {"id": "...", "properties": {...}}}
  {"command": "object:data", "source": "...", "data": "<hex>"}
  {"command": "peer:clock", "source": "...", "payload": {"skew": 1500}, "delayMs": 100}

Examples:
  replicator run --script events.jsonl
  replicator run --script - < events.jsonl`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "event script, - for stdin (required)")
	_ = cmd.MarkFlagRequired("script")
	cmd.Flags().StringVar(&opts.Status, "status", "", "file rewritten with the engine status every second")

	return cmd
}

func runScript(opts *RunOptions, cmd *cobra.Command) error {
	in := cmd.InOrStdin()
	if opts.Script != "-" {
		f, err := os.Open(opts.Script)
		if err != nil {
			return fmt.Errorf("failed to open script: %w", err)
		}
		defer f.Close()
		in = f
	}

	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result RunResult
	if result.Restored, err = a.manager.Restore(); err != nil {
		return err
	}

	status := monitor.NewService(monitor.Dependencies{
		WorkerManager: a.manager,
		Logger:        a.logger,
		StatusPath:    opts.Status,
	})
	if opts.Status != "" {
		if err := status.Start(); err != nil {
			return err
		}
		defer func() {
			status.Stop()
			if err := status.WriteStatus(); err != nil {
				a.logger.Warn("Failed to write final status", "error", err)
			}
		}()
	}

	tickCtx, cancelTicks := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.manager.Run(tickCtx, tickInterval())
	}()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() && ctx.Err() == nil {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		e, err := scriptEvent(scanner.Bytes())
		if err != nil {
			cancelTicks()
			<-done
			return fmt.Errorf("script line %d: %w", line, err)
		}
		if _, err := a.dispatcher.Dispatch(e); err != nil {
			a.logger.Warn("Event failed", "line", line, "command", e.Command, "error", err)
			result.Failed++
		}
		result.Events++
	}
	cancelTicks()
	<-done
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	if _, err := a.manager.Tick(context.Background()); err != nil {
		a.logger.Error("Final tick failed", "error", err)
	}
	for _, p := range a.manager.EncodeBatch(0) {
		result.Packets++
		result.Bytes += len(p)
	}
	result.Objects = a.manager.Objects().Len()
	result.Metrics = a.metricSums(context.Background())

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, result)
	}
	fmt.Fprintf(out, "Restored %d objects, played %d events (%d failed)\n", result.Restored, result.Events, result.Failed)
	fmt.Fprintf(out, "%d objects, encoded %d packets, %d bytes\n", result.Objects, result.Packets, result.Bytes)
	writeCounters(out, "Metrics:", result.Metrics)
	return nil
}

// scriptEvent turns a script line into a dispatcher event and sleeps for its
// delay.
func scriptEvent(line []byte) (dispatcher.Event, error) {
	var se ScriptEvent
	if err := json.Unmarshal(line, &se); err != nil {
		return dispatcher.Event{}, err
	}
	if se.Command == "" {
		return dispatcher.Event{}, fmt.Errorf("missing command")
	}

	e := dispatcher.Event{Command: se.Command, Payload: se.Payload}
	if se.Source != "" {
		src, err := uuid.Parse(se.Source)
		if err != nil {
			return dispatcher.Event{}, fmt.Errorf("invalid source: %w", err)
		}
		e.Source = src
	}
	if se.Data != "" {
		data, err := hex.DecodeString(se.Data)
		if err != nil {
			return dispatcher.Event{}, fmt.Errorf("invalid data: %w", err)
		}
		e.Payload = data
	}
	if se.DelayMs > 0 {
		time.Sleep(time.Duration(se.DelayMs) * time.Millisecond)
	}
	e.Timestamp = time.Now()
	return e, nil
}

func tickInterval() time.Duration {
	if d := config.GetReplicationConfig().TickInterval; d > 0 {
		return d
	}
	return 16 * time.Millisecond
}
