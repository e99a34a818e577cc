package logging

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DispatcherLogger adapts zerolog.Logger to the dispatcher.Logger interface.
// Event sources are logged as "peer", with local edits shown as "local".
type DispatcherLogger struct {
	logger zerolog.Logger
}

// NewDispatcherLogger creates a DispatcherLogger tagged with the dispatcher
// component.
func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger.With().Str("component", "dispatcher").Logger()}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	write(l.logger.Debug(), msg, keysAndValues)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	write(l.logger.Info(), msg, keysAndValues)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	write(l.logger.Error(), msg, keysAndValues)
}

// write adds key-value pairs as typed fields. Non-string keys and a trailing
// key without a value are dropped.
func write(e *zerolog.Event, msg string, keysAndValues []any) {
	if e == nil {
		return
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		switch v := keysAndValues[i+1].(type) {
		case uuid.UUID:
			if key == "source" {
				key = "peer"
			}
			if v == uuid.Nil {
				e.Str(key, "local")
			} else {
				e.Str(key, v.String())
			}
		case string:
			e.Str(key, v)
		case int:
			e.Int(key, v)
		case time.Duration:
			e.Dur(key, v)
		case error:
			e.AnErr(key, v)
		default:
			e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
