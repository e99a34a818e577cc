package logging

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// SessionSource reports the local participant's session id.
type SessionSource interface {
	SessionID() uuid.UUID
}

// ObjectCounter reports how many objects the engine tracks.
type ObjectCounter interface {
	Len() int
}

// engineState is what records are tagged with. Either field may be nil.
type engineState struct {
	session SessionSource
	objects ObjectCounter
}

// engineHandler tags every record with the local session and the number of
// tracked objects, read when the record is handled.
type engineHandler struct {
	inner slog.Handler
	state *atomic.Pointer[engineState]
}

func (h *engineHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *engineHandler) Handle(ctx context.Context, r slog.Record) error {
	if st := h.state.Load(); st != nil {
		if st.session != nil {
			if id := st.session.SessionID(); id != uuid.Nil {
				r.AddAttrs(slog.String("session", id.String()))
			}
		}
		if st.objects != nil {
			r.AddAttrs(slog.Int("objects", st.objects.Len()))
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *engineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &engineHandler{inner: h.inner.WithAttrs(attrs), state: h.state}
}

func (h *engineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &engineHandler{inner: h.inner.WithGroup(name), state: h.state}
}
