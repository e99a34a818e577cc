package entity

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/replicator/internal/action"
)

const instrumentationName = "github.com/OCAP2/replicator/internal/entity"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type instruments struct {
	decoded  metric.Int64Counter
	ignored  metric.Int64Counter
	encoded  metric.Int64Counter
	rejected metric.Int64Counter
}

var (
	instOnce sync.Once
	inst     instruments
)

// metrics returns the package instruments, created from the global meter
// on first use. Instrument creation errors leave a no-op counter behind.
func metrics() *instruments {
	instOnce.Do(func() {
		m := meter()
		inst.decoded, _ = m.Int64Counter("entity.packets.decoded",
			metric.WithDescription("State packets accepted"))
		inst.ignored, _ = m.Int64Counter("entity.packets.ignored",
			metric.WithDescription("State packets whose contents were ignored"))
		inst.encoded, _ = m.Int64Counter("entity.bytes.encoded",
			metric.WithDescription("Bytes written by the state encoder"),
			metric.WithUnit("By"))
		inst.rejected, _ = m.Int64Counter("entity.actions.rejected",
			metric.WithDescription("Action changes rejected by the ledger"))
	})
	return &inst
}

func recordDecoded() {
	if c := metrics().decoded; c != nil {
		c.Add(context.Background(), 1)
	}
}

func recordIgnored(reason string) {
	if c := metrics().ignored; c != nil {
		c.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func recordEncoded(n int) {
	if c := metrics().encoded; c != nil && n > 0 {
		c.Add(context.Background(), int64(n))
	}
}

func recordActionRejected(err error) {
	c := metrics().rejected
	if c == nil {
		return
	}
	reason := "other"
	switch {
	case errors.Is(err, action.ErrBlobOverflow):
		reason = "overflow"
	case errors.Is(err, action.ErrOwnerMismatch):
		reason = "owner_mismatch"
	case errors.Is(err, action.ErrDuplicateAction):
		reason = "duplicate"
	case errors.Is(err, action.ErrMalformedBlob):
		reason = "malformed"
	}
	c.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}
