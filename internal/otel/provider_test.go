package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))

	rm, err := p.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, Sums(rm))
}

func TestNew_EnabledWithoutOutputs(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "replicator"})
	assert.Error(t, err)
}

func TestNew_FileLogs(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "replicator",
		BatchTimeout: time.Second,
		LogWriter:    &buf,
	})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())

	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProvider_MetricsCollect(t *testing.T) {
	p, err := New(Config{Enabled: true, ServiceName: "replicator", Metrics: true})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	counter, err := p.Meter("test").Int64Counter("entity.packets.decoded")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)
	counter.Add(context.Background(), 3)

	rm, err := p.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), Sums(rm)["entity.packets.decoded"])
}
