package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/intentd/internal/config"
)

func TestNew_DisabledIsNoOp(t *testing.T) {
	tel, err := New(context.Background(), config.ObservabilityConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, tel.Degraded())

	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
}

func TestNew_EnabledInitializesProviders(t *testing.T) {
	// The OTLP gRPC exporters dial lazily, so construction succeeds even
	// without a collector listening.
	tel, err := New(context.Background(), config.ObservabilityConfig{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		ServiceName:    "intentd-test",
		ServiceVersion: "0.0.0",
		Insecure:       true,
		SamplingRate:   1.0,
		ExportInterval: config.Duration(time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, tel.Degraded())
	require.NotNil(t, tel.tracerProvider)
	require.NotNil(t, tel.meterProvider)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = tel.Shutdown(ctx)
}

func TestShutdown_NilReceiver(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.False(t, tel.Degraded())
}
