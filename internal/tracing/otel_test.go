package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/teamsbot/internal/config"
)

func TestSetupNoopWhenDisabled(t *testing.T) {
	for _, cfg := range []config.TelemetryConfig{
		{},
		{Enabled: true},
		{Enabled: false, Endpoint: "http://localhost:4318"},
	} {
		shutdown, err := Setup(context.Background(), cfg)
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	}
}

func TestSetupCreatesProvider(t *testing.T) {
	// Non-routable address so no export actually happens.
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "http://192.0.2.1:4318",
		ServiceName: "teamsbot-test",
	})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions(config.TelemetryConfig{Endpoint: "https://otel.example.com:4318"}), 1)
	assert.Len(t, exporterOptions(config.TelemetryConfig{Endpoint: "localhost:4318", Insecure: true}), 2)
	assert.Len(t, exporterOptions(config.TelemetryConfig{
		Endpoint: "localhost:4318",
		Headers:  map[string]string{"authorization": "Bearer x"},
	}), 2)
}
