package observability

import (
	"testing"

	"github.com/smallbiznis/edupoints/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigProductionDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:  "production",
		AppVersion:   "1.2.3",
		OTLPEndpoint: "collector:4317",
		Telemetry:    config.TelemetryConfig{OtelEnabled: true, SamplingRatio: -1},
	})

	assert.Equal(t, "edupoints", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.True(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigDevelopmentSamplesEverything(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:     "points",
		Environment: "development",
		Telemetry:   config.TelemetryConfig{SamplingRatio: -1},
	})

	assert.Equal(t, "points", cfg.ServiceName)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigKeepsExplicitTelemetry(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("ENVIRONMENT", "production")

	cfg := LoadConfig(config.Load())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.False(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}
