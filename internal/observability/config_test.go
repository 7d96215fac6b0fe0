package observability

import (
	"testing"

	"github.com/smallbiznis/procurelink/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{AppName: "procurelink", Environment: "development", AppVersion: "1.2.3", OTLPEndpoint: "collector:4317"})

	assert.Equal(t, "procurelink", cfg.ServiceName)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, ProtocolGRPC, cfg.OtelExporterProtocol)
	assert.Equal(t, "/metrics", cfg.MetricsPath)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DEPLOYMENT_ENV", "production")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "http/protobuf")
	t.Setenv("OTEL_SAMPLING_RATIO", "5")
	t.Setenv("METRICS_PATH", "/api/metrics")

	cfg := LoadConfig(config.Config{Environment: "development"})

	assert.Equal(t, "procurelink", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, ProtocolHTTP, cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.Equal(t, "/metrics", cfg.MetricsPath)
	assert.False(t, cfg.Debug())
}
