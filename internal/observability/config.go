package observability

import (
	"strings"

	"github.com/smallbiznis/procurelink/internal/config"
	"github.com/spf13/viper"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Config holds observability settings. OTEL_*, LOG_* and METRICS_PATH
// variables override what the application config implies.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	MetricsPath string
}

func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "procurelink"
	}
	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", ProtocolGRPC)
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)
	v.SetDefault("METRICS_PATH", "/metrics")

	environment := strings.TrimSpace(v.GetString("DEPLOYMENT_ENV"))
	v.SetDefault("OTEL_ENABLED", !isDevEnv(environment))

	protocol := v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL")
	if traces := strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          environment,
		Version:              strings.TrimSpace(v.GetString("SERVICE_VERSION")),
		LogLevel:             strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		LogFormat:            strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
		OtelEnabled:          v.GetBool("OTEL_ENABLED"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelExporterProtocol: normalizeProtocol(protocol),
		OtelSamplingRatio:    clampRatio(v.GetFloat64("OTEL_SAMPLING_RATIO")),
		MetricsPath:          metricsPath(v.GetString("METRICS_PATH")),
	}
}

func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	return isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// normalizeProtocol folds the OTLP protocol spellings onto grpc or http.
func normalizeProtocol(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "http", "http/protobuf", "http/json":
		return ProtocolHTTP
	default:
		return ProtocolGRPC
	}
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio <= 0:
		return 0.1
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}

// metricsPath must not collide with the /api group.
func metricsPath(raw string) string {
	path := strings.TrimSpace(raw)
	if path == "" || !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "/api") || path == "/health" {
		return "/metrics"
	}
	return path
}
