package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes the integration layer instruments exported over OTLP.
type Metrics struct {
	eventsPublished metric.Int64Counter
	ruleExecutions  metric.Int64Counter
	actionFailures  metric.Int64Counter
	operations      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "procurelink"
	}
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(name)

	eventsPublished, err := meter.Int64Counter("procurelink_events_published_total")
	if err != nil {
		return nil, err
	}
	ruleExecutions, err := meter.Int64Counter("procurelink_rule_executions_total")
	if err != nil {
		return nil, err
	}
	actionFailures, err := meter.Int64Counter("procurelink_action_failures_total")
	if err != nil {
		return nil, err
	}
	operations, err := meter.Int64Counter("procurelink_crossmodule_operations_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		eventsPublished: eventsPublished,
		ruleExecutions:  ruleExecutions,
		actionFailures:  actionFailures,
		operations:      operations,
	}, nil
}

// Nop returns instruments bound to a no-op provider.
func Nop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordEventPublished(ctx context.Context, eventType, sourceModule string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("source_module", strings.TrimSpace(sourceModule)),
	)
	m.eventsPublished.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRuleExecution counts one matched rule run; ruleID is bounded by the rule set.
func (m *Metrics) RecordRuleExecution(ctx context.Context, ruleID string, failedActions int) {
	if m == nil {
		return
	}
	outcome := "success"
	if failedActions > 0 {
		outcome = "partial_failure"
	}
	attrs := FilterAttributes(
		attribute.String("rule_id", strings.TrimSpace(ruleID)),
		attribute.String("outcome", outcome),
	)
	m.ruleExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordActionFailure(ctx context.Context, actionType, targetModule string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("action_type", strings.TrimSpace(actionType)),
		attribute.String("target_module", strings.TrimSpace(targetModule)),
	)
	m.actionFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordOperation(ctx context.Context, operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", outcome),
	)
	m.operations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"event_type":    {},
	"source_module": {},
	"target_module": {},
	"rule_id":       {},
	"action_type":   {},
	"operation":     {},
	"outcome":       {},
	"route":         {},
	"method":        {},
	"status_code":   {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
