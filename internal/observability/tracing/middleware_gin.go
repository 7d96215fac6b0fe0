package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/procurelink/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Route params and gin context keys copied onto the request span.
var spanParams = map[string]attribute.Key{
	"id":   "procurelink.record_id",
	"type": "procurelink.reference_type",
}

var spanContextKeys = map[string]attribute.Key{
	"event_type": "procurelink.event_type",
}

// GinMiddleware instruments inbound HTTP requests. Paths in skip (health
// checks, the metrics scrape) are not traced.
func GinMiddleware(skip ...string) gin.HandlerFunc {
	tracer := otel.Tracer("procurelink/http")
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+strings.ToUpper(c.Request.Method), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		span.SetName("HTTP " + strings.ToUpper(c.Request.Method) + " " + route)
		span.SetAttributes(SafeAttributes(requestAttributes(c, route, start)...)...)

		if c.Writer.Status() >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
	}
}

func requestAttributes(c *gin.Context, route string, start time.Time) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", c.Writer.Status()),
		attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
	}
	for param, key := range spanParams {
		if value := c.Param(param); value != "" {
			attrs = append(attrs, key.String(value))
		}
	}
	for name, key := range spanContextKeys {
		if value := c.GetString(name); value != "" {
			attrs = append(attrs, key.String(value))
		}
	}
	if kind, id := obscontext.ActorFromContext(c.Request.Context()); kind != "" {
		attrs = append(attrs,
			attribute.String("procurelink.actor_type", kind),
			attribute.String("procurelink.actor_id", id),
		)
	}
	return attrs
}
