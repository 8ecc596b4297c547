package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMetrics is the slice of monitoring.Metrics the HTTP layer records into.
type HTTPMetrics interface {
	ActiveRequestsInc()
	ActiveRequestsDec()
	ObserveHTTPRequest(path, method string, status int, d time.Duration)
}

// Observability starts a server span per request, continuing any incoming
// W3C trace context, and records request count, latency and in-flight gauges.
// Metrics are labelled with the route template so loan ids never become labels.
// Observability 为每个请求启动服务端 span，并记录请求数量、延迟和并发指标。
func Observability(tracer trace.Tracer, metrics HTTPMetrics) gin.HandlerFunc {
	propagator := otel.GetTextMapPropagator()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "not_found"
		}

		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		if metrics != nil {
			metrics.ActiveRequestsInc()
			defer metrics.ActiveRequestsDec()
		}

		c.Next()

		status := c.Writer.Status()
		if metrics != nil {
			metrics.ObserveHTTPRequest(path, c.Request.Method, status, time.Since(start))
		}

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", path),
			attribute.Int("http.status_code", status),
			attribute.String("http.client_ip", c.ClientIP()),
		)
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last())
		}
	}
}
