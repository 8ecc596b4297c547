package monitoring

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

func TestMetricsAdapter(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	a := NewMetricsAdapter(m)

	a.RecordPrediction(30, "high", 0.7)
	a.RecordPrediction(30, "high", 0.65)
	a.RecordLedgerNotification("failure", 20*time.Millisecond)
	a.RecordCacheAccess("redis", true)
	a.RecordCacheAccess("redis", false)
	a.RecordCovenantCheck("breached")
	a.SetModelVersion("v1-seed42")
	a.SetModelVersion("v2")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Predictions.WithLabelValues("30", "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerNotifications.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheAccess.WithLabelValues("redis", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheAccess.WithLabelValues("redis", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CovenantChecks.WithLabelValues("breached")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ModelInfo), "only the active version is exported")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelInfo.WithLabelValues("v2")))
}

func TestMetrics_HTTP(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ActiveRequestsInc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsInFlight))
	m.ActiveRequestsDec()
	m.ObserveHTTPRequest("/api/v1/loans/:loan_id", "GET", 404, 3*time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/v1/loans/:loan_id", "GET", "404")))
}

func TestZapLogger_Correlation(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLoggerFromCore(core).WithComponent("PredictionService")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	ctx = context.WithValue(ctx, constants.ContextKeyRequestID, "req-1")

	log.Warn(ctx, "ledger down", logger.String("loan_id", "loan-1"), logger.Int("attempt", 2))
	log.Error(context.Background(), "boom", stderrors.New("kaput"))

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0]
	assert.Equal(t, "ledger down", first.Message)
	fields := first.ContextMap()
	assert.Equal(t, "PredictionService", fields["component"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "loan-1", fields["loan_id"])

	second := logs.All()[1]
	assert.Equal(t, "kaput", second.ContextMap()["error"])
	_, hasTrace := second.ContextMap()["trace_id"]
	assert.False(t, hasTrace)
}

func TestNewZapLogger_Levels(t *testing.T) {
	log, err := NewZapLogger(&config.LogConfig{Level: "not-a-level", Format: "console", OutputPath: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestTracingManager_Disabled(t *testing.T) {
	tm, err := NewTracingManager(&config.TracingConfig{}, logger.NewNoopLogger())
	require.NoError(t, err)

	ctx, span := tm.StartSpan(context.Background(), "op")
	defer span.End()
	assert.Empty(t, TraceID(ctx), "no-op provider produces invalid span contexts")
	assert.NoError(t, tm.Shutdown(context.Background()))
}
