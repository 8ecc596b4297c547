// Package monitoring holds the production logger, Prometheus metrics and
// OpenTelemetry tracing.
package monitoring

import (
	"time"

	"github.com/turtacn/covenantwatch/internal/domain/service"
)

// MetricsAdapter implements the domain's service.Metrics interface, sending metrics to a Prometheus backend.
// MetricsAdapter 实现了域的 service.Metrics 接口，将指标发送到 Prometheus 后端。
type MetricsAdapter struct {
	metrics *Metrics
}

var _ service.Metrics = (*MetricsAdapter)(nil)

// NewMetricsAdapter wraps a concrete Prometheus Metrics object.
// NewMetricsAdapter 包装具体的 Prometheus Metrics 对象。
func NewMetricsAdapter(metrics *Metrics) service.Metrics {
	return &MetricsAdapter{metrics: metrics}
}

func (a *MetricsAdapter) RecordPrediction(horizonDays int, riskLevel string, probability float64) {
	a.metrics.RecordPrediction(horizonDays, riskLevel, probability)
}

func (a *MetricsAdapter) RecordAssessment(overallLevel string, duration time.Duration) {
	a.metrics.RecordAssessment(overallLevel, duration)
}

func (a *MetricsAdapter) RecordLedgerNotification(outcome string, duration time.Duration) {
	a.metrics.RecordLedgerNotification(outcome, duration)
}

func (a *MetricsAdapter) RecordCacheAccess(cacheType string, hit bool) {
	a.metrics.RecordCacheAccess(cacheType, hit)
}

func (a *MetricsAdapter) RecordCovenantCheck(status string) {
	a.metrics.RecordCovenantCheck(status)
}

func (a *MetricsAdapter) RecordDBQuery(operation string, duration time.Duration) {
	a.metrics.RecordDBQuery(operation, duration)
}

func (a *MetricsAdapter) SetModelVersion(version string) {
	a.metrics.SetModelVersion(version)
}
