package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "covenantwatch"

// Metrics manages the Prometheus metrics.
type Metrics struct {
	Predictions          *prometheus.CounterVec
	PredictionProb       *prometheus.HistogramVec
	AssessmentLatency    *prometheus.HistogramVec
	LedgerNotifications  *prometheus.CounterVec
	LedgerLatency        prometheus.Histogram
	CacheAccess          *prometheus.CounterVec
	CovenantChecks       *prometheus.CounterVec
	DBQueryLatency       *prometheus.HistogramVec
	ModelInfo            *prometheus.GaugeVec
	HTTPRequests         *prometheus.CounterVec
	HTTPRequestLatency   *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// means the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Horizon predictions by horizon and risk level.",
			},
			[]string{"horizon_days", "risk_level"},
		),
		PredictionProb: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prediction_probability",
				Help:      "Distribution of predicted breach probabilities.",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
			[]string{"horizon_days"},
		),
		AssessmentLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "assessment_duration_seconds",
				Help:      "Latency of full multi-horizon assessments.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"overall_level"},
		),
		LedgerNotifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_notifications_total",
				Help:      "Breach ledger notifications by outcome.",
			},
			[]string{"outcome"},
		),
		LedgerLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_notification_duration_seconds",
				Help:      "Latency of breach ledger notifications.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
		CacheAccess: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_access_total",
				Help:      "Cache lookups by tier and result.",
			},
			[]string{"cache", "result"},
		),
		CovenantChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "covenant_checks_total",
				Help:      "Recorded covenant checks by resulting status.",
			},
			[]string{"status"},
		),
		DBQueryLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query latency by operation.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ModelInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_info",
				Help:      "Active model version (value is always 1).",
			},
			[]string{"version"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status.",
			},
			[]string{"path", "method", "status"},
		),
		HTTPRequestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route and method.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "HTTP requests currently being served.",
			},
		),
	}
}

// RecordPrediction records one horizon prediction.
func (m *Metrics) RecordPrediction(horizonDays int, riskLevel string, probability float64) {
	h := strconv.Itoa(horizonDays)
	m.Predictions.WithLabelValues(h, riskLevel).Inc()
	m.PredictionProb.WithLabelValues(h).Observe(probability)
}

// RecordAssessment records a full assessment.
func (m *Metrics) RecordAssessment(overallLevel string, duration time.Duration) {
	m.AssessmentLatency.WithLabelValues(overallLevel).Observe(duration.Seconds())
}

// RecordLedgerNotification records a ledger call outcome.
func (m *Metrics) RecordLedgerNotification(outcome string, duration time.Duration) {
	m.LedgerNotifications.WithLabelValues(outcome).Inc()
	m.LedgerLatency.Observe(duration.Seconds())
}

// RecordCacheAccess records a cache hit or miss.
func (m *Metrics) RecordCacheAccess(cacheType string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheAccess.WithLabelValues(cacheType, result).Inc()
}

// RecordCovenantCheck records a covenant check by status.
func (m *Metrics) RecordCovenantCheck(status string) {
	m.CovenantChecks.WithLabelValues(status).Inc()
}

// RecordDBQuery records a database query duration.
func (m *Metrics) RecordDBQuery(operation string, duration time.Duration) {
	m.DBQueryLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetModelVersion marks version as the only active model.
func (m *Metrics) SetModelVersion(version string) {
	m.ModelInfo.Reset()
	m.ModelInfo.WithLabelValues(version).Set(1)
}

// ActiveRequestsInc tracks an HTTP request entering the server.
func (m *Metrics) ActiveRequestsInc() {
	m.HTTPRequestsInFlight.Inc()
}

// ActiveRequestsDec tracks an HTTP request leaving the server.
func (m *Metrics) ActiveRequestsDec() {
	m.HTTPRequestsInFlight.Dec()
}

// ObserveHTTPRequest records a completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(path, method string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestLatency.WithLabelValues(path, method).Observe(duration.Seconds())
}
