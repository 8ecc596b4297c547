// Package service holds the risk prediction core and the interfaces it
// depends on.
package service

import (
	"time"
)

// Metrics defines the interface for collecting business metrics.
// Metrics 定义了收集业务指标的接口。
type Metrics interface {
	// RecordPrediction records one horizon prediction and the level it fell into.
	// RecordPrediction 记录单个期限的预测及其风险级别。
	RecordPrediction(horizonDays int, riskLevel string, probability float64)

	// RecordAssessment records a full multi-horizon assessment.
	// RecordAssessment 记录完整的多期限评估。
	RecordAssessment(overallLevel string, duration time.Duration)

	// RecordLedgerNotification records the outcome of a breach-ledger call ("success", "skipped", "failure", "panic").
	// RecordLedgerNotification 记录违约账本调用的结果。
	RecordLedgerNotification(outcome string, duration time.Duration)

	// RecordCacheAccess records a cache hit or miss.
	// RecordCacheAccess 记录缓存命中或未命中。
	RecordCacheAccess(cacheType string, hit bool)

	// RecordCovenantCheck records a recorded covenant check by resulting status.
	// RecordCovenantCheck 按结果状态记录契约检查。
	RecordCovenantCheck(status string)

	// RecordDBQuery records the duration of a database query.
	// RecordDBQuery 记录数据库查询的持续时间。
	RecordDBQuery(operation string, duration time.Duration)

	// SetModelVersion marks the active model version.
	// SetModelVersion 标记当前生效的模型版本。
	SetModelVersion(version string)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordPrediction(int, string, float64)          {}
func (NoopMetrics) RecordAssessment(string, time.Duration)         {}
func (NoopMetrics) RecordLedgerNotification(string, time.Duration) {}
func (NoopMetrics) RecordCacheAccess(string, bool)                 {}
func (NoopMetrics) RecordCovenantCheck(string)                     {}
func (NoopMetrics) RecordDBQuery(string, time.Duration)            {}
func (NoopMetrics) SetModelVersion(string)                         {}
