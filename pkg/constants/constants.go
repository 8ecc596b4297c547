// Package constants defines system-wide constants for the covenantwatch service.
// This package provides type-safe constant definitions used across all modules.
package constants

import (
	"strings"
	"time"
)

// ================================================================================
// Risk Level Constants
// ================================================================================

// RiskLevel is the discrete band a breach probability falls into.
type RiskLevel string

const (
	// RiskLevelLow covers probabilities in [0, 0.3)
	RiskLevelLow RiskLevel = "low"

	// RiskLevelMedium covers probabilities in [0.3, 0.6)
	RiskLevelMedium RiskLevel = "medium"

	// RiskLevelHigh covers probabilities in [0.6, 0.8)
	RiskLevelHigh RiskLevel = "high"

	// RiskLevelCritical covers probabilities in [0.8, 1]
	RiskLevelCritical RiskLevel = "critical"
)

// Band upper bounds (exclusive) used by the risk model.
const (
	RiskThresholdLow    = 0.3
	RiskThresholdMedium = 0.6
	RiskThresholdHigh   = 0.8
)

// IsSevere reports whether the level warrants a breach-ledger notification.
func (l RiskLevel) IsSevere() bool {
	return l == RiskLevelHigh || l == RiskLevelCritical
}

// LedgerSeverity maps a risk level onto the ledger's 0-3 severity scale.
func (l RiskLevel) LedgerSeverity() int {
	switch l {
	case RiskLevelCritical:
		return 3
	case RiskLevelHigh:
		return 2
	case RiskLevelMedium:
		return 1
	default:
		return 0
	}
}

// ================================================================================
// Factor Severity Constants
// ================================================================================

// Severity tags a risk factor.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ================================================================================
// Covenant Constants
// ================================================================================

// CovenantType classifies a covenant.
type CovenantType string

const (
	CovenantTypeFinancial   CovenantType = "financial"
	CovenantTypeOperational CovenantType = "operational"
	CovenantTypeReporting   CovenantType = "reporting"
	CovenantTypeNegative    CovenantType = "negative"
	CovenantTypeAffirmative CovenantType = "affirmative"
)

// CovenantStatus is the outcome recorded by a covenant check.
type CovenantStatus string

const (
	CovenantStatusCompliant    CovenantStatus = "compliant"
	CovenantStatusAtRisk       CovenantStatus = "at_risk"
	CovenantStatusBreached     CovenantStatus = "breached"
	CovenantStatusPendingCheck CovenantStatus = "pending_check"
)

// Operator compares a measured value against a covenant threshold.
type Operator string

const (
	OperatorGreaterThan    Operator = ">"
	OperatorLessThan       Operator = "<"
	OperatorGreaterOrEqual Operator = ">="
	OperatorLessOrEqual    Operator = "<="
	OperatorEqual          Operator = "=="
)

// IsValid reports whether the operator is one of the supported comparisons.
func (o Operator) IsValid() bool {
	switch o {
	case OperatorGreaterThan, OperatorLessThan, OperatorGreaterOrEqual, OperatorLessOrEqual, OperatorEqual:
		return true
	}
	return false
}

const (
	// EqualityTolerance is the allowed drift for "==" covenants.
	EqualityTolerance = 0.01

	// AtRiskMargin marks a compliant check as at_risk when it sits within this
	// relative distance of its threshold.
	AtRiskMargin = 0.1
)

// ================================================================================
// ESG Constants
// ================================================================================

// ESGCategory classifies an ESG clause.
type ESGCategory string

const (
	ESGCategoryEnvironmental ESGCategory = "environmental"
	ESGCategorySocial        ESGCategory = "social"
	ESGCategoryGovernance    ESGCategory = "governance"
)

// ESGStatus is the outcome of an ESG compliance review.
type ESGStatus string

const (
	ESGStatusCompliant     ESGStatus = "compliant"
	ESGStatusAtRisk        ESGStatus = "at_risk"
	ESGStatusNonCompliant  ESGStatus = "non_compliant"
	ESGStatusPendingReview ESGStatus = "pending_review"
)

// IsValid reports whether the status is known.
func (s ESGStatus) IsValid() bool {
	switch s {
	case ESGStatusCompliant, ESGStatusAtRisk, ESGStatusNonCompliant, ESGStatusPendingReview:
		return true
	}
	return false
}

// ================================================================================
// Loan Status Constants
// ================================================================================

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "active"
	LoanStatusClosed    LoanStatus = "closed"
	LoanStatusDefaulted LoanStatus = "defaulted"
)

// IsValid reports whether the status is known.
func (s LoanStatus) IsValid() bool {
	switch s {
	case LoanStatusActive, LoanStatusClosed, LoanStatusDefaulted:
		return true
	}
	return false
}

// ================================================================================
// Prediction Constants
// ================================================================================

// DefaultHorizons are used when a caller supplies no prediction horizons.
var DefaultHorizons = []int{30, 60, 90}

const (
	// DefaultCovenantHorizonDays is the horizon for covenant-specific predictions.
	DefaultCovenantHorizonDays = 30

	// DefaultESGHorizonDays is the horizon for ESG breach risk.
	DefaultESGHorizonDays = 90

	// MaxHorizonDays bounds horizons accepted at the API boundary (10 years).
	MaxHorizonDays = 3650

	// PredictionRuleID is the ledger governance rule used for model-driven breaches.
	PredictionRuleID = "ai-prediction-rule"

	// LedgerNotifyTimeout bounds a single breach-ledger notification.
	LedgerNotifyTimeout = 2 * time.Second

	// PredictionCacheTTL is the default lifetime of a cached assessment.
	PredictionCacheTTL = 5 * time.Minute

	// PredictionHistoryDefaultLimit caps history listings when no limit is given.
	PredictionHistoryDefaultLimit = 20
)

// NoiseMode selects how the risk model perturbs probabilities.
type NoiseMode string

const (
	// NoiseModeStochastic draws from a process-wide random source.
	NoiseModeStochastic NoiseMode = "stochastic"

	// NoiseModeSeeded derives the perturbation from the loan and horizon, so
	// identical requests yield identical probabilities.
	NoiseModeSeeded NoiseMode = "seeded"

	// NoiseModeOff disables perturbation.
	NoiseModeOff NoiseMode = "off"
)

// IsValid reports whether the mode is known.
func (m NoiseMode) IsValid() bool {
	switch m {
	case NoiseModeStochastic, NoiseModeSeeded, NoiseModeOff:
		return true
	}
	return false
}

// ================================================================================
// Audit Event Constants
// ================================================================================

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	AuditEventLoanCreated         AuditEventType = "loan_created"
	AuditEventLoanUpdated         AuditEventType = "loan_updated"
	AuditEventCovenantChecked     AuditEventType = "covenant_checked"
	AuditEventCovenantBreached    AuditEventType = "covenant_breached"
	AuditEventESGRecorded         AuditEventType = "esg_compliance_recorded"
	AuditEventPredictionGenerated AuditEventType = "prediction_generated"
	AuditEventBreachNotified      AuditEventType = "breach_notified"
	AuditEventESGScoreCalculated  AuditEventType = "esg_score_calculated"
)

// AuditEventTypes lists every known event type in declaration order.
var AuditEventTypes = []AuditEventType{
	AuditEventLoanCreated,
	AuditEventLoanUpdated,
	AuditEventCovenantChecked,
	AuditEventCovenantBreached,
	AuditEventESGRecorded,
	AuditEventPredictionGenerated,
	AuditEventBreachNotified,
	AuditEventESGScoreCalculated,
}

// IsValid reports whether the event type is known.
func (t AuditEventType) IsValid() bool {
	for _, known := range AuditEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Name is the symbolic name of the event type, e.g. LOAN_CREATED.
func (t AuditEventType) Name() string {
	return strings.ToUpper(string(t))
}

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is used for storing values in context
type ContextKey string

const (
	// ContextKeyRequestID is the context key for request ID
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyActor is the context key for the user or system triggering an action
	ContextKeyActor ContextKey = "actor"
)

// ================================================================================
// HTTP Constants
// ================================================================================

const (
	// HeaderRequestID carries the request correlation id
	HeaderRequestID = "X-Request-ID"

	// HeaderActor identifies the analyst performing a write
	HeaderActor = "X-Actor"

	// HeaderIdempotencyKey deduplicates retried writes
	HeaderIdempotencyKey = "Idempotency-Key"

	// DefaultActor is recorded on audit events when no actor is supplied
	DefaultActor = "system"
)

// ================================================================================
// Service Constants
// ================================================================================

const ServiceName = "covenantwatch"

// ServiceVersion is overridden at build time via -ldflags.
var ServiceVersion = "0.1.0"
