package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

// Loan is the digital twin of a facility: its commercial terms plus the
// covenants and ESG clauses attached to it.
type Loan struct {
	ID              string                 `json:"id"`
	BorrowerName    string                 `json:"borrower_name"`
	PrincipalAmount decimal.Decimal        `json:"loan_amount"`
	InterestRate    float64                `json:"interest_rate"` // percent, e.g. 9.0
	StartDate       time.Time              `json:"start_date"`
	MaturityDate    time.Time              `json:"maturity_date"`
	Status          constants.LoanStatus   `json:"status"`
	Covenants       []Covenant             `json:"covenants"`
	ESGClauses      []ESGClause            `json:"esg_clauses"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// FindCovenant returns the covenant with the given id, or nil.
func (l *Loan) FindCovenant(covenantID string) *Covenant {
	for i := range l.Covenants {
		if l.Covenants[i].ID == covenantID {
			return &l.Covenants[i]
		}
	}
	return nil
}

// CountCovenants counts covenants of the given type.
func (l *Loan) CountCovenants(t constants.CovenantType) int {
	n := 0
	for _, c := range l.Covenants {
		if c.Type == t {
			n++
		}
	}
	return n
}

// CountESGClauses counts ESG clauses in the given category.
func (l *Loan) CountESGClauses(cat constants.ESGCategory) int {
	n := 0
	for _, e := range l.ESGClauses {
		if e.Category == cat {
			n++
		}
	}
	return n
}

// Covenant is a contractual condition the borrower must maintain.
type Covenant struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Type          constants.CovenantType `json:"type"`
	Threshold     float64                `json:"threshold"`
	Operator      constants.Operator     `json:"operator"`
	Frequency     string                 `json:"frequency"`
	NextCheckDate time.Time              `json:"next_check_date"`
	Description   string                 `json:"description,omitempty"`
}

// IsBreachedBy evaluates a measured value against the covenant threshold.
// Unknown operators never report a breach.
func (c *Covenant) IsBreachedBy(actual float64) bool {
	switch c.Operator {
	case constants.OperatorGreaterThan:
		return actual <= c.Threshold
	case constants.OperatorLessThan:
		return actual >= c.Threshold
	case constants.OperatorGreaterOrEqual:
		return actual < c.Threshold
	case constants.OperatorLessOrEqual:
		return actual > c.Threshold
	case constants.OperatorEqual:
		return math.Abs(actual-c.Threshold) > constants.EqualityTolerance
	default:
		return false
	}
}

// Evaluate classifies a measured value: breached, at_risk when within
// AtRiskMargin of a non-zero threshold, compliant otherwise.
func (c *Covenant) Evaluate(actual float64) (constants.CovenantStatus, bool) {
	if c.IsBreachedBy(actual) {
		return constants.CovenantStatusBreached, true
	}
	if c.Threshold != 0 && math.Abs(actual-c.Threshold)/math.Abs(c.Threshold) < constants.AtRiskMargin {
		return constants.CovenantStatusAtRisk, false
	}
	return constants.CovenantStatusCompliant, false
}

// ESGClause is an environmental, social or governance requirement.
type ESGClause struct {
	ID                 string                `json:"id"`
	Category           constants.ESGCategory `json:"category"`
	Requirement        string                `json:"requirement"`
	ReportingFrequency string                `json:"reporting_frequency"`
	NextReportDate     time.Time             `json:"next_report_date"`
	Description        string                `json:"description,omitempty"`
}

// CovenantCheck is an append-only record of one covenant test.
type CovenantCheck struct {
	ID             string                   `json:"id"`
	LoanID         string                   `json:"loan_id"`
	CovenantID     string                   `json:"covenant_id"`
	CheckDate      time.Time                `json:"check_date"`
	Status         constants.CovenantStatus `json:"status"`
	ActualValue    *float64                 `json:"actual_value,omitempty"`
	ThresholdValue float64                  `json:"threshold_value"`
	IsBreached     bool                     `json:"is_breached"`
	Notes          string                   `json:"notes,omitempty"`
}

// ChecksForCovenant filters a check history down to a single covenant,
// preserving order.
func ChecksForCovenant(checks []CovenantCheck, covenantID string) []CovenantCheck {
	out := make([]CovenantCheck, 0, len(checks))
	for _, c := range checks {
		if c.CovenantID == covenantID {
			out = append(out, c)
		}
	}
	return out
}

// LastChecks returns the trailing n checks (or all of them when fewer).
func LastChecks(checks []CovenantCheck, n int) []CovenantCheck {
	if len(checks) <= n {
		return checks
	}
	return checks[len(checks)-n:]
}

// CountBreached counts breached checks.
func CountBreached(checks []CovenantCheck) int {
	n := 0
	for _, c := range checks {
		if c.IsBreached {
			n++
		}
	}
	return n
}

// ESGComplianceRecord is an append-only ESG review outcome.
type ESGComplianceRecord struct {
	ID        string              `json:"id"`
	LoanID    string              `json:"loan_id"`
	ClauseID  string              `json:"clause_id"`
	CheckDate time.Time           `json:"check_date"`
	Status    constants.ESGStatus `json:"status"`
	Evidence  string              `json:"evidence,omitempty"`
	Notes     string              `json:"notes,omitempty"`
}

// TwinState is the dashboard view of a loan: the loan, its history and
// derived health metrics.
type TwinState struct {
	Loan           *Loan                 `json:"loan"`
	CovenantChecks []CovenantCheck       `json:"covenant_checks"`
	ESGCompliance  []ESGComplianceRecord `json:"esg_compliance"`
	HealthMetrics  HealthMetrics         `json:"health_metrics"`
	HealthScore    int                   `json:"health_score"`
	CovenantStatus CovenantBreakdown     `json:"covenant_status"`
	ESGStatus      ESGBreakdown          `json:"esg_status"`
	LastUpdated    time.Time             `json:"last_updated"`
}

// HealthMetrics summarises compliance of a loan.
type HealthMetrics struct {
	TotalCovenants    int     `json:"total_covenants"`
	BreachedCovenants int     `json:"breached_covenants"`
	AtRiskCovenants   int     `json:"at_risk_covenants"`
	ComplianceRate    float64 `json:"compliance_rate"`
	TotalESGClauses   int     `json:"total_esg_clauses"`
	NonCompliantESG   int     `json:"non_compliant_esg"`
	AtRiskESG         int     `json:"at_risk_esg"`
	ESGComplianceRate float64 `json:"esg_compliance_rate"`
}

// CovenantBreakdown counts covenants per compliance state.
type CovenantBreakdown struct {
	Compliant int `json:"compliant"`
	AtRisk    int `json:"at_risk"`
	Breached  int `json:"breached"`
}

// ESGBreakdown counts ESG clauses per compliance state.
type ESGBreakdown struct {
	Compliant    int `json:"compliant"`
	AtRisk       int `json:"at_risk"`
	NonCompliant int `json:"non_compliant"`
}
