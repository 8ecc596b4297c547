package models

import (
	"time"

	"github.com/turtacn/covenantwatch/pkg/constants"
)

// ESGScoreFactors records what an ESG score was computed from.
type ESGScoreFactors struct {
	TotalClauses           int `json:"total_clauses"`
	ComplianceRecordsCount int `json:"compliance_records_count"`
	EnvironmentalClauses   int `json:"environmental_clauses"`
	SocialClauses          int `json:"social_clauses"`
	GovernanceClauses      int `json:"governance_clauses"`
}

// ESGScore is the 0-100 ESG score of a loan, per category and overall.
// ESGScore 贷款的 ESG 评分（0-100），按类别及总体。
type ESGScore struct {
	LoanID             string          `json:"loan_id"`
	EnvironmentalScore float64         `json:"environmental_score"`
	SocialScore        float64         `json:"social_score"`
	GovernanceScore    float64         `json:"governance_score"`
	OverallScore       float64         `json:"overall_score"`
	LastUpdated        time.Time       `json:"last_updated"`
	Factors            ESGScoreFactors `json:"factors"`
}

// ESGClauseRisk is a clause whose latest review is at risk or non-compliant.
type ESGClauseRisk struct {
	ClauseID    string                `json:"clause_id"`
	Category    constants.ESGCategory `json:"category"`
	Requirement string                `json:"requirement"`
	Status      constants.ESGStatus   `json:"status"`
	LastCheck   time.Time             `json:"last_check"`
}

// ESGBreachRisk is the predicted chance of an ESG breach within a horizon.
type ESGBreachRisk struct {
	LoanID            string              `json:"loan_id"`
	HorizonDays       int                 `json:"horizon_days"`
	BreachProbability float64             `json:"breach_probability"`
	CurrentScore      ESGScore            `json:"current_score"`
	AtRiskClauses     []ESGClauseRisk     `json:"at_risk_clauses"`
	RiskLevel         constants.RiskLevel `json:"risk_level"`
	PredictionDate    time.Time           `json:"prediction_date"`
}

// ESGCategoryCounts tallies the latest review outcome of a category's clauses.
type ESGCategoryCounts struct {
	Compliant    int `json:"compliant"`
	AtRisk       int `json:"at_risk"`
	NonCompliant int `json:"non_compliant"`
}

// ESGComplianceSummary is the per-category compliance view of a loan.
type ESGComplianceSummary struct {
	LoanID               string                                      `json:"loan_id"`
	ESGScore             ESGScore                                    `json:"esg_score"`
	ComplianceByCategory map[constants.ESGCategory]ESGCategoryCounts `json:"compliance_by_category"`
	TotalClauses         int                                         `json:"total_clauses"`
	LastUpdated          time.Time                                   `json:"last_updated"`
}

// LatestESGByClause returns each clause's most recent review. Records sharing
// a check date resolve to the one that comes later in records.
func LatestESGByClause(records []ESGComplianceRecord) map[string]ESGComplianceRecord {
	latest := make(map[string]ESGComplianceRecord)
	for _, r := range records {
		if prev, ok := latest[r.ClauseID]; !ok || !r.CheckDate.Before(prev.CheckDate) {
			latest[r.ClauseID] = r
		}
	}
	return latest
}
