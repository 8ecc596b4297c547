package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

// CreateLoanRequest represents the request to register a new loan twin.
type CreateLoanRequest struct {
	ID           string                 `json:"id,omitempty"`
	BorrowerName string                 `json:"borrower_name" validate:"required"`
	LoanAmount   decimal.Decimal        `json:"loan_amount"`
	InterestRate float64                `json:"interest_rate" validate:"gte=0"`
	StartDate    time.Time              `json:"start_date" validate:"required"`
	MaturityDate time.Time              `json:"maturity_date" validate:"required,gtfield=StartDate"`
	Covenants    []CovenantInput        `json:"covenants" validate:"dive"`
	ESGClauses   []ESGClauseInput       `json:"esg_clauses" validate:"dive"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// CovenantInput describes a covenant attached at loan creation.
type CovenantInput struct {
	ID            string    `json:"id,omitempty"`
	Name          string    `json:"name" validate:"required"`
	Type          string    `json:"type" validate:"required,covenant_type"`
	Threshold     float64   `json:"threshold"`
	Operator      string    `json:"operator" validate:"required,covenant_operator"`
	Frequency     string    `json:"frequency"`
	NextCheckDate time.Time `json:"next_check_date"`
	Description   string    `json:"description,omitempty"`
}

// ESGClauseInput describes an ESG clause attached at loan creation.
type ESGClauseInput struct {
	ID                 string    `json:"id,omitempty"`
	Category           string    `json:"category" validate:"required,esg_category"`
	Requirement        string    `json:"requirement" validate:"required"`
	ReportingFrequency string    `json:"reporting_frequency"`
	NextReportDate     time.Time `json:"next_report_date"`
	Description        string    `json:"description,omitempty"`
}

// UpdateLoanStatusRequest changes the lifecycle status of a loan.
type UpdateLoanStatusRequest struct {
	Status string `json:"status" validate:"required,loan_status"`
}

// RecordCovenantCheckRequest records a measured covenant value.
type RecordCovenantCheckRequest struct {
	CovenantID  string     `json:"covenant_id" validate:"required"`
	ActualValue *float64   `json:"actual_value" validate:"required"`
	CheckDate   *time.Time `json:"check_date,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// ToCovenant converts the input into a domain covenant.
func (c CovenantInput) ToCovenant() models.Covenant {
	return models.Covenant{
		ID:            c.ID,
		Name:          c.Name,
		Type:          constants.CovenantType(c.Type),
		Threshold:     c.Threshold,
		Operator:      constants.Operator(c.Operator),
		Frequency:     c.Frequency,
		NextCheckDate: c.NextCheckDate,
		Description:   c.Description,
	}
}

// ToESGClause converts the input into a domain ESG clause.
func (e ESGClauseInput) ToESGClause() models.ESGClause {
	return models.ESGClause{
		ID:                 e.ID,
		Category:           constants.ESGCategory(e.Category),
		Requirement:        e.Requirement,
		ReportingFrequency: e.ReportingFrequency,
		NextReportDate:     e.NextReportDate,
		Description:        e.Description,
	}
}

// RecordESGComplianceRequest records an ESG review outcome.
type RecordESGComplianceRequest struct {
	ClauseID  string     `json:"clause_id" validate:"required"`
	Status    string     `json:"status" validate:"required,esg_status"`
	CheckDate *time.Time `json:"check_date,omitempty"`
	Evidence  string     `json:"evidence,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}
