package service_test

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

var fixedNow = time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// newTestLoan builds a loan with n financial covenants maturing in maturityDays.
func newTestLoan(covenantCount int, rate float64, maturityDays int) *models.Loan {
	loan := &models.Loan{
		ID:              "loan-001",
		BorrowerName:    "Acme Manufacturing",
		PrincipalAmount: decimal.NewFromInt(50_000_000),
		InterestRate:    rate,
		StartDate:       fixedNow.Add(-days(730)),
		MaturityDate:    fixedNow.Add(days(maturityDays)),
		Status:          constants.LoanStatusActive,
	}
	for i := 0; i < covenantCount; i++ {
		loan.Covenants = append(loan.Covenants, models.Covenant{
			ID:            "cov-" + string(rune('a'+i)),
			Name:          "Covenant " + string(rune('A'+i)),
			Type:          constants.CovenantTypeFinancial,
			Threshold:     1.25,
			Operator:      constants.OperatorGreaterOrEqual,
			Frequency:     "quarterly",
			NextCheckDate: fixedNow.Add(days(30 + i)),
		})
	}
	loan.ESGClauses = []models.ESGClause{
		{ID: "esg-1", Category: constants.ESGCategoryEnvironmental, Requirement: "Scope 1 emissions report"},
		{ID: "esg-2", Category: constants.ESGCategoryGovernance, Requirement: "Board independence"},
	}
	return loan
}

// newChecks builds a history oldest-first; breached[i] marks check i as breached.
func newChecks(covenantID string, breached ...bool) []models.CovenantCheck {
	checks := make([]models.CovenantCheck, len(breached))
	for i, b := range breached {
		status := constants.CovenantStatusCompliant
		if b {
			status = constants.CovenantStatusBreached
		}
		checks[i] = models.CovenantCheck{
			ID:         covenantID + "-check-" + string(rune('0'+i)),
			LoanID:     "loan-001",
			CovenantID: covenantID,
			CheckDate:  fixedNow.Add(-days(90 * (len(breached) - i))),
			Status:     status,
			IsBreached: b,
		}
	}
	return checks
}
