package repository

import (
	"context"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

// LoanRepository defines the interface for interacting with loan storage.
// Covenants and ESG clauses are stored with their loan and returned in
// insertion order.
//
//go:generate mockery --name LoanRepository --output ../repository/mocks --filename loan_repository.go
type LoanRepository interface {
	// Create persists a new loan together with its covenants and ESG clauses.
	Create(ctx context.Context, loan *models.Loan) error

	// FindByID retrieves a loan. Returns errors.ErrLoanNotFound when absent.
	FindByID(ctx context.Context, loanID string) (*models.Loan, error)

	// List returns loans ordered by creation time, with pagination.
	List(ctx context.Context, limit, offset int) ([]*models.Loan, error)

	// UpdateStatus changes the lifecycle status of a loan.
	UpdateStatus(ctx context.Context, loanID string, status constants.LoanStatus) error
}

// CovenantCheckRepository stores the append-only covenant check history.
type CovenantCheckRepository interface {
	// Append records a new check. Checks are never updated.
	Append(ctx context.Context, check *models.CovenantCheck) error

	// ListByLoan returns every check for a loan ordered by check date, oldest first.
	ListByLoan(ctx context.Context, loanID string) ([]models.CovenantCheck, error)
}

// ESGComplianceRepository stores the append-only ESG review history.
type ESGComplianceRepository interface {
	// Append records a new ESG review outcome.
	Append(ctx context.Context, record *models.ESGComplianceRecord) error

	// ListByLoan returns every record for a loan ordered by check date, oldest first.
	ListByLoan(ctx context.Context, loanID string) ([]models.ESGComplianceRecord, error)
}
