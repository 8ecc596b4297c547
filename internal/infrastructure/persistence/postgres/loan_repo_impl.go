package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/repository"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// LoanRepoImpl implements LoanRepository on gorm. Covenants and ESG clauses
// live in child tables and keep their declaration order through Position.
type LoanRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewLoanRepository creates a gorm-backed loan repository.
func NewLoanRepository(db *gorm.DB, log logger.Logger) repository.LoanRepository {
	return &LoanRepoImpl{db: db, logger: log.WithComponent("LoanRepository")}
}

func orderedChildren(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// Create inserts the loan together with its covenants and ESG clauses.
func (r *LoanRepoImpl) Create(ctx context.Context, loan *models.Loan) error {
	start := time.Now()
	dbm, err := loanFromDomain(loan)
	if err != nil {
		return errors.ErrInvalidRequest("loan metadata is not JSON encodable").WithCause(err)
	}

	if err := r.db.WithContext(ctx).Create(dbm).Error; err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.ErrConflict("loan already exists: "+loan.ID).WithMetadata("loan_id", loan.ID)
		}
		r.logger.Error(ctx, "Failed to create loan", err, logger.String("loan_id", loan.ID))
		return errors.ErrDatabaseOperation("create loan", err)
	}

	r.logger.Debug(ctx, "Loan created",
		logger.String("loan_id", loan.ID),
		logger.Int("covenants", len(dbm.Covenants)),
		logger.Int64("latency_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// FindByID loads a loan with its children.
func (r *LoanRepoImpl) FindByID(ctx context.Context, loanID string) (*models.Loan, error) {
	var dbm loanDBM
	err := r.db.WithContext(ctx).
		Preload("Covenants", orderedChildren).
		Preload("ESGClauses", orderedChildren).
		Where("id = ?", loanID).
		First(&dbm).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrLoanNotFound(loanID)
		}
		r.logger.Error(ctx, "Failed to retrieve loan", err, logger.String("loan_id", loanID))
		return nil, errors.ErrDatabaseOperation("find loan", err)
	}
	loan, err := dbm.toDomain()
	if err != nil {
		return nil, errors.ErrDatabaseOperation("decode loan", err)
	}
	return loan, nil
}

// List returns loans, newest first.
func (r *LoanRepoImpl) List(ctx context.Context, limit, offset int) ([]*models.Loan, error) {
	var rows []loanDBM
	err := r.db.WithContext(ctx).
		Preload("Covenants", orderedChildren).
		Preload("ESGClauses", orderedChildren).
		Order("created_at DESC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to list loans", err)
		return nil, errors.ErrDatabaseOperation("list loans", err)
	}

	out := make([]*models.Loan, 0, len(rows))
	for i := range rows {
		loan, err := rows[i].toDomain()
		if err != nil {
			return nil, errors.ErrDatabaseOperation("decode loan", err)
		}
		out = append(out, loan)
	}
	return out, nil
}

// UpdateStatus changes the lifecycle status, the only mutable loan field.
func (r *LoanRepoImpl) UpdateStatus(ctx context.Context, loanID string, status constants.LoanStatus) error {
	result := r.db.WithContext(ctx).
		Model(&loanDBM{}).
		Where("id = ?", loanID).
		Update("status", string(status))
	if result.Error != nil {
		r.logger.Error(ctx, "Failed to update loan status", result.Error, logger.String("loan_id", loanID))
		return errors.ErrDatabaseOperation("update loan status", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrLoanNotFound(loanID)
	}
	return nil
}

// CovenantCheckRepoImpl stores the append-only covenant check history.
type CovenantCheckRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewCovenantCheckRepository creates a gorm-backed check repository.
func NewCovenantCheckRepository(db *gorm.DB, log logger.Logger) repository.CovenantCheckRepository {
	return &CovenantCheckRepoImpl{db: db, logger: log.WithComponent("CovenantCheckRepository")}
}

func (r *CovenantCheckRepoImpl) Append(ctx context.Context, check *models.CovenantCheck) error {
	if err := r.db.WithContext(ctx).Create(checkFromDomain(check)).Error; err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.ErrConflict("covenant check already recorded: " + check.ID)
		}
		r.logger.Error(ctx, "Failed to append covenant check", err,
			logger.String("loan_id", check.LoanID),
			logger.String("covenant_id", check.CovenantID),
		)
		return errors.ErrDatabaseOperation("append covenant check", err)
	}
	return nil
}

// ListByLoan returns the loan's checks oldest first. Checks sharing a date
// come back in insertion order.
func (r *CovenantCheckRepoImpl) ListByLoan(ctx context.Context, loanID string) ([]models.CovenantCheck, error) {
	var rows []covenantCheckDBM
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("check_date ASC, seq ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to list covenant checks", err, logger.String("loan_id", loanID))
		return nil, errors.ErrDatabaseOperation("list covenant checks", err)
	}
	out := make([]models.CovenantCheck, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// ESGComplianceRepoImpl stores ESG review outcomes.
type ESGComplianceRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewESGComplianceRepository creates a gorm-backed ESG compliance repository.
func NewESGComplianceRepository(db *gorm.DB, log logger.Logger) repository.ESGComplianceRepository {
	return &ESGComplianceRepoImpl{db: db, logger: log.WithComponent("ESGComplianceRepository")}
}

func (r *ESGComplianceRepoImpl) Append(ctx context.Context, record *models.ESGComplianceRecord) error {
	if err := r.db.WithContext(ctx).Create(esgFromDomain(record)).Error; err != nil {
		r.logger.Error(ctx, "Failed to append ESG compliance record", err, logger.String("loan_id", record.LoanID))
		return errors.ErrDatabaseOperation("append esg compliance", err)
	}
	return nil
}

func (r *ESGComplianceRepoImpl) ListByLoan(ctx context.Context, loanID string) ([]models.ESGComplianceRecord, error) {
	var rows []esgComplianceDBM
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("check_date ASC, seq ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.ErrDatabaseOperation("list esg compliance", err)
	}
	out := make([]models.ESGComplianceRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}
