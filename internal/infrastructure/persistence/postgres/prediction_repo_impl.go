package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/repository"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// PredictionRepoImpl persists assessment snapshots as JSON payloads.
type PredictionRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewPredictionRepository creates a gorm-backed prediction history repository.
func NewPredictionRepository(db *gorm.DB, log logger.Logger) repository.PredictionRepository {
	return &PredictionRepoImpl{db: db, logger: log.WithComponent("PredictionRepository")}
}

func (r *PredictionRepoImpl) Save(ctx context.Context, snapshot *models.PredictionSnapshot) error {
	dbm, err := snapshotFromDomain(snapshot)
	if err != nil {
		return errors.ErrServerError("encode prediction snapshot").WithCause(err)
	}
	if err := r.db.WithContext(ctx).Create(dbm).Error; err != nil {
		r.logger.Error(ctx, "Failed to save prediction snapshot", err, logger.String("loan_id", snapshot.LoanID))
		return errors.ErrDatabaseOperation("save prediction snapshot", err)
	}
	return nil
}

// ListByLoan returns up to limit snapshots, newest first.
func (r *PredictionRepoImpl) ListByLoan(ctx context.Context, loanID string, limit int) ([]*models.PredictionSnapshot, error) {
	var rows []predictionSnapshotDBM
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to list prediction snapshots", err, logger.String("loan_id", loanID))
		return nil, errors.ErrDatabaseOperation("list prediction snapshots", err)
	}

	out := make([]*models.PredictionSnapshot, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toDomain()
		if err != nil {
			return nil, errors.ErrDatabaseOperation("decode prediction snapshot", err)
		}
		out = append(out, s)
	}
	return out, nil
}
