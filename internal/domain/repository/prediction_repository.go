package repository

import (
	"context"

	"github.com/turtacn/covenantwatch/internal/domain/models"
)

// PredictionRepository keeps a history of generated assessments. Snapshots
// are informational; callers must tolerate write failures.
//
//go:generate mockery --name PredictionRepository --output ../repository/mocks --filename prediction_repository.go
type PredictionRepository interface {
	// Save persists a snapshot.
	Save(ctx context.Context, snapshot *models.PredictionSnapshot) error

	// ListByLoan returns the newest snapshots first, at most limit entries.
	ListByLoan(ctx context.Context, loanID string, limit int) ([]*models.PredictionSnapshot, error)
}
