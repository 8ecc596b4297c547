package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/covenantwatch/internal/application/dto"
	"github.com/turtacn/covenantwatch/internal/domain/models"
)

type MockRiskOracle struct {
	mock.Mock
}

func (m *MockRiskOracle) AssessLoan(ctx context.Context, loanID string, horizons []int) (*models.RiskAssessment, error) {
	args := m.Called(ctx, loanID, horizons)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RiskAssessment), args.Error(1)
}

func (m *MockRiskOracle) AssessCovenant(ctx context.Context, loanID, covenantID string, horizonDays int) (*models.CovenantRiskPrediction, error) {
	args := m.Called(ctx, loanID, covenantID, horizonDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CovenantRiskPrediction), args.Error(1)
}

func (m *MockRiskOracle) Explain(ctx context.Context, loanID string, horizonDays int) (*dto.ExplainabilityResponse, error) {
	args := m.Called(ctx, loanID, horizonDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ExplainabilityResponse), args.Error(1)
}

func (m *MockRiskOracle) History(ctx context.Context, loanID string, limit int) ([]*models.PredictionSnapshot, error) {
	args := m.Called(ctx, loanID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PredictionSnapshot), args.Error(1)
}
