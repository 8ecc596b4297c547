package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/service"
)

type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) LogEvent(ctx context.Context, event models.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockBreachNotifier struct {
	mock.Mock
}

func (m *MockBreachNotifier) NotifyBreach(ctx context.Context, n service.BreachNotification) (*service.LedgerReceipt, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.LedgerReceipt), args.Error(1)
}

type MockPredictionCache struct {
	mock.Mock
}

func (m *MockPredictionCache) Get(ctx context.Context, loanID string, horizons []int) (*models.RiskAssessment, error) {
	args := m.Called(ctx, loanID, horizons)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RiskAssessment), args.Error(1)
}

func (m *MockPredictionCache) Set(ctx context.Context, assessment *models.RiskAssessment) error {
	args := m.Called(ctx, assessment)
	return args.Error(0)
}

func (m *MockPredictionCache) InvalidateLoan(ctx context.Context, loanID string) error {
	args := m.Called(ctx, loanID)
	return args.Error(0)
}
