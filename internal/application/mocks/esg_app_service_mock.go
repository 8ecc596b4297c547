package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/covenantwatch/internal/domain/models"
)

type MockESGAppService struct {
	mock.Mock
}

func (m *MockESGAppService) Score(ctx context.Context, loanID string) (*models.ESGScore, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ESGScore), args.Error(1)
}

func (m *MockESGAppService) ComplianceSummary(ctx context.Context, loanID string) (*models.ESGComplianceSummary, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ESGComplianceSummary), args.Error(1)
}

func (m *MockESGAppService) BreachRisk(ctx context.Context, loanID string, horizonDays int) (*models.ESGBreachRisk, error) {
	args := m.Called(ctx, loanID, horizonDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ESGBreachRisk), args.Error(1)
}
