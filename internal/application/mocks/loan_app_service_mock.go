package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/covenantwatch/internal/application/dto"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/repository"
)

type MockLoanAppService struct {
	mock.Mock
}

func (m *MockLoanAppService) CreateLoan(ctx context.Context, req *dto.CreateLoanRequest) (*models.Loan, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockLoanAppService) GetLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockLoanAppService) ListLoans(ctx context.Context, limit, offset int) ([]*models.Loan, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Loan), args.Error(1)
}

func (m *MockLoanAppService) UpdateStatus(ctx context.Context, loanID string, req *dto.UpdateLoanStatusRequest) (*models.Loan, error) {
	args := m.Called(ctx, loanID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockLoanAppService) RecordCovenantCheck(ctx context.Context, loanID string, req *dto.RecordCovenantCheckRequest) (*models.CovenantCheck, error) {
	args := m.Called(ctx, loanID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CovenantCheck), args.Error(1)
}

func (m *MockLoanAppService) ListCovenantChecks(ctx context.Context, loanID string) ([]models.CovenantCheck, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CovenantCheck), args.Error(1)
}

func (m *MockLoanAppService) RecordESGCompliance(ctx context.Context, loanID string, req *dto.RecordESGComplianceRequest) (*models.ESGComplianceRecord, error) {
	args := m.Called(ctx, loanID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ESGComplianceRecord), args.Error(1)
}

func (m *MockLoanAppService) GetTwinState(ctx context.Context, loanID string) (*models.TwinState, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TwinState), args.Error(1)
}

func (m *MockLoanAppService) AuditTrail(ctx context.Context, loanID string, filter repository.AuditFilter) ([]*models.AuditEvent, error) {
	args := m.Called(ctx, loanID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditEvent), args.Error(1)
}

func (m *MockLoanAppService) AuditSummary(ctx context.Context, loanID string) (*models.AuditSummary, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuditSummary), args.Error(1)
}
