package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/repository"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *models.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) FindByID(ctx context.Context, loanID string) (*models.Loan, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) List(ctx context.Context, limit, offset int) ([]*models.Loan, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) UpdateStatus(ctx context.Context, loanID string, status constants.LoanStatus) error {
	args := m.Called(ctx, loanID, status)
	return args.Error(0)
}

type MockCovenantCheckRepository struct {
	mock.Mock
}

func (m *MockCovenantCheckRepository) Append(ctx context.Context, check *models.CovenantCheck) error {
	args := m.Called(ctx, check)
	return args.Error(0)
}

func (m *MockCovenantCheckRepository) ListByLoan(ctx context.Context, loanID string) ([]models.CovenantCheck, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CovenantCheck), args.Error(1)
}

type MockESGComplianceRepository struct {
	mock.Mock
}

func (m *MockESGComplianceRepository) Append(ctx context.Context, record *models.ESGComplianceRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockESGComplianceRepository) ListByLoan(ctx context.Context, loanID string) ([]models.ESGComplianceRecord, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ESGComplianceRecord), args.Error(1)
}

type MockPredictionRepository struct {
	mock.Mock
}

func (m *MockPredictionRepository) Save(ctx context.Context, snapshot *models.PredictionSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockPredictionRepository) ListByLoan(ctx context.Context, loanID string, limit int) ([]*models.PredictionSnapshot, error) {
	args := m.Called(ctx, loanID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PredictionSnapshot), args.Error(1)
}

type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) ListByLoan(ctx context.Context, loanID string, limit int) ([]*models.AuditEvent, error) {
	args := m.Called(ctx, loanID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditEvent), args.Error(1)
}

func (m *MockAuditRepository) Query(ctx context.Context, filter repository.AuditFilter) ([]*models.AuditEvent, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditEvent), args.Error(1)
}
