package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/covenantwatch/internal/application"
	"github.com/turtacn/covenantwatch/internal/application/dto"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/repository"
	domainservice "github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
	"github.com/turtacn/covenantwatch/pkg/utils"
)

const (
	healthCovenantWeight = 0.7
	healthESGWeight      = 0.3
	defaultAuditLimit    = 100
	maxListLimit         = 500
)

//go:generate mockery --name LoanAppService --output ../mocks --outpkg mocks

// LoanAppService manages loan digital twins: the loan record, its covenant
// check history, ESG reviews and derived health.
// LoanAppService 管理贷款数字孪生：贷款记录、契约检查历史、ESG 审查和健康度。
type LoanAppService interface {
	CreateLoan(ctx context.Context, req *dto.CreateLoanRequest) (*models.Loan, error)
	GetLoan(ctx context.Context, loanID string) (*models.Loan, error)
	ListLoans(ctx context.Context, limit, offset int) ([]*models.Loan, error)
	UpdateStatus(ctx context.Context, loanID string, req *dto.UpdateLoanStatusRequest) (*models.Loan, error)
	RecordCovenantCheck(ctx context.Context, loanID string, req *dto.RecordCovenantCheckRequest) (*models.CovenantCheck, error)
	ListCovenantChecks(ctx context.Context, loanID string) ([]models.CovenantCheck, error)
	RecordESGCompliance(ctx context.Context, loanID string, req *dto.RecordESGComplianceRequest) (*models.ESGComplianceRecord, error)
	GetTwinState(ctx context.Context, loanID string) (*models.TwinState, error)
	AuditTrail(ctx context.Context, loanID string, filter repository.AuditFilter) ([]*models.AuditEvent, error)
	AuditSummary(ctx context.Context, loanID string) (*models.AuditSummary, error)
}

type loanAppServiceImpl struct {
	loans   repository.LoanRepository
	checks  repository.CovenantCheckRepository
	esg     repository.ESGComplianceRepository
	trail   repository.AuditRepository
	audit   domainservice.AuditService
	cache   domainservice.PredictionCache
	metrics domainservice.Metrics
	log     logger.Logger
	now     func() time.Time
}

// NewLoanAppService creates a new LoanAppService. trail, audit and cache may be nil.
func NewLoanAppService(
	loans repository.LoanRepository,
	checks repository.CovenantCheckRepository,
	esg repository.ESGComplianceRepository,
	trail repository.AuditRepository,
	audit domainservice.AuditService,
	cache domainservice.PredictionCache,
	metrics domainservice.Metrics,
	log logger.Logger,
	now func() time.Time,
) LoanAppService {
	if metrics == nil {
		metrics = domainservice.NoopMetrics{}
	}
	if now == nil {
		now = time.Now
	}
	return &loanAppServiceImpl{
		loans:   loans,
		checks:  checks,
		esg:     esg,
		trail:   trail,
		audit:   audit,
		cache:   cache,
		metrics: metrics,
		log:     log.WithComponent("LoanAppService"),
		now:     now,
	}
}

// CreateLoan validates the request and registers a new active loan.
func (s *loanAppServiceImpl) CreateLoan(ctx context.Context, req *dto.CreateLoanRequest) (*models.Loan, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	loan := &models.Loan{
		ID:              req.ID,
		BorrowerName:    req.BorrowerName,
		PrincipalAmount: req.LoanAmount,
		InterestRate:    req.InterestRate,
		StartDate:       req.StartDate.UTC(),
		MaturityDate:    req.MaturityDate.UTC(),
		Status:          constants.LoanStatusActive,
		Metadata:        req.Metadata,
		CreatedAt:       s.now().UTC(),
	}
	if loan.ID == "" {
		loan.ID = uuid.NewString()
	}
	if loan.PrincipalAmount.IsNegative() {
		return nil, errors.ErrInvalidRequest("loan_amount must not be negative")
	}

	seen := make(map[string]struct{}, len(req.Covenants))
	for _, in := range req.Covenants {
		c := in.ToCovenant()
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, dup := seen[c.ID]; dup {
			return nil, errors.ErrInvalidRequest(fmt.Sprintf("duplicate covenant id: %s", c.ID))
		}
		seen[c.ID] = struct{}{}
		loan.Covenants = append(loan.Covenants, c)
	}
	for _, in := range req.ESGClauses {
		e := in.ToESGClause()
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		loan.ESGClauses = append(loan.ESGClauses, e)
	}

	if err := s.loans.Create(ctx, loan); err != nil {
		return nil, err
	}

	s.logAudit(ctx, models.NewAuditEvent(loan.ID, constants.AuditEventLoanCreated,
		fmt.Sprintf("Loan digital twin created for %s", loan.BorrowerName)).
		WithMetadata(map[string]interface{}{
			"loan_amount":     loan.PrincipalAmount.String(),
			"covenants_count": len(loan.Covenants),
			"esg_count":       len(loan.ESGClauses),
		}))

	s.log.Info(ctx, "Loan registered successfully",
		logger.String("loan_id", loan.ID),
		logger.Int("covenants", len(loan.Covenants)),
	)
	return loan, nil
}

func (s *loanAppServiceImpl) GetLoan(ctx context.Context, loanID string) (*models.Loan, error) {
	return s.loans.FindByID(ctx, loanID)
}

func (s *loanAppServiceImpl) ListLoans(ctx context.Context, limit, offset int) ([]*models.Loan, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.loans.List(ctx, limit, offset)
}

func (s *loanAppServiceImpl) UpdateStatus(ctx context.Context, loanID string, req *dto.UpdateLoanStatusRequest) (*models.Loan, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	status := constants.LoanStatus(req.Status)
	if err := s.loans.UpdateStatus(ctx, loanID, status); err != nil {
		return nil, err
	}
	s.invalidate(ctx, loanID)

	s.logAudit(ctx, models.NewAuditEvent(loanID, constants.AuditEventLoanUpdated,
		fmt.Sprintf("Loan status changed to %s", status)).
		WithMetadata(map[string]interface{}{"status": status}))

	return s.loans.FindByID(ctx, loanID)
}

// RecordCovenantCheck evaluates the measured value against the covenant and
// appends the outcome to the loan's history.
func (s *loanAppServiceImpl) RecordCovenantCheck(ctx context.Context, loanID string, req *dto.RecordCovenantCheckRequest) (*models.CovenantCheck, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	loan, err := s.loans.FindByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	covenant := loan.FindCovenant(req.CovenantID)
	if covenant == nil {
		return nil, errors.ErrCovenantNotFound(loanID, req.CovenantID)
	}

	actual := *req.ActualValue
	status, breached := covenant.Evaluate(actual)
	checkDate := s.now().UTC()
	if req.CheckDate != nil {
		checkDate = req.CheckDate.UTC()
	}

	check := &models.CovenantCheck{
		ID:             uuid.NewString(),
		LoanID:         loanID,
		CovenantID:     covenant.ID,
		CheckDate:      checkDate,
		Status:         status,
		ActualValue:    utils.Float64Ptr(actual),
		ThresholdValue: covenant.Threshold,
		IsBreached:     breached,
		Notes:          req.Notes,
	}
	if err := s.checks.Append(ctx, check); err != nil {
		return nil, err
	}
	s.invalidate(ctx, loanID)
	s.metrics.RecordCovenantCheck(string(status))

	eventType := constants.AuditEventCovenantChecked
	outcome := "Compliant"
	if breached {
		eventType = constants.AuditEventCovenantBreached
		outcome = "BREACHED"
	}
	s.logAudit(ctx, models.NewAuditEvent(loanID, eventType,
		fmt.Sprintf("Covenant check: %s - %s", covenant.Name, outcome)).
		WithMetadata(map[string]interface{}{
			"covenant_id":  covenant.ID,
			"actual_value": actual,
			"threshold":    covenant.Threshold,
			"is_breached":  breached,
			"status":       status,
		}))

	return check, nil
}

func (s *loanAppServiceImpl) ListCovenantChecks(ctx context.Context, loanID string) ([]models.CovenantCheck, error) {
	if _, err := s.loans.FindByID(ctx, loanID); err != nil {
		return nil, err
	}
	return s.checks.ListByLoan(ctx, loanID)
}

func (s *loanAppServiceImpl) RecordESGCompliance(ctx context.Context, loanID string, req *dto.RecordESGComplianceRequest) (*models.ESGComplianceRecord, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	loan, err := s.loans.FindByID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	var clause *models.ESGClause
	for i := range loan.ESGClauses {
		if loan.ESGClauses[i].ID == req.ClauseID {
			clause = &loan.ESGClauses[i]
			break
		}
	}
	if clause == nil {
		return nil, errors.ErrNotFound(fmt.Sprintf("ESG clause %s not found on loan %s", req.ClauseID, loanID)).
			WithMetadata("loan_id", loanID).
			WithMetadata("clause_id", req.ClauseID)
	}

	checkDate := s.now().UTC()
	if req.CheckDate != nil {
		checkDate = req.CheckDate.UTC()
	}
	record := &models.ESGComplianceRecord{
		ID:        uuid.NewString(),
		LoanID:    loanID,
		ClauseID:  clause.ID,
		CheckDate: checkDate,
		Status:    constants.ESGStatus(req.Status),
		Evidence:  req.Evidence,
		Notes:     req.Notes,
	}
	if err := s.esg.Append(ctx, record); err != nil {
		return nil, err
	}

	s.logAudit(ctx, models.NewAuditEvent(loanID, constants.AuditEventESGRecorded,
		fmt.Sprintf("ESG review: %s - %s", clause.Requirement, record.Status)).
		WithMetadata(map[string]interface{}{
			"clause_id": clause.ID,
			"category":  clause.Category,
			"status":    record.Status,
		}))
	return record, nil
}

// GetTwinState assembles the dashboard view of a loan.
func (s *loanAppServiceImpl) GetTwinState(ctx context.Context, loanID string) (*models.TwinState, error) {
	loan, err := s.loans.FindByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	checks, err := s.checks.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	records, err := s.esg.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	state := ComputeTwinState(loan, checks, records)
	state.LastUpdated = s.now().UTC()
	return state, nil
}

// AuditTrail returns the loan's audit events matching filter, newest first.
// filter.LoanID is overridden by loanID.
func (s *loanAppServiceImpl) AuditTrail(ctx context.Context, loanID string, filter repository.AuditFilter) ([]*models.AuditEvent, error) {
	if filter.EventType != "" && !filter.EventType.IsValid() {
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("unknown event_type: %s", filter.EventType)).
			WithMetadata("event_type", string(filter.EventType))
	}
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return nil, errors.ErrInvalidRequest("end_date must not be before start_date")
	}
	if _, err := s.loans.FindByID(ctx, loanID); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return []*models.AuditEvent{}, nil
	}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = defaultAuditLimit
	}
	filter.LoanID = loanID
	return s.trail.Query(ctx, filter)
}

// AuditSummary counts the loan's whole audit trail by event type.
func (s *loanAppServiceImpl) AuditSummary(ctx context.Context, loanID string) (*models.AuditSummary, error) {
	if _, err := s.loans.FindByID(ctx, loanID); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return models.SummarizeAudit(loanID, nil), nil
	}
	events, err := s.trail.Query(ctx, repository.AuditFilter{LoanID: loanID})
	if err != nil {
		return nil, err
	}
	return models.SummarizeAudit(loanID, events), nil
}

func (s *loanAppServiceImpl) invalidate(ctx context.Context, loanID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateLoan(ctx, loanID); err != nil {
		s.log.Warn(ctx, "failed to invalidate prediction cache", logger.String("loan_id", loanID), logger.Err(err))
	}
}

func (s *loanAppServiceImpl) logAudit(ctx context.Context, event *models.AuditEvent) {
	if s.audit == nil {
		return
	}
	event.WithActor(application.ActorFromContext(ctx))
	if err := s.audit.LogEvent(ctx, *event); err != nil {
		s.log.Warn(ctx, "failed to record audit event",
			logger.String("loan_id", event.LoanID),
			logger.String("event_type", string(event.EventType)),
			logger.Err(err),
		)
	}
}

// ComputeTwinState derives health metrics from the latest outcome per
// covenant and per ESG clause.
func ComputeTwinState(loan *models.Loan, checks []models.CovenantCheck, records []models.ESGComplianceRecord) *models.TwinState {
	latestCheck := make(map[string]models.CovenantCheck, len(loan.Covenants))
	for _, c := range checks {
		if prev, ok := latestCheck[c.CovenantID]; !ok || !c.CheckDate.Before(prev.CheckDate) {
			latestCheck[c.CovenantID] = c
		}
	}
	latestESG := models.LatestESGByClause(records)

	var cov models.CovenantBreakdown
	for _, c := range loan.Covenants {
		check, ok := latestCheck[c.ID]
		switch {
		case ok && check.IsBreached:
			cov.Breached++
		case ok && check.Status == constants.CovenantStatusAtRisk:
			cov.AtRisk++
		default:
			cov.Compliant++
		}
	}

	var esg models.ESGBreakdown
	for _, e := range loan.ESGClauses {
		rec, ok := latestESG[e.ID]
		switch {
		case ok && rec.Status == constants.ESGStatusNonCompliant:
			esg.NonCompliant++
		case ok && rec.Status == constants.ESGStatusAtRisk:
			esg.AtRisk++
		default:
			esg.Compliant++
		}
	}

	metrics := models.HealthMetrics{
		TotalCovenants:    len(loan.Covenants),
		BreachedCovenants: cov.Breached,
		AtRiskCovenants:   cov.AtRisk,
		ComplianceRate:    1.0,
		TotalESGClauses:   len(loan.ESGClauses),
		NonCompliantESG:   esg.NonCompliant,
		AtRiskESG:         esg.AtRisk,
		ESGComplianceRate: 1.0,
	}
	if metrics.TotalCovenants > 0 {
		metrics.ComplianceRate = float64(metrics.TotalCovenants-cov.Breached) / float64(metrics.TotalCovenants)
	}
	if metrics.TotalESGClauses > 0 {
		metrics.ESGComplianceRate = float64(metrics.TotalESGClauses-esg.NonCompliant) / float64(metrics.TotalESGClauses)
	}

	if checks == nil {
		checks = []models.CovenantCheck{}
	}
	if records == nil {
		records = []models.ESGComplianceRecord{}
	}
	return &models.TwinState{
		Loan:           loan,
		CovenantChecks: checks,
		ESGCompliance:  records,
		HealthMetrics:  metrics,
		HealthScore:    int((metrics.ComplianceRate*healthCovenantWeight + metrics.ESGComplianceRate*healthESGWeight) * 100),
		CovenantStatus: cov,
		ESGStatus:      esg,
	}
}
