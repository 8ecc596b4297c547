package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/turtacn/covenantwatch/internal/application"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/repository"
	domainservice "github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// ESG scoring constants. Every category starts at esgFullScore and loses
// points for each clause whose latest review is not compliant.
const (
	esgFullScore            = 100.0
	esgNonCompliantPenalty  = 20.0
	esgAtRiskPenalty        = 10.0
	esgEnvironmentalWeight  = 0.3
	esgSocialWeight         = 0.3
	esgGovernanceWeight     = 0.4
	esgHorizonUplift        = 0.2
	esgHighRiskThreshold    = 0.7
	esgMediumRiskThreshold  = 0.4
	esgWeakScoreThreshold   = 50.0
	esgMiddleScoreThreshold = 70.0
)

//go:generate mockery --name ESGAppService --output ../mocks --outpkg mocks

// ESGAppService scores a loan's ESG clauses from their review history.
// ESGAppService 根据审查历史对贷款的 ESG 条款评分。
type ESGAppService interface {
	// Score computes the loan's ESG score and records an audit event.
	Score(ctx context.Context, loanID string) (*models.ESGScore, error)
	// ComplianceSummary counts each category's clauses by latest review outcome.
	ComplianceSummary(ctx context.Context, loanID string) (*models.ESGComplianceSummary, error)
	// BreachRisk predicts the chance of an ESG breach within horizonDays.
	BreachRisk(ctx context.Context, loanID string, horizonDays int) (*models.ESGBreachRisk, error)
}

type esgAppServiceImpl struct {
	loans repository.LoanRepository
	esg   repository.ESGComplianceRepository
	audit domainservice.AuditService
	log   logger.Logger
	now   func() time.Time
}

// NewESGAppService creates an ESGAppService. audit may be nil.
func NewESGAppService(
	loans repository.LoanRepository,
	esg repository.ESGComplianceRepository,
	audit domainservice.AuditService,
	log logger.Logger,
	now func() time.Time,
) ESGAppService {
	if now == nil {
		now = time.Now
	}
	return &esgAppServiceImpl{
		loans: loans,
		esg:   esg,
		audit: audit,
		log:   log.WithComponent("ESGAppService"),
		now:   now,
	}
}

func (s *esgAppServiceImpl) load(ctx context.Context, loanID string) (*models.Loan, []models.ESGComplianceRecord, error) {
	loan, err := s.loans.FindByID(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.esg.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	return loan, records, nil
}

func (s *esgAppServiceImpl) Score(ctx context.Context, loanID string) (*models.ESGScore, error) {
	loan, records, err := s.load(ctx, loanID)
	if err != nil {
		return nil, err
	}
	score := CalculateESGScore(loan, records, s.now().UTC())

	if s.audit != nil {
		event := models.NewAuditEvent(loanID, constants.AuditEventESGScoreCalculated,
			fmt.Sprintf("ESG score calculated: %.1f", score.OverallScore)).
			WithMetadata(map[string]interface{}{"overall_score": score.OverallScore}).
			WithActor(application.ActorFromContext(ctx))
		if err := s.audit.LogEvent(ctx, *event); err != nil {
			s.log.Warn(ctx, "failed to record audit event",
				logger.String("loan_id", loanID),
				logger.String("event_type", string(event.EventType)),
				logger.Err(err),
			)
		}
	}
	return &score, nil
}

func (s *esgAppServiceImpl) ComplianceSummary(ctx context.Context, loanID string) (*models.ESGComplianceSummary, error) {
	loan, records, err := s.load(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return SummarizeESGCompliance(loan, records, s.now().UTC()), nil
}

func (s *esgAppServiceImpl) BreachRisk(ctx context.Context, loanID string, horizonDays int) (*models.ESGBreachRisk, error) {
	if horizonDays <= 0 {
		return nil, errors.ErrInvalidHorizon(fmt.Sprint(horizonDays))
	}
	loan, records, err := s.load(ctx, loanID)
	if err != nil {
		return nil, err
	}
	risk := PredictESGBreachRisk(loan, records, horizonDays, s.now().UTC())
	s.log.Debug(ctx, "ESG breach risk predicted",
		logger.String("loan_id", loanID),
		logger.Int("horizon_days", horizonDays),
		logger.Float64("probability", risk.BreachProbability),
	)
	return risk, nil
}

// CalculateESGScore scores each category from the latest review of its
// clauses and weights them into the overall score. The result is
// deterministic for a given history.
func CalculateESGScore(loan *models.Loan, records []models.ESGComplianceRecord, now time.Time) models.ESGScore {
	latest := models.LatestESGByClause(records)
	scores := map[constants.ESGCategory]float64{
		constants.ESGCategoryEnvironmental: esgFullScore,
		constants.ESGCategorySocial:        esgFullScore,
		constants.ESGCategoryGovernance:    esgFullScore,
	}
	factors := models.ESGScoreFactors{
		TotalClauses:           len(loan.ESGClauses),
		ComplianceRecordsCount: len(records),
	}

	for _, clause := range loan.ESGClauses {
		switch clause.Category {
		case constants.ESGCategoryEnvironmental:
			factors.EnvironmentalClauses++
		case constants.ESGCategorySocial:
			factors.SocialClauses++
		case constants.ESGCategoryGovernance:
			factors.GovernanceClauses++
		}

		rec, ok := latest[clause.ID]
		if !ok {
			continue
		}
		if _, known := scores[clause.Category]; !known {
			continue
		}
		switch rec.Status {
		case constants.ESGStatusNonCompliant:
			scores[clause.Category] -= esgNonCompliantPenalty
		case constants.ESGStatusAtRisk:
			scores[clause.Category] -= esgAtRiskPenalty
		}
	}

	env := math.Max(0, scores[constants.ESGCategoryEnvironmental])
	social := math.Max(0, scores[constants.ESGCategorySocial])
	gov := math.Max(0, scores[constants.ESGCategoryGovernance])
	overall := env*esgEnvironmentalWeight + social*esgSocialWeight + gov*esgGovernanceWeight

	return models.ESGScore{
		LoanID:             loan.ID,
		EnvironmentalScore: roundTo(clamp(env, 0, esgFullScore), 1),
		SocialScore:        roundTo(clamp(social, 0, esgFullScore), 1),
		GovernanceScore:    roundTo(clamp(gov, 0, esgFullScore), 1),
		OverallScore:       roundTo(clamp(overall, 0, esgFullScore), 1),
		LastUpdated:        now,
		Factors:            factors,
	}
}

// PredictESGBreachRisk maps the current score and open clause issues to a
// breach probability, scaled up for longer horizons.
func PredictESGBreachRisk(loan *models.Loan, records []models.ESGComplianceRecord, horizonDays int, now time.Time) *models.ESGBreachRisk {
	score := CalculateESGScore(loan, records, now)
	latest := models.LatestESGByClause(records)

	atRisk := []models.ESGClauseRisk{}
	for _, clause := range loan.ESGClauses {
		rec, ok := latest[clause.ID]
		if !ok {
			continue
		}
		if rec.Status == constants.ESGStatusAtRisk || rec.Status == constants.ESGStatusNonCompliant {
			atRisk = append(atRisk, models.ESGClauseRisk{
				ClauseID:    clause.ID,
				Category:    clause.Category,
				Requirement: clause.Requirement,
				Status:      rec.Status,
				LastCheck:   rec.CheckDate,
			})
		}
	}

	var probability float64
	switch {
	case score.OverallScore < esgWeakScoreThreshold:
		probability = 0.7
	case score.OverallScore < esgMiddleScoreThreshold:
		probability = 0.4
	case len(atRisk) > 0:
		probability = 0.3
	default:
		probability = 0.1
	}
	probability *= 1 + float64(horizonDays)/365*esgHorizonUplift
	probability = math.Min(1, probability)

	return &models.ESGBreachRisk{
		LoanID:            loan.ID,
		HorizonDays:       horizonDays,
		BreachProbability: roundTo(probability, 2),
		CurrentScore:      score,
		AtRiskClauses:     atRisk,
		RiskLevel:         esgRiskLevel(probability),
		PredictionDate:    now,
	}
}

// SummarizeESGCompliance counts clauses per category by their latest review.
// Clauses never reviewed, or pending review, are not counted.
func SummarizeESGCompliance(loan *models.Loan, records []models.ESGComplianceRecord, now time.Time) *models.ESGComplianceSummary {
	byCategory := map[constants.ESGCategory]models.ESGCategoryCounts{
		constants.ESGCategoryEnvironmental: {},
		constants.ESGCategorySocial:        {},
		constants.ESGCategoryGovernance:    {},
	}
	latest := models.LatestESGByClause(records)
	for _, clause := range loan.ESGClauses {
		rec, ok := latest[clause.ID]
		if !ok {
			continue
		}
		counts, known := byCategory[clause.Category]
		if !known {
			continue
		}
		switch rec.Status {
		case constants.ESGStatusCompliant:
			counts.Compliant++
		case constants.ESGStatusAtRisk:
			counts.AtRisk++
		case constants.ESGStatusNonCompliant:
			counts.NonCompliant++
		}
		byCategory[clause.Category] = counts
	}

	return &models.ESGComplianceSummary{
		LoanID:               loan.ID,
		ESGScore:             CalculateESGScore(loan, records, now),
		ComplianceByCategory: byCategory,
		TotalClauses:         len(loan.ESGClauses),
		LastUpdated:          now,
	}
}

func esgRiskLevel(probability float64) constants.RiskLevel {
	switch {
	case probability >= esgHighRiskThreshold:
		return constants.RiskLevelHigh
	case probability >= esgMediumRiskThreshold:
		return constants.RiskLevelMedium
	default:
		return constants.RiskLevelLow
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
