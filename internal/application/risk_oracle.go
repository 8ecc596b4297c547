package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/covenantwatch/internal/application/dto"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/repository"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/logger"
	"github.com/turtacn/covenantwatch/pkg/utils"
)

//go:generate mockery --name RiskOracle --output mocks --outpkg mocks

// RiskOracle answers risk questions about stored loans. It resolves the loan
// and its history, consults the prediction cache and records what it produced.
// RiskOracle 针对已存储的贷款回答风险问题。
type RiskOracle interface {
	// AssessLoan returns the multi-horizon assessment for a loan.
	// AssessLoan 返回贷款的多期限风险评估。
	AssessLoan(ctx context.Context, loanID string, horizons []int) (*models.RiskAssessment, error)

	// AssessCovenant returns the prediction for one covenant.
	// AssessCovenant 返回单个契约的预测。
	AssessCovenant(ctx context.Context, loanID, covenantID string, horizonDays int) (*models.CovenantRiskPrediction, error)

	// Explain returns a single horizon's explanation and the features behind it.
	// Explain 返回单个期限的解释及其特征。
	Explain(ctx context.Context, loanID string, horizonDays int) (*dto.ExplainabilityResponse, error)

	// History lists stored assessments, newest first.
	// History 列出已存储的评估，最新的在前。
	History(ctx context.Context, loanID string, limit int) ([]*models.PredictionSnapshot, error)
}

// RiskOracleConfig controls caching and history.
type RiskOracleConfig struct {
	DefaultHorizons []int
	PersistHistory  bool
}

type riskOracle struct {
	loans       repository.LoanRepository
	checks      repository.CovenantCheckRepository
	predictions repository.PredictionRepository
	cache       service.PredictionCache
	audit       service.AuditService
	predictor   PredictionService
	metrics     service.Metrics
	log         logger.Logger
	cfg         RiskOracleConfig
}

// NewRiskOracle creates a new RiskOracle service. predictions, cache and
// audit are optional.
func NewRiskOracle(
	loans repository.LoanRepository,
	checks repository.CovenantCheckRepository,
	predictions repository.PredictionRepository,
	cache service.PredictionCache,
	audit service.AuditService,
	predictor PredictionService,
	metrics service.Metrics,
	log logger.Logger,
	cfg RiskOracleConfig,
) RiskOracle {
	if len(cfg.DefaultHorizons) == 0 {
		cfg.DefaultHorizons = constants.DefaultHorizons
	}
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	return &riskOracle{
		loans:       loans,
		checks:      checks,
		predictions: predictions,
		cache:       cache,
		audit:       audit,
		predictor:   predictor,
		metrics:     metrics,
		log:         log.WithComponent("RiskOracle"),
		cfg:         cfg,
	}
}

func (ro *riskOracle) load(ctx context.Context, loanID string) (*models.Loan, []models.CovenantCheck, error) {
	loan, err := ro.loans.FindByID(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	checks, err := ro.checks.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	return loan, checks, nil
}

func (ro *riskOracle) AssessLoan(ctx context.Context, loanID string, horizons []int) (*models.RiskAssessment, error) {
	if len(horizons) == 0 {
		horizons = ro.cfg.DefaultHorizons
	}
	horizons = utils.DedupeInts(horizons)

	if cached := ro.cached(ctx, loanID, horizons); cached != nil {
		return cached, nil
	}

	loan, checks, err := ro.load(ctx, loanID)
	if err != nil {
		return nil, err
	}

	assessment, err := ro.predictor.PredictRisk(ctx, loan, checks, horizons)
	if err != nil {
		return nil, err
	}

	if ro.cache != nil {
		if err := ro.cache.Set(ctx, assessment); err != nil {
			ro.log.Warn(ctx, "failed to cache assessment", logger.String("loan_id", loanID), logger.Err(err))
		}
	}
	ro.saveSnapshot(ctx, assessment)
	ro.logAudit(ctx, assessment)

	return assessment, nil
}

func (ro *riskOracle) cached(ctx context.Context, loanID string, horizons []int) *models.RiskAssessment {
	if ro.cache == nil {
		return nil
	}
	hit, err := ro.cache.Get(ctx, loanID, horizons)
	if err != nil {
		ro.log.Warn(ctx, "prediction cache read failed", logger.String("loan_id", loanID), logger.Err(err))
		return nil
	}
	// Entries scored by a previous parameter set are stale after a reload.
	if hit != nil && hit.ModelVersion != ro.predictor.ModelVersion() {
		hit = nil
	}
	ro.metrics.RecordCacheAccess("prediction", hit != nil)
	return hit
}

func (ro *riskOracle) saveSnapshot(ctx context.Context, a *models.RiskAssessment) {
	if ro.predictions == nil || !ro.cfg.PersistHistory {
		return
	}
	snapshot := &models.PredictionSnapshot{
		ID:           uuid.NewString(),
		LoanID:       a.LoanID,
		Horizons:     a.Horizons(),
		OverallLevel: a.OverallRisk.Level,
		MaxProb:      a.OverallRisk.MaxProbability,
		ModelVersion: a.ModelVersion,
		Assessment:   a,
		CreatedAt:    a.GeneratedAt,
	}
	start := time.Now()
	if err := ro.predictions.Save(ctx, snapshot); err != nil {
		ro.log.Warn(ctx, "failed to persist prediction snapshot", logger.String("loan_id", a.LoanID), logger.Err(err))
		return
	}
	ro.metrics.RecordDBQuery("prediction_snapshot_save", time.Since(start))
}

func (ro *riskOracle) logAudit(ctx context.Context, a *models.RiskAssessment) {
	if ro.audit == nil {
		return
	}
	event := models.NewAuditEvent(a.LoanID, constants.AuditEventPredictionGenerated, "Risk prediction generated").
		WithActor(ActorFromContext(ctx)).
		WithMetadata(map[string]interface{}{
			"horizons":        a.Horizons(),
			"overall_level":   a.OverallRisk.Level,
			"max_probability": a.OverallRisk.MaxProbability,
			"model_version":   a.ModelVersion,
		})
	if err := ro.audit.LogEvent(ctx, *event); err != nil {
		ro.log.Warn(ctx, "failed to record prediction audit event", logger.String("loan_id", a.LoanID), logger.Err(err))
	}

	if a.LedgerBreach == nil {
		return
	}
	notified := models.NewAuditEvent(a.LoanID, constants.AuditEventBreachNotified, "Predicted breach recorded on ledger").
		WithActor(ActorFromContext(ctx)).
		WithMetadata(a.LedgerBreach)
	if err := ro.audit.LogEvent(ctx, *notified); err != nil {
		ro.log.Warn(ctx, "failed to record ledger audit event", logger.String("loan_id", a.LoanID), logger.Err(err))
	}
}

func (ro *riskOracle) AssessCovenant(ctx context.Context, loanID, covenantID string, horizonDays int) (*models.CovenantRiskPrediction, error) {
	loan, checks, err := ro.load(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return ro.predictor.PredictCovenantRisk(ctx, loan, covenantID, checks, horizonDays)
}

func (ro *riskOracle) Explain(ctx context.Context, loanID string, horizonDays int) (*dto.ExplainabilityResponse, error) {
	loan, checks, err := ro.load(ctx, loanID)
	if err != nil {
		return nil, err
	}
	pred, fv, err := ro.predictor.PredictHorizon(ctx, loan, checks, horizonDays)
	if err != nil {
		return nil, err
	}
	return &dto.ExplainabilityResponse{
		LoanID:        loanID,
		HorizonDays:   pred.HorizonDays,
		Probability:   pred.Probability,
		Explanation:   pred.Explanation,
		FeatureVector: fv.Named(),
		ModelVersion:  ro.predictor.ModelVersion(),
	}, nil
}

func (ro *riskOracle) History(ctx context.Context, loanID string, limit int) ([]*models.PredictionSnapshot, error) {
	if _, err := ro.loans.FindByID(ctx, loanID); err != nil {
		return nil, err
	}
	if ro.predictions == nil {
		return []*models.PredictionSnapshot{}, nil
	}
	if limit <= 0 {
		limit = constants.PredictionHistoryDefaultLimit
	}
	return ro.predictions.ListByLoan(ctx, loanID, limit)
}

// ActorFromContext returns the actor stored by the HTTP middleware, or the
// default system actor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(constants.ContextKeyActor).(string); ok && actor != "" {
		return actor
	}
	return constants.DefaultActor
}
