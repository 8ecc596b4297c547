package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
	"github.com/turtacn/covenantwatch/pkg/utils"
)

const (
	tracerName = "github.com/turtacn/covenantwatch/internal/application"

	covenantHistoryWindow = 3
	covenantBreachBump    = 0.2
)

//go:generate mockery --name PredictionService --output mocks --outpkg mocks

// PredictionService orchestrates feature engineering, scoring and explanation
// across prediction horizons.
// PredictionService 协调特征工程、评分和解释，覆盖多个预测期限。
type PredictionService interface {
	// PredictRisk scores every horizon and aggregates an overall assessment.
	// Empty horizons fall back to the configured defaults.
	// PredictRisk 对每个期限评分并汇总整体评估。
	PredictRisk(ctx context.Context, loan *models.Loan, checks []models.CovenantCheck, horizons []int) (*models.RiskAssessment, error)

	// PredictCovenantRisk scores a single covenant.
	// PredictCovenantRisk 对单个契约进行评分。
	PredictCovenantRisk(ctx context.Context, loan *models.Loan, covenantID string, checks []models.CovenantCheck, horizonDays int) (*models.CovenantRiskPrediction, error)

	// PredictHorizon scores one horizon and returns the normalized features used.
	// PredictHorizon 对单个期限评分并返回所用的归一化特征。
	PredictHorizon(ctx context.Context, loan *models.Loan, checks []models.CovenantCheck, horizonDays int) (*models.HorizonPrediction, models.FeatureVector, error)

	// ModelVersion reports the active model parameters version.
	ModelVersion() string
}

// PredictionServiceConfig holds orchestration settings.
type PredictionServiceConfig struct {
	DefaultHorizons []int
	LedgerTimeout   time.Duration
}

type predictionService struct {
	features  service.FeatureEngineer
	model     service.RiskModel
	explainer service.ExplainabilityEngine
	notifier  service.BreachNotifier
	metrics   service.Metrics
	log       logger.Logger
	tracer    trace.Tracer
	cfg       PredictionServiceConfig
	now       func() time.Time
}

// NewPredictionService creates a PredictionService. A nil notifier or metrics
// falls back to the no-op implementation.
func NewPredictionService(
	features service.FeatureEngineer,
	model service.RiskModel,
	explainer service.ExplainabilityEngine,
	notifier service.BreachNotifier,
	metrics service.Metrics,
	log logger.Logger,
	cfg PredictionServiceConfig,
	now func() time.Time,
) PredictionService {
	if len(cfg.DefaultHorizons) == 0 {
		cfg.DefaultHorizons = constants.DefaultHorizons
	}
	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = constants.LedgerNotifyTimeout
	}
	if notifier == nil {
		notifier = service.NoopBreachNotifier{}
	}
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	if now == nil {
		now = time.Now
	}
	return &predictionService{
		features:  features,
		model:     model,
		explainer: explainer,
		notifier:  notifier,
		metrics:   metrics,
		log:       log.WithComponent("PredictionService"),
		tracer:    otel.Tracer(tracerName),
		cfg:       cfg,
		now:       now,
	}
}

func (s *predictionService) ModelVersion() string {
	return s.model.Parameters().Version
}

func (s *predictionService) PredictRisk(
	ctx context.Context,
	loan *models.Loan,
	checks []models.CovenantCheck,
	horizons []int,
) (*models.RiskAssessment, error) {
	ctx, span := s.tracer.Start(ctx, "PredictionService.PredictRisk",
		trace.WithAttributes(attribute.String("loan.id", loan.ID)))
	defer span.End()
	start := time.Now()

	if len(horizons) == 0 {
		horizons = s.cfg.DefaultHorizons
	}
	horizons = utils.DedupeInts(horizons)
	for _, h := range horizons {
		if h <= 0 {
			err := errors.ErrInvalidHorizon(utils.JoinInts(horizons))
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	preds := make(models.HorizonPredictions, 0, len(horizons))
	for _, h := range horizons {
		pred, _, err := s.PredictHorizon(ctx, loan, checks, h)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		preds = append(preds, *pred)
	}

	assessment := &models.RiskAssessment{
		LoanID:       loan.ID,
		Predictions:  preds,
		OverallRisk:  AggregateOverallRisk(preds),
		GeneratedAt:  s.now(),
		ModelVersion: s.ModelVersion(),
	}
	span.SetAttributes(
		attribute.String("risk.level", string(assessment.OverallRisk.Level)),
		attribute.Float64("risk.max_probability", assessment.OverallRisk.MaxProbability),
	)

	assessment.LedgerBreach = s.notifyLedger(ctx, loan.ID, assessment.OverallRisk)

	s.metrics.RecordAssessment(string(assessment.OverallRisk.Level), time.Since(start))
	s.log.Info(ctx, "risk assessment generated",
		logger.String("loan_id", loan.ID),
		logger.Int("horizons", len(preds)),
		logger.String("overall_level", string(assessment.OverallRisk.Level)),
		logger.Float64("max_probability", assessment.OverallRisk.MaxProbability),
	)
	return assessment, nil
}

func (s *predictionService) PredictHorizon(
	ctx context.Context,
	loan *models.Loan,
	checks []models.CovenantCheck,
	horizonDays int,
) (*models.HorizonPrediction, models.FeatureVector, error) {
	if horizonDays <= 0 {
		return nil, models.FeatureVector{}, errors.ErrInvalidHorizon(fmt.Sprint(horizonDays))
	}
	_, span := s.tracer.Start(ctx, "PredictionService.PredictHorizon",
		trace.WithAttributes(attribute.Int("horizon.days", horizonDays)))
	defer span.End()

	fv := s.features.EngineerFeatures(loan, checks, horizonDays)
	probability := s.model.PredictBreachProbability(fv, horizonDays)
	level := s.model.PredictRiskLevel(probability)
	factors := s.model.IdentifyRiskFactors(loan, checks, fv)
	explanation := s.explainer.ExplainPrediction(loan, probability, level, horizonDays, factors)

	s.metrics.RecordPrediction(horizonDays, string(level), probability)
	span.SetAttributes(attribute.Float64("risk.probability", probability))

	return &models.HorizonPrediction{
		HorizonDays:    horizonDays,
		Probability:    probability,
		RiskLevel:      level,
		Explanation:    explanation,
		PredictionDate: s.now(),
	}, fv, nil
}

func (s *predictionService) PredictCovenantRisk(
	ctx context.Context,
	loan *models.Loan,
	covenantID string,
	checks []models.CovenantCheck,
	horizonDays int,
) (*models.CovenantRiskPrediction, error) {
	_, span := s.tracer.Start(ctx, "PredictionService.PredictCovenantRisk",
		trace.WithAttributes(
			attribute.String("loan.id", loan.ID),
			attribute.String("covenant.id", covenantID),
		))
	defer span.End()

	if horizonDays <= 0 {
		err := errors.ErrInvalidHorizon(fmt.Sprint(horizonDays))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	covenant := loan.FindCovenant(covenantID)
	if covenant == nil {
		err := errors.ErrCovenantNotFound(loan.ID, covenantID)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Features come from the full history; the bump only looks at this covenant.
	own := models.ChecksForCovenant(checks, covenantID)
	fv := s.features.EngineerFeatures(loan, checks, horizonDays)
	base := s.model.PredictBreachProbability(fv, horizonDays)

	probability := base
	if models.CountBreached(models.LastChecks(own, covenantHistoryWindow)) > 0 {
		probability = min(base+covenantBreachBump, 1.0)
	}
	level := s.model.PredictRiskLevel(probability)
	s.metrics.RecordPrediction(horizonDays, string(level), probability)

	return &models.CovenantRiskPrediction{
		CovenantID:       covenant.ID,
		CovenantName:     covenant.Name,
		HorizonDays:      horizonDays,
		Probability:      probability,
		BaseProbability:  base,
		RiskLevel:        level,
		CovenantDetails:  *covenant,
		HistoricalChecks: len(own),
		PredictionDate:   s.now(),
	}, nil
}

// notifyLedger reports severe assessments to the breach ledger. It never
// fails the prediction: errors, timeouts and panics are logged and counted.
func (s *predictionService) notifyLedger(ctx context.Context, loanID string, overall models.OverallRisk) (record *models.LedgerBreachRecord) {
	if !overall.Level.IsSevere() {
		return nil
	}

	start := time.Now()
	notification := service.BreachNotification{
		BreachID:       fmt.Sprintf("breach-%s-%d", loanID, s.now().Unix()),
		LoanID:         loanID,
		RuleID:         constants.PredictionRuleID,
		Severity:       overall.Level.LedgerSeverity(),
		PredictedValue: overall.MaxProbability,
		DetectedAt:     s.now(),
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error(ctx, "breach ledger notifier panicked", fmt.Errorf("%v", r),
				logger.String("loan_id", loanID),
				logger.String("breach_id", notification.BreachID),
			)
			s.metrics.RecordLedgerNotification("panic", time.Since(start))
			record = nil
		}
	}()

	nctx, cancel := context.WithTimeout(ctx, s.cfg.LedgerTimeout)
	defer cancel()

	receipt, err := s.notifier.NotifyBreach(nctx, notification)
	if err != nil {
		s.log.Warn(ctx, "breach ledger notification failed",
			logger.String("loan_id", loanID),
			logger.String("breach_id", notification.BreachID),
			logger.Err(err),
		)
		s.metrics.RecordLedgerNotification("failure", time.Since(start))
		return nil
	}
	if receipt == nil {
		s.metrics.RecordLedgerNotification("skipped", time.Since(start))
		return nil
	}
	s.metrics.RecordLedgerNotification("success", time.Since(start))

	breachID := receipt.BreachID
	if breachID == "" {
		breachID = notification.BreachID
	}
	s.log.Info(ctx, "breach recorded on ledger",
		logger.String("loan_id", loanID),
		logger.String("breach_id", breachID),
		logger.String("tx_hash", receipt.TxHash),
	)
	return &models.LedgerBreachRecord{BreachID: breachID, TxHash: receipt.TxHash}
}

// AggregateOverallRisk summarises horizon predictions: the level follows the
// worst horizon, trend compares the last horizon against the first.
func AggregateOverallRisk(preds models.HorizonPredictions) models.OverallRisk {
	if len(preds) == 0 {
		return models.OverallRisk{Level: constants.RiskLevelLow, Trend: models.TrendStable}
	}

	probs := preds.Probabilities()
	sum, maxP := 0.0, probs[0]
	for _, p := range probs {
		sum += p
		maxP = max(maxP, p)
	}

	trend := models.TrendStable
	if probs[len(probs)-1] > probs[0] {
		trend = models.TrendIncreasing
	}

	return models.OverallRisk{
		Level:              service.RiskLevelFor(maxP),
		AverageProbability: sum / float64(len(probs)),
		MaxProbability:     maxP,
		Trend:              trend,
	}
}
