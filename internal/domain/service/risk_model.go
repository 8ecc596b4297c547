package service

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
)

const horizonUncertainty = 0.2

// RiskModel scores feature vectors into breach probabilities.
// RiskModel 将特征向量评分为违约概率。
type RiskModel interface {
	// PredictBreachProbability returns a probability in [0, 1].
	// PredictBreachProbability 返回 [0, 1] 区间内的概率。
	PredictBreachProbability(features models.FeatureVector, horizonDays int) float64

	// PredictRiskLevel maps a probability onto its risk band.
	// PredictRiskLevel 将概率映射到风险级别。
	PredictRiskLevel(probability float64) constants.RiskLevel

	// IdentifyRiskFactors evaluates the factor rule table in order.
	// IdentifyRiskFactors 按顺序执行风险因素规则表。
	IdentifyRiskFactors(loan *models.Loan, checks []models.CovenantCheck, features models.FeatureVector) []models.RiskFactor

	// Parameters returns the active parameter set.
	Parameters() *models.ModelParameters

	// SetParameters swaps in a new, validated parameter set.
	SetParameters(params *models.ModelParameters) error
}

// NoiseConfig controls the perturbation added to each probability.
type NoiseConfig struct {
	Mode constants.NoiseMode
	// Seed initialises the stochastic source. Zero means seed from the clock.
	Seed int64
}

var _ RiskModel = (*linearRiskModel)(nil)

type linearRiskModel struct {
	params atomic.Pointer[models.ModelParameters]
	noise  NoiseConfig
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRiskModel creates the linear risk model. A nil params uses
// models.DefaultModelParameters, a nil clock uses time.Now.
func NewRiskModel(params *models.ModelParameters, noise NoiseConfig, now func() time.Time) (RiskModel, error) {
	if params == nil {
		params = models.DefaultModelParameters()
	}
	if noise.Mode == "" {
		noise.Mode = constants.NoiseModeStochastic
	}
	if now == nil {
		now = time.Now
	}
	seed := noise.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	m := &linearRiskModel{
		noise: noise,
		now:   now,
		rng:   rand.New(rand.NewSource(seed)),
	}
	if err := m.SetParameters(params); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *linearRiskModel) Parameters() *models.ModelParameters {
	return m.params.Load()
}

func (m *linearRiskModel) SetParameters(params *models.ModelParameters) error {
	if params == nil {
		return errors.ErrInvalidModel("parameters are nil")
	}
	if err := params.Validate(); err != nil {
		return errors.ErrInvalidModel(err.Error())
	}
	m.params.Store(params)
	return nil
}

func (m *linearRiskModel) PredictBreachProbability(features models.FeatureVector, horizonDays int) float64 {
	p := m.params.Load()

	raw := p.Bias
	for i, w := range p.Weights {
		raw += features[i] * w
	}
	adjusted := raw * (1 + float64(horizonDays)/daysPerYear*horizonUncertainty)
	probability := sigmoid(adjusted)

	probability += m.perturbation(features, horizonDays, p.NoiseStdDev)
	return clamp01(probability)
}

func (m *linearRiskModel) perturbation(features models.FeatureVector, horizonDays int, stdDev float64) float64 {
	if stdDev == 0 {
		return 0
	}
	switch m.noise.Mode {
	case constants.NoiseModeOff:
		return 0
	case constants.NoiseModeSeeded:
		r := rand.New(rand.NewSource(inputSeed(features, horizonDays)))
		return r.NormFloat64() * stdDev
	default:
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.rng.NormFloat64() * stdDev
	}
}

func (m *linearRiskModel) PredictRiskLevel(probability float64) constants.RiskLevel {
	return RiskLevelFor(probability)
}

func (m *linearRiskModel) IdentifyRiskFactors(loan *models.Loan, checks []models.CovenantCheck, features models.FeatureVector) []models.RiskFactor {
	in := factorInput{loan: loan, checks: checks, features: features, now: m.now()}
	factors := make([]models.RiskFactor, 0, len(riskFactorRules))
	for _, rule := range riskFactorRules {
		desc, ok := rule.evaluate(in)
		if !ok {
			continue
		}
		factors = append(factors, models.RiskFactor{
			Factor:      rule.name,
			Severity:    rule.severity,
			Description: desc,
			Impact:      rule.severity,
		})
	}
	return factors
}

// RiskLevelFor partitions [0, 1] at 0.3, 0.6 and 0.8.
func RiskLevelFor(probability float64) constants.RiskLevel {
	switch {
	case probability < constants.RiskThresholdLow:
		return constants.RiskLevelLow
	case probability < constants.RiskThresholdMedium:
		return constants.RiskLevelMedium
	case probability < constants.RiskThresholdHigh:
		return constants.RiskLevelHigh
	default:
		return constants.RiskLevelCritical
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// inputSeed hashes the feature vector and horizon so identical inputs draw
// identical noise.
func inputSeed(features models.FeatureVector, horizonDays int) int64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range features {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = h.Write(buf[:])
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(horizonDays))
	_, _ = h.Write(buf[:])
	return int64(h.Sum64())
}

// formatPercentRate renders an interest rate the way analysts type it:
// integral rates keep one decimal ("9.0"), others print as-is ("8.25").
func formatPercentRate(rate float64) string {
	if rate == math.Trunc(rate) && !math.IsInf(rate, 0) {
		return fmt.Sprintf("%.1f", rate)
	}
	return fmt.Sprintf("%g", rate)
}
