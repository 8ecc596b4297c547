package service_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

func newModel(t *testing.T, noise service.NoiseConfig) service.RiskModel {
	t.Helper()
	m, err := service.NewRiskModel(nil, noise, clock)
	require.NoError(t, err)
	return m
}

func TestPredictRiskLevel_Partition(t *testing.T) {
	m := newModel(t, service.NoiseConfig{Mode: constants.NoiseModeOff})

	tests := []struct {
		p    float64
		want constants.RiskLevel
	}{
		{0, constants.RiskLevelLow},
		{0.2999, constants.RiskLevelLow},
		{0.3, constants.RiskLevelMedium},
		{0.5999, constants.RiskLevelMedium},
		{0.6, constants.RiskLevelHigh},
		{0.7999, constants.RiskLevelHigh},
		{0.8, constants.RiskLevelCritical},
		{1, constants.RiskLevelCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.PredictRiskLevel(tt.p), "p=%v", tt.p)
	}
}

func TestPredictBreachProbability_NoiseOff(t *testing.T) {
	m := newModel(t, service.NoiseConfig{Mode: constants.NoiseModeOff})

	var zero models.FeatureVector
	assert.Equal(t, 0.5, m.PredictBreachProbability(zero, 30))

	var ones models.FeatureVector
	for i := range ones {
		ones[i] = 1
	}
	raw := 0.0
	for _, w := range m.Parameters().Weights {
		raw += w
	}
	want := 1 / (1 + math.Exp(-raw*(1+90.0/365*0.2)))
	assert.InDelta(t, want, m.PredictBreachProbability(ones, 90), 1e-12)
}

func TestPredictBreachProbability_PerturbationBound(t *testing.T) {
	m := newModel(t, service.NoiseConfig{Mode: constants.NoiseModeStochastic, Seed: 7})

	var zero models.FeatureVector
	const samples = 2000
	within := 0
	for i := 0; i < samples; i++ {
		p := m.PredictBreachProbability(zero, 30)
		require.GreaterOrEqual(t, p, 0.0)
		require.LessOrEqual(t, p, 1.0)
		if math.Abs(p-0.5) <= 0.05 {
			within++
		}
	}
	assert.GreaterOrEqual(t, float64(within)/samples, 0.93)
}

func TestPredictBreachProbability_SeededReproducible(t *testing.T) {
	a := newModel(t, service.NoiseConfig{Mode: constants.NoiseModeStochastic, Seed: 42})
	b := newModel(t, service.NoiseConfig{Mode: constants.NoiseModeStochastic, Seed: 42})

	fe := service.NewFeatureEngineer(clock)
	fv := fe.EngineerFeatures(newTestLoan(3, 6.0, 400), nil, 60)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.PredictBreachProbability(fv, 60), b.PredictBreachProbability(fv, 60))
	}

	seeded := newModel(t, service.NoiseConfig{Mode: constants.NoiseModeSeeded})
	first := seeded.PredictBreachProbability(fv, 60)
	assert.Equal(t, first, seeded.PredictBreachProbability(fv, 60))
	assert.InDelta(t, 0.5, first, 0.5)
}

func TestPredictBreachProbability_Clamped(t *testing.T) {
	params := models.DefaultModelParameters()
	params.Bias = 50
	params.NoiseStdDev = 0.5
	m, err := service.NewRiskModel(params, service.NoiseConfig{Mode: constants.NoiseModeStochastic, Seed: 3}, clock)
	require.NoError(t, err)

	var zero models.FeatureVector
	for i := 0; i < 200; i++ {
		p := m.PredictBreachProbability(zero, 30)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestSetParameters_RejectsMismatchedLayout(t *testing.T) {
	m := newModel(t, service.NoiseConfig{Mode: constants.NoiseModeOff})

	bad := models.DefaultModelParameters()
	bad.FeatureOrder = bad.FeatureOrder[1:]
	assert.Error(t, m.SetParameters(bad))
	assert.Error(t, m.SetParameters(nil))
	assert.Equal(t, models.DefaultModelVersion, m.Parameters().Version)

	next := models.DefaultModelParameters()
	next.Version = "v2"
	require.NoError(t, m.SetParameters(next))
	assert.Equal(t, "v2", m.Parameters().Version)

	_, err := service.NewRiskModel(bad, service.NoiseConfig{}, clock)
	assert.Error(t, err)
}

func TestIdentifyRiskFactors_ThreeFactorExample(t *testing.T) {
	m := newModel(t, service.NoiseConfig{Mode: constants.NoiseModeOff})
	loan := newTestLoan(6, 9.0, 400)
	checks := newChecks("cov-a", false, true, false, true, false)

	factors := m.IdentifyRiskFactors(loan, checks, models.FeatureVector{})

	require.Len(t, factors, 3)
	assert.Equal(t, models.RiskFactor{
		Factor:      service.FactorHistoricalBreaches,
		Severity:    constants.SeverityHigh,
		Description: "2 recent covenant breach(es) detected",
		Impact:      constants.SeverityHigh,
	}, factors[0])
	assert.Equal(t, service.FactorHighCovenantCount, factors[1].Factor)
	assert.Equal(t, constants.SeverityLow, factors[1].Severity)
	assert.Equal(t, "6 active covenants increase monitoring complexity", factors[1].Description)
	assert.Equal(t, service.FactorHighInterestRate, factors[2].Factor)
	assert.Equal(t, constants.SeverityMedium, factors[2].Severity)
	assert.Equal(t, "Interest rate of 9.0% indicates higher risk profile", factors[2].Description)
}

func TestIdentifyRiskFactors_OnlyRecentChecksCount(t *testing.T) {
	m := newModel(t, service.NoiseConfig{Mode: constants.NoiseModeOff})
	loan := newTestLoan(2, 5.0, 400)
	checks := newChecks("cov-a", true, true, false, false, false, false, false)

	assert.Empty(t, m.IdentifyRiskFactors(loan, checks, models.FeatureVector{}))
}

func TestIdentifyRiskFactors_ApproachingMaturity(t *testing.T) {
	m := newModel(t, service.NoiseConfig{Mode: constants.NoiseModeOff})
	loan := newTestLoan(1, 8.25, 90)

	factors := m.IdentifyRiskFactors(loan, nil, models.FeatureVector{})
	require.Len(t, factors, 2)
	assert.Equal(t, service.FactorApproachingMaturity, factors[0].Factor)
	assert.Equal(t, "Loan matures in 90 days", factors[0].Description)
	assert.Equal(t, "Interest rate of 8.25% indicates higher risk profile", factors[1].Description)
}
