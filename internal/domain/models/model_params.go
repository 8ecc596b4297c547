package models

import (
	"fmt"
	"math"
)

// DefaultModelVersion identifies the built-in parameter set.
const DefaultModelVersion = "v1-seed42"

// DefaultNoiseStdDev keeps ~95% of perturbations within ±0.05.
const DefaultNoiseStdDev = 0.025

// defaultWeights are the first 18 standard-normal draws of a seed-42 Mersenne
// Twister stream, scaled by 0.1. They stand in for a trained model.
var defaultWeights = [FeatureCount]float64{
	0.049671415, -0.01382643, 0.064768854, 0.152302986,
	-0.023415337, -0.023413696, 0.157921282, 0.076743473,
	-0.046947439, 0.054256004, -0.046341769, -0.046572975,
	0.024196227, -0.191328024, -0.172491783, -0.056228753,
	-0.101283112, 0.031424733,
}

// ModelParameters is a versioned set of linear-model weights.
type ModelParameters struct {
	Version      string    `json:"version" yaml:"version"`
	FeatureOrder []string  `json:"feature_order" yaml:"feature_order"`
	Weights      []float64 `json:"weights" yaml:"weights"`
	Bias         float64   `json:"bias" yaml:"bias"`
	NoiseStdDev  float64   `json:"noise_std_dev" yaml:"noise_std_dev"`
}

// DefaultModelParameters returns the built-in parameter set.
func DefaultModelParameters() *ModelParameters {
	order := make([]string, FeatureCount)
	copy(order, FeatureNames[:])
	weights := make([]float64, FeatureCount)
	copy(weights, defaultWeights[:])

	return &ModelParameters{
		Version:      DefaultModelVersion,
		FeatureOrder: order,
		Weights:      weights,
		Bias:         0,
		NoiseStdDev:  DefaultNoiseStdDev,
	}
}

// Validate checks the parameters against the feature layout.
func (p *ModelParameters) Validate() error {
	if p.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(p.FeatureOrder) != FeatureCount {
		return fmt.Errorf("feature_order has %d entries, want %d", len(p.FeatureOrder), FeatureCount)
	}
	for i, name := range p.FeatureOrder {
		if name != FeatureNames[i] {
			return fmt.Errorf("feature_order[%d] is %q, want %q", i, name, FeatureNames[i])
		}
	}
	if len(p.Weights) != FeatureCount {
		return fmt.Errorf("weights has %d entries, want %d", len(p.Weights), FeatureCount)
	}
	for i, w := range p.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weights[%d] is not finite", i)
		}
	}
	if math.IsNaN(p.Bias) || math.IsInf(p.Bias, 0) {
		return fmt.Errorf("bias is not finite")
	}
	if p.NoiseStdDev < 0 || math.IsNaN(p.NoiseStdDev) {
		return fmt.Errorf("noise_std_dev must be >= 0")
	}
	return nil
}
