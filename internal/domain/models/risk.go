package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/covenantwatch/pkg/constants"
)

// FeatureCount is the length of every feature vector and weight vector.
const FeatureCount = 18

// FeatureNames fixes the order of the feature vector. Persisted model weights
// are validated against this list at load time.
var FeatureNames = [FeatureCount]string{
	"loan_amount",
	"interest_rate",
	"loan_age_years",
	"days_to_maturity",
	"total_covenants",
	"financial_covenants",
	"operational_covenants",
	"total_esg_clauses",
	"environmental_clauses",
	"social_clauses",
	"governance_clauses",
	"historical_breaches",
	"historical_at_risk",
	"avg_days_since_check",
	"breach_rate",
	"days_to_next_check",
	"prediction_horizon_days",
	"days_to_maturity_at_horizon",
}

// Positions of the history block, which defaults to zero on empty history.
const (
	FeatureHistoricalBreaches = 11
	FeatureHistoricalAtRisk   = 12
	FeatureAvgDaysSinceCheck  = 13
	FeatureBreachRate         = 14
)

// FeatureVector holds one value per entry of FeatureNames.
type FeatureVector [FeatureCount]float64

// Named returns the vector as a name → value map.
func (fv FeatureVector) Named() map[string]float64 {
	out := make(map[string]float64, FeatureCount)
	for i, name := range FeatureNames {
		out[name] = fv[i]
	}
	return out
}

// RiskFactor is a named, severity-tagged contributor to a prediction.
type RiskFactor struct {
	Factor      string             `json:"factor"`
	Severity    constants.Severity `json:"severity"`
	Description string             `json:"description"`
	Impact      constants.Severity `json:"impact"`
}

// Explanation is the human-readable payload attached to each horizon.
type Explanation struct {
	MainExplanation       string              `json:"main_explanation"`
	RiskLevel             constants.RiskLevel `json:"risk_level"`
	Probability           float64             `json:"probability"`
	PredictionHorizonDays int                 `json:"prediction_horizon_days"`
	RiskFactors           []RiskFactor        `json:"risk_factors"`
	FactorExplanation     string              `json:"factor_explanation"`
	CovenantInsights      []string            `json:"covenant_insights"`
	Recommendations       []string            `json:"recommendations"`
	Confidence            float64             `json:"confidence"`
}

// HorizonPrediction is the result for a single horizon.
type HorizonPrediction struct {
	HorizonDays    int                 `json:"horizon_days"`
	Probability    float64             `json:"probability"`
	RiskLevel      constants.RiskLevel `json:"risk_level"`
	Explanation    Explanation         `json:"explanation"`
	PredictionDate time.Time           `json:"prediction_date"`
}

// HorizonKey renders the response key for a horizon, e.g. "30_days".
func HorizonKey(days int) string {
	return strconv.Itoa(days) + "_days"
}

// HorizonPredictions keeps per-horizon results in request order. It encodes
// as a JSON object keyed by HorizonKey without re-sorting keys.
type HorizonPredictions []HorizonPrediction

// Get returns the prediction for a horizon.
func (hp HorizonPredictions) Get(days int) (HorizonPrediction, bool) {
	for _, p := range hp {
		if p.HorizonDays == days {
			return p, true
		}
	}
	return HorizonPrediction{}, false
}

// Probabilities returns the probabilities in order.
func (hp HorizonPredictions) Probabilities() []float64 {
	out := make([]float64, len(hp))
	for i, p := range hp {
		out[i] = p.Probability
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (hp HorizonPredictions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range hp {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(HorizonKey(p.HorizonDays))
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving document order.
func (hp *HorizonPredictions) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("horizon predictions: expected object, got %v", tok)
	}

	out := HorizonPredictions{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var p HorizonPrediction
		if err := dec.Decode(&p); err != nil {
			return err
		}
		if p.HorizonDays == 0 {
			if days, err := strconv.Atoi(strings.TrimSuffix(key, "_days")); err == nil {
				p.HorizonDays = days
			}
		}
		out = append(out, p)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*hp = out
	return nil
}

// Trend values for the overall assessment.
const (
	TrendIncreasing = "increasing"
	TrendStable     = "stable"
)

// OverallRisk aggregates the horizon predictions.
type OverallRisk struct {
	Level              constants.RiskLevel `json:"level"`
	AverageProbability float64             `json:"average_probability"`
	MaxProbability     float64             `json:"max_probability"`
	Trend              string              `json:"trend"`
}

// LedgerBreachRecord is attached to an assessment when the ledger accepted a
// breach notification.
type LedgerBreachRecord struct {
	BreachID string `json:"breach_id"`
	TxHash   string `json:"tx_hash,omitempty"`
}

// RiskAssessment is the aggregated, multi-horizon prediction for a loan.
type RiskAssessment struct {
	LoanID       string              `json:"loan_id"`
	Predictions  HorizonPredictions  `json:"predictions"`
	OverallRisk  OverallRisk         `json:"overall_risk"`
	GeneratedAt  time.Time           `json:"generated_at"`
	ModelVersion string              `json:"model_version,omitempty"`
	LedgerBreach *LedgerBreachRecord `json:"ledger_breach_detected,omitempty"`
}

// Horizons lists the horizons of the assessment in order.
func (a *RiskAssessment) Horizons() []int {
	out := make([]int, len(a.Predictions))
	for i, p := range a.Predictions {
		out[i] = p.HorizonDays
	}
	return out
}

// CovenantRiskPrediction is the single-covenant prediction.
type CovenantRiskPrediction struct {
	CovenantID       string              `json:"covenant_id"`
	CovenantName     string              `json:"covenant_name"`
	HorizonDays      int                 `json:"horizon_days"`
	Probability      float64             `json:"probability"`
	BaseProbability  float64             `json:"base_probability"`
	RiskLevel        constants.RiskLevel `json:"risk_level"`
	CovenantDetails  Covenant            `json:"covenant_details"`
	HistoricalChecks int                 `json:"historical_checks"`
	PredictionDate   time.Time           `json:"prediction_date"`
}

// PredictionSnapshot is a persisted assessment, listed as prediction history.
type PredictionSnapshot struct {
	ID           string              `json:"id"`
	LoanID       string              `json:"loan_id"`
	Horizons     []int               `json:"horizons"`
	OverallLevel constants.RiskLevel `json:"overall_level"`
	MaxProb      float64             `json:"max_probability"`
	ModelVersion string              `json:"model_version"`
	Assessment   *RiskAssessment     `json:"assessment"`
	CreatedAt    time.Time           `json:"created_at"`
}
