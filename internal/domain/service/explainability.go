package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

const (
	noFactorsText               = "No significant risk factors identified at this time."
	fallbackRecommendation      = "Continue standard monitoring procedures"
	breachHistoryRecommendation = "Implement enhanced monitoring and reporting requirements"

	confidenceBase      = 0.5
	confidencePerFactor = 0.1
	confidenceExtremity = 0.3
	confidenceCeiling   = 0.95
)

// summaryTemplates take the probability as a percentage and the horizon in days.
var summaryTemplates = map[constants.RiskLevel]string{
	constants.RiskLevelCritical: "CRITICAL RISK: There is a %.1f%% probability of a covenant breach within the next %d days. Immediate action is required.",
	constants.RiskLevelHigh:     "HIGH RISK: There is a %.1f%% probability of a covenant breach within the next %d days. Close monitoring and proactive measures recommended.",
	constants.RiskLevelMedium:   "MODERATE RISK: There is a %.1f%% probability of a covenant breach within the next %d days. Enhanced monitoring is advised.",
	constants.RiskLevelLow:      "LOW RISK: There is a %.1f%% probability of a covenant breach within the next %d days. Current risk level is manageable.",
}

var levelRecommendations = map[constants.RiskLevel][]string{
	constants.RiskLevelCritical: {
		"Schedule immediate review meeting with borrower",
		"Request updated financial statements and performance metrics",
		"Consider covenant waivers or amendments if appropriate",
	},
	constants.RiskLevelHigh: {
		"Schedule immediate review meeting with borrower",
		"Request updated financial statements and performance metrics",
		"Consider covenant waivers or amendments if appropriate",
	},
	constants.RiskLevelMedium: {
		"Increase monitoring frequency for at-risk covenants",
		"Request quarterly financial updates from borrower",
	},
}

// ExplainabilityEngine renders a prediction for analysts.
// ExplainabilityEngine 为分析师生成可读的预测解释。
type ExplainabilityEngine interface {
	ExplainPrediction(loan *models.Loan, probability float64, level constants.RiskLevel, horizonDays int, factors []models.RiskFactor) models.Explanation
}

var _ ExplainabilityEngine = (*explainabilityEngine)(nil)

type explainabilityEngine struct {
	now func() time.Time
}

// NewExplainabilityEngine creates an ExplainabilityEngine. A nil clock means time.Now.
func NewExplainabilityEngine(now func() time.Time) ExplainabilityEngine {
	if now == nil {
		now = time.Now
	}
	return &explainabilityEngine{now: now}
}

func (e *explainabilityEngine) ExplainPrediction(
	loan *models.Loan,
	probability float64,
	level constants.RiskLevel,
	horizonDays int,
	factors []models.RiskFactor,
) models.Explanation {
	if factors == nil {
		factors = []models.RiskFactor{}
	}
	return models.Explanation{
		MainExplanation:       MainExplanation(probability, level, horizonDays),
		RiskLevel:             level,
		Probability:           probability,
		PredictionHorizonDays: horizonDays,
		RiskFactors:           factors,
		FactorExplanation:     FactorExplanation(factors),
		CovenantInsights:      e.covenantInsights(loan),
		Recommendations:       Recommendations(level, factors),
		Confidence:            Confidence(len(factors), probability),
	}
}

// MainExplanation renders the summary sentence for a level. Unknown levels
// fall back to the low-risk wording.
func MainExplanation(probability float64, level constants.RiskLevel, horizonDays int) string {
	tmpl, ok := summaryTemplates[level]
	if !ok {
		tmpl = summaryTemplates[constants.RiskLevelLow]
	}
	return fmt.Sprintf(tmpl, probability*100, horizonDays)
}

// FactorExplanation renders one line per factor.
func FactorExplanation(factors []models.RiskFactor) string {
	if len(factors) == 0 {
		return noFactorsText
	}
	lines := make([]string, len(factors))
	for i, f := range factors {
		lines[i] = fmt.Sprintf("- %s: %s (Severity: %s)", f.Factor, f.Description, f.Severity)
	}
	return strings.Join(lines, "\n")
}

func (e *explainabilityEngine) covenantInsights(loan *models.Loan) []string {
	insights := []string{}
	now := e.now()

	if next := NextCovenantCheck(loan.Covenants, now); next != nil {
		insights = append(insights, fmt.Sprintf("Next covenant check (%s) in %d days", next.Name, int(WholeDays(now, next.NextCheckDate))))
	}
	if n := loan.CountCovenants(constants.CovenantTypeFinancial); n > 0 {
		insights = append(insights, fmt.Sprintf("%d financial covenant(s) require regular monitoring", n))
	}
	return insights
}

// Recommendations combines the level table with factor-driven advice.
func Recommendations(level constants.RiskLevel, factors []models.RiskFactor) []string {
	recs := append([]string{}, levelRecommendations[level]...)

	for _, f := range factors {
		if f.Severity == constants.SeverityHigh && strings.Contains(f.Factor, FactorHistoricalBreaches) {
			recs = append(recs, breachHistoryRecommendation)
		}
	}

	if len(recs) == 0 {
		recs = append(recs, fallbackRecommendation)
	}
	return recs
}

// Confidence grows with the number of factors and with distance from 0.5,
// capped at 0.95.
func Confidence(factorCount int, probability float64) float64 {
	extremity := math.Abs(probability-0.5) * 2
	c := confidenceBase + float64(factorCount)*confidencePerFactor + extremity*confidenceExtremity
	return math.Min(c, confidenceCeiling)
}
