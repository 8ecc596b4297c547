package service

import (
	"fmt"
	"time"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

// Risk factor names. The explainability engine keys recommendations on these.
const (
	FactorHistoricalBreaches  = "Historical Breaches"
	FactorApproachingMaturity = "Approaching Maturity"
	FactorHighCovenantCount   = "High Covenant Count"
	FactorHighInterestRate    = "High Interest Rate"
)

const (
	recentCheckWindow       = 5
	maturityWarningDays     = 180
	covenantCountThreshold  = 5
	interestRateThresholdPc = 8.0
)

type factorInput struct {
	loan     *models.Loan
	checks   []models.CovenantCheck
	features models.FeatureVector
	now      time.Time
}

type riskFactorRule struct {
	name     string
	severity constants.Severity
	evaluate func(in factorInput) (description string, ok bool)
}

// riskFactorRules are evaluated in order; each contributes at most one factor.
var riskFactorRules = []riskFactorRule{
	{
		name:     FactorHistoricalBreaches,
		severity: constants.SeverityHigh,
		evaluate: func(in factorInput) (string, bool) {
			n := models.CountBreached(models.LastChecks(in.checks, recentCheckWindow))
			if n == 0 {
				return "", false
			}
			return fmt.Sprintf("%d recent covenant breach(es) detected", n), true
		},
	},
	{
		name:     FactorApproachingMaturity,
		severity: constants.SeverityMedium,
		evaluate: func(in factorInput) (string, bool) {
			days := int(WholeDays(in.now, in.loan.MaturityDate))
			if days >= maturityWarningDays {
				return "", false
			}
			return fmt.Sprintf("Loan matures in %d days", days), true
		},
	},
	{
		name:     FactorHighCovenantCount,
		severity: constants.SeverityLow,
		evaluate: func(in factorInput) (string, bool) {
			n := len(in.loan.Covenants)
			if n <= covenantCountThreshold {
				return "", false
			}
			return fmt.Sprintf("%d active covenants increase monitoring complexity", n), true
		},
	},
	{
		name:     FactorHighInterestRate,
		severity: constants.SeverityMedium,
		evaluate: func(in factorInput) (string, bool) {
			if in.loan.InterestRate <= interestRateThresholdPc {
				return "", false
			}
			return fmt.Sprintf("Interest rate of %s%% indicates higher risk profile", formatPercentRate(in.loan.InterestRate)), true
		},
	},
}
