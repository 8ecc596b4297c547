package service

import (
	"math"
	"time"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

const (
	normalizationFloor  = 1e-6
	noUpcomingCheckDays = 365.0
	daysPerYear         = 365.0
	hoursPerDay         = 24.0
)

// FeatureEngineer turns a loan and its check history into the model's input.
// FeatureEngineer 将贷款及其检查历史转换为模型输入。
type FeatureEngineer interface {
	// EngineerFeatures builds the normalized vector in models.FeatureNames order.
	// EngineerFeatures 按 models.FeatureNames 顺序构建归一化特征向量。
	EngineerFeatures(loan *models.Loan, checks []models.CovenantCheck, horizonDays int) models.FeatureVector

	// RawFeatures builds the same vector without normalization.
	RawFeatures(loan *models.Loan, checks []models.CovenantCheck, horizonDays int) models.FeatureVector
}

var _ FeatureEngineer = (*featureEngineer)(nil)

type featureEngineer struct {
	now func() time.Time
}

// NewFeatureEngineer creates a FeatureEngineer. A nil clock means time.Now.
func NewFeatureEngineer(now func() time.Time) FeatureEngineer {
	if now == nil {
		now = time.Now
	}
	return &featureEngineer{now: now}
}

func (f *featureEngineer) EngineerFeatures(loan *models.Loan, checks []models.CovenantCheck, horizonDays int) models.FeatureVector {
	return Normalize(f.RawFeatures(loan, checks, horizonDays))
}

func (f *featureEngineer) RawFeatures(loan *models.Loan, checks []models.CovenantCheck, horizonDays int) models.FeatureVector {
	now := f.now()
	var fv models.FeatureVector

	// loan
	fv[0] = loan.PrincipalAmount.InexactFloat64()
	fv[1] = loan.InterestRate
	fv[2] = WholeDays(loan.StartDate, now) / daysPerYear
	fv[3] = WholeDays(now, loan.MaturityDate)
	fv[4] = float64(len(loan.Covenants))
	fv[5] = float64(loan.CountCovenants(constants.CovenantTypeFinancial))
	fv[6] = float64(loan.CountCovenants(constants.CovenantTypeOperational))
	fv[7] = float64(len(loan.ESGClauses))
	fv[8] = float64(loan.CountESGClauses(constants.ESGCategoryEnvironmental))
	fv[9] = float64(loan.CountESGClauses(constants.ESGCategorySocial))
	fv[10] = float64(loan.CountESGClauses(constants.ESGCategoryGovernance))

	// history, left at zero when there is none
	if len(checks) > 0 {
		var breaches, atRisk, daysSince float64
		for _, c := range checks {
			if c.IsBreached {
				breaches++
			}
			if c.Status == constants.CovenantStatusAtRisk {
				atRisk++
			}
			daysSince += WholeDays(c.CheckDate, now)
		}
		total := float64(len(checks))
		fv[models.FeatureHistoricalBreaches] = breaches
		fv[models.FeatureHistoricalAtRisk] = atRisk
		fv[models.FeatureAvgDaysSinceCheck] = daysSince / total
		fv[models.FeatureBreachRate] = breaches / total
	}

	// temporal
	fv[15] = daysToNextCheck(loan.Covenants, now)
	fv[16] = float64(horizonDays)
	fv[17] = WholeDays(now.AddDate(0, 0, horizonDays), loan.MaturityDate)

	return fv
}

// Normalize divides each value by max(|v|, 1e-6), mapping every entry into [-1, 1].
func Normalize(fv models.FeatureVector) models.FeatureVector {
	var out models.FeatureVector
	for i, v := range fv {
		if math.IsNaN(v) {
			continue
		}
		if math.IsInf(v, 0) {
			out[i] = math.Copysign(1, v)
			continue
		}
		out[i] = v / math.Max(math.Abs(v), normalizationFloor)
	}
	return out
}

// WholeDays returns the whole days between from and to, floored, so twelve
// hours ahead is 0 and twelve hours behind is -1.
func WholeDays(from, to time.Time) float64 {
	return math.Floor(to.Sub(from).Hours() / hoursPerDay)
}

func daysToNextCheck(covenants []models.Covenant, now time.Time) float64 {
	best := math.Inf(1)
	for _, c := range covenants {
		if !c.NextCheckDate.After(now) {
			continue
		}
		if d := WholeDays(now, c.NextCheckDate); d < best {
			best = d
		}
	}
	if math.IsInf(best, 1) {
		return noUpcomingCheckDays
	}
	return best
}

// NextCovenantCheck returns the covenant whose next check is soonest and
// strictly after now, or nil.
func NextCovenantCheck(covenants []models.Covenant, now time.Time) *models.Covenant {
	var next *models.Covenant
	for i := range covenants {
		c := &covenants[i]
		if !c.NextCheckDate.After(now) {
			continue
		}
		if next == nil || c.NextCheckDate.Before(next.NextCheckDate) {
			next = c
		}
	}
	return next
}
