package detectors

import (
	"math"
	"sort"
	"time"

	"github.com/compliance/aml-engine/internal/models"
)

// WeightDetector flags structuring (smurfing) by combining daily
// transaction volume and frequency into a decayed weight variable and
// checking absolute threshold-avoidance indicators on top of it.
type WeightDetector struct {
	LambdaDecay               float64
	SmallTransactionThreshold float64
	BarThreshold              float64
	ThresholdAvoidanceMin     float64
	ThresholdAvoidanceMax     float64
	SmurfingCumulativeMin     float64
	NormalSaverDensityWeeks   float64
	SmurferDensityWeeks       float64
}

// NewWeightDetector returns a detector with the calibrated defaults.
func NewWeightDetector() *WeightDetector {
	return &WeightDetector{
		LambdaDecay:               0.05,
		SmallTransactionThreshold: 2000.0,
		BarThreshold:              10000.0,
		ThresholdAvoidanceMin:     7000.0,
		ThresholdAvoidanceMax:     9999.0,
		SmurfingCumulativeMin:     50000.0,
		NormalSaverDensityWeeks:   0.25,
		SmurferDensityWeeks:       0.5,
	}
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysBetween(from, to time.Time) int {
	return int(dateOf(to).Sub(dateOf(from)).Hours() / 24)
}

// CalculateWeight computes Weight = sum over days of
// log(1+amount) * log(1+count) * avoidanceFactor * exp(-lambda*daysAgo).
// Transactions without a timestamp count toward the reference day.
func (d *WeightDetector) CalculateWeight(txns []models.Transaction, reference time.Time) float64 {
	if len(txns) == 0 {
		return 0.0
	}

	type dayAgg struct {
		amountSum float64
		count     int
		// timestamped cash investments on this day, for the avoidance factor
		barInvestments int
		nearThreshold  int
	}

	days := make(map[time.Time]*dayAgg)
	for _, t := range txns {
		ts := reference
		if t.Timestamp != nil {
			ts = *t.Timestamp
		}
		day := dateOf(ts)
		agg := days[day]
		if agg == nil {
			agg = &dayAgg{}
			days[day] = agg
		}
		agg.amountSum += t.Amount
		agg.count++

		if t.Timestamp != nil && t.PaymentMethod == models.PaymentMethodCash &&
			t.TransactionType == models.TransactionTypeInvestment {
			agg.barInvestments++
			if t.Amount >= d.ThresholdAvoidanceMin && t.Amount < d.ThresholdAvoidanceMax {
				agg.nearThreshold++
			}
		}
	}

	ordered := make([]time.Time, 0, len(days))
	for day := range days {
		ordered = append(ordered, day)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	var total float64
	for _, day := range ordered {
		agg := days[day]
		aTilde := math.Log1p(agg.amountSum)
		fTilde := math.Log1p(float64(agg.count))

		factor := 1.0
		if agg.barInvestments > 0 && agg.nearThreshold > 0 {
			ratio := float64(agg.nearThreshold) / float64(agg.barInvestments)
			factor = 1.0 + ratio*1.5
		}

		daysAgo := daysBetween(day, reference)
		decay := math.Exp(-d.LambdaDecay * float64(daysAgo))

		total += aTilde * fTilde * factor * decay
	}

	return total
}

// CalculateZScore compares the current weight against a baseline of
// historical window weights. Sparse histories fall back to monthly
// buckets; dense ones use rolling windows stepped by seven days.
func (d *WeightDetector) CalculateZScore(currentWeight float64, historical []models.Transaction, windowDays int, reference time.Time) float64 {
	timestamped := make([]models.Transaction, 0, len(historical))
	for _, t := range historical {
		if t.Timestamp != nil {
			timestamped = append(timestamped, t)
		}
	}
	if len(historical) == 0 || len(timestamped) == 0 {
		return 0.0
	}
	sort.Slice(timestamped, func(i, j int) bool {
		return timestamped[i].Timestamp.Before(*timestamped[j].Timestamp)
	})

	var baseline []float64

	if len(historical) < 20 {
		// monthly buckets
		type month struct {
			year int
			mon  time.Month
		}
		buckets := make(map[month][]models.Transaction)
		var order []month
		for _, t := range timestamped {
			m := month{t.Timestamp.Year(), t.Timestamp.Month()}
			if _, ok := buckets[m]; !ok {
				order = append(order, m)
			}
			buckets[m] = append(buckets[m], t)
		}
		for _, m := range order {
			if len(buckets[m]) >= 1 {
				baseline = append(baseline, d.CalculateWeight(buckets[m], reference))
			}
		}
	} else {
		minTs := *timestamped[0].Timestamp
		maxTs := *timestamped[len(timestamped)-1].Timestamp
		current := minTs.AddDate(0, 0, windowDays)
		for !current.After(maxTs) {
			start := current.AddDate(0, 0, -windowDays)
			var window []models.Transaction
			for _, t := range timestamped {
				if !t.Timestamp.Before(start) && t.Timestamp.Before(current) {
					window = append(window, t)
				}
			}
			if len(window) >= 2 {
				baseline = append(baseline, d.CalculateWeight(window, reference))
			}
			current = current.AddDate(0, 0, 7)
		}
	}

	if len(baseline) < 2 {
		return 0.0
	}

	mu := mean(baseline)
	sigma := stdDev(baseline)
	if sigma < 0.01 {
		sigma = 0.01
	}

	return (currentWeight - mu) / sigma
}

// SmallTransactionRatio is the share of transactions under the small
// transaction threshold.
func (d *WeightDetector) SmallTransactionRatio(txns []models.Transaction) float64 {
	if len(txns) == 0 {
		return 0.0
	}
	small := 0
	for _, t := range txns {
		if t.Amount < d.SmallTransactionThreshold {
			small++
		}
	}
	return float64(small) / float64(len(txns))
}

// DetectThresholdAvoidance returns the share of cash investments that sit
// just under the reporting threshold and their cumulative amount.
func (d *WeightDetector) DetectThresholdAvoidance(txns []models.Transaction) (float64, float64) {
	var barInvestments []models.Transaction
	for _, t := range txns {
		if t.PaymentMethod == models.PaymentMethodCash && t.TransactionType == models.TransactionTypeInvestment {
			barInvestments = append(barInvestments, t)
		}
	}
	if len(barInvestments) == 0 {
		return 0.0, 0.0
	}

	count := 0
	var cumulative float64
	for _, t := range barInvestments {
		if t.Amount >= d.ThresholdAvoidanceMin && t.Amount < d.ThresholdAvoidanceMax {
			count++
			cumulative += t.Amount
		}
	}

	return float64(count) / float64(len(barInvestments)), cumulative
}

// TemporalDensityWeeks is the number of timestamped transactions per week
// over the span they actually cover.
func (d *WeightDetector) TemporalDensityWeeks(txns []models.Transaction) float64 {
	var timestamped []time.Time
	for _, t := range txns {
		if t.Timestamp != nil {
			timestamped = append(timestamped, *t.Timestamp)
		}
	}
	if len(timestamped) == 0 {
		return 0.0
	}

	minTs, maxTs := timestamped[0], timestamped[0]
	for _, ts := range timestamped[1:] {
		if ts.Before(minTs) {
			minTs = ts
		}
		if ts.After(maxTs) {
			maxTs = ts
		}
	}

	actualDays := int(maxTs.Sub(minTs).Hours()/24) + 1
	if actualDays < 1 {
		actualDays = 1
	}
	actualWeeks := float64(actualDays) / 7.0

	return float64(len(timestamped)) / actualWeeks
}

// CheckSourceOfFunds reports whether cumulative investments exceed the
// declared source of funds. Without a declaration it never triggers.
func (d *WeightDetector) CheckSourceOfFunds(txns []models.Transaction, info *models.CustomerInfo) (bool, float64) {
	if info == nil || info.SourceOfFunds == nil {
		return false, 0.0
	}
	var cumulative float64
	for _, t := range txns {
		if t.TransactionType == models.TransactionTypeInvestment {
			cumulative += t.Amount
		}
	}
	return cumulative > *info.SourceOfFunds, cumulative
}

// CheckEconomicPlausibility flags threshold-avoidance sums that cannot be
// explained by roughly six months of declared income.
func (d *WeightDetector) CheckEconomicPlausibility(txns []models.Transaction, info *models.CustomerInfo) bool {
	if info == nil || info.MonthlyIncome == nil {
		return false
	}

	count := 0
	var cumulative float64
	for _, t := range txns {
		if t.PaymentMethod == models.PaymentMethodCash && t.TransactionType == models.TransactionTypeInvestment &&
			t.Amount >= d.ThresholdAvoidanceMin && t.Amount < d.ThresholdAvoidanceMax {
			count++
			cumulative += t.Amount
		}
	}
	if count < 3 {
		return false
	}

	return cumulative > *info.MonthlyIncome*6
}

// Analyze runs the full anti-smurfing analysis over the recent window
// against the historical baseline.
func (d *WeightDetector) Analyze(recent, historical []models.Transaction, info *models.CustomerInfo, reference time.Time) models.WeightAnalysis {
	weight := d.CalculateWeight(recent, reference)

	zScore7d := d.CalculateZScore(weight, historical, 7, reference)
	zScore30d := d.CalculateZScore(weight, historical, 30, reference)
	zScore90d := d.CalculateZScore(weight, historical, 90, reference)

	smallRatio := d.SmallTransactionRatio(recent)
	avoidanceRatio, cumulativeLarge := d.DetectThresholdAvoidance(recent)
	densityWeeks := d.TemporalDensityWeeks(recent)
	sofExceeded, _ := d.CheckSourceOfFunds(recent, info)
	economicIssue := d.CheckEconomicPlausibility(recent, info)

	// Decision gates. A declared and respected source of funds disables
	// the module; everything else runs the absolute and relative checks.
	isSuspicious := false
	hasSoF := info != nil && info.SourceOfFunds != nil

	if hasSoF {
		isSuspicious = sofExceeded
	}

	if !hasSoF || sofExceeded {
		if avoidanceRatio >= 0.3 && cumulativeLarge >= 30000 && densityWeeks > d.NormalSaverDensityWeeks {
			isSuspicious = true
		}
		if avoidanceRatio >= 0.5 && densityWeeks > d.SmurferDensityWeeks {
			isSuspicious = true
		}
		if economicIssue {
			isSuspicious = true
		}
		if !hasSoF && len(recent) >= 12 && avoidanceRatio >= 0.3 && cumulativeLarge >= 30000 {
			isSuspicious = true
		}

		if zScore30d >= 3.5 {
			isSuspicious = true
		} else if zScore30d >= 2.5 {
			if avoidanceRatio >= 0.3 || cumulativeLarge >= d.SmurfingCumulativeMin {
				isSuspicious = true
			}
		}

		// Normal savers: low density, small amounts, no threshold
		// avoidance. Overrides the relative triggers.
		if !sofExceeded &&
			densityWeeks < d.NormalSaverDensityWeeks && smallRatio > 0.8 &&
			avoidanceRatio < 0.3 && cumulativeLarge < d.SmurfingCumulativeMin {
			isSuspicious = false
		}
	}

	return models.WeightAnalysis{
		Weight7d:                  weight,
		Weight30d:                 weight,
		Weight90d:                 weight,
		ZScore7d:                  zScore7d,
		ZScore30d:                 zScore30d,
		ZScore90d:                 zScore90d,
		IsSuspicious:              isSuspicious,
		SmallTransactionRatio:     smallRatio,
		ThresholdAvoidanceRatio:   avoidanceRatio,
		CumulativeLargeAmount:     cumulativeLarge,
		TemporalDensityWeeks:      densityWeeks,
		SourceOfFundsExceeded:     sofExceeded,
		EconomicPlausibilityIssue: economicIssue,
	}
}
