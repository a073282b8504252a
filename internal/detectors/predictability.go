package detectors

import (
	"sort"

	"github.com/compliance/aml-engine/internal/models"
)

// PredictabilityDetector scores how planbar the behaviour is across
// three dimensions: interval regularity, amount consistency and
// payment-channel continuity. High predictability earns trust.
type PredictabilityDetector struct{}

// NewPredictabilityDetector returns a ready detector.
func NewPredictabilityDetector() *PredictabilityDetector {
	return &PredictabilityDetector{}
}

// TemporalStability maps the coefficient of variation of the intervals
// between timestamped transactions onto a 0-1 stability score.
func (d *PredictabilityDetector) TemporalStability(recent, historical []models.Transaction) float64 {
	if len(recent) < 2 {
		return 0.5
	}

	var timestamped []models.Transaction
	for _, t := range recent {
		if t.Timestamp != nil {
			timestamped = append(timestamped, t)
		}
	}
	if len(timestamped) < 2 {
		return 0.5
	}
	sort.Slice(timestamped, func(i, j int) bool {
		return timestamped[i].Timestamp.Before(*timestamped[j].Timestamp)
	})

	intervals := make([]float64, 0, len(timestamped)-1)
	for i := 1; i < len(timestamped); i++ {
		delta := timestamped[i].Timestamp.Sub(*timestamped[i-1].Timestamp)
		intervals = append(intervals, delta.Seconds()/86400.0)
	}

	meanInterval := mean(intervals)
	if meanInterval == 0 {
		return 0.0
	}
	cv := stdDev(intervals) / meanInterval

	switch {
	case cv < 0.3:
		return 0.8 + 0.2*(0.3-cv)/0.3
	case cv < 0.6:
		return 0.5 + 0.3*(0.6-cv)/0.3
	case cv < 1.0:
		return 0.3 + 0.2*(1.0-cv)/0.4
	default:
		s := 0.3 - 0.3*(cv-1.0)/2.0
		if s < 0 {
			s = 0
		}
		return s
	}
}

// AmountConsistency maps the amount coefficient of variation onto a 0-1
// consistency score, discounted when the recent spread far exceeds the
// historical one.
func (d *PredictabilityDetector) AmountConsistency(recent, historical []models.Transaction) float64 {
	if len(recent) == 0 {
		return 0.5
	}

	amounts := make([]float64, len(recent))
	for i, t := range recent {
		amounts[i] = t.Amount
	}
	if len(amounts) < 2 {
		return 0.5
	}

	meanAmount := mean(amounts)
	if meanAmount == 0 {
		return 0.0
	}
	cv := stdDev(amounts) / meanAmount

	var consistency float64
	switch {
	case cv < 0.2:
		consistency = 0.9 + 0.1*(0.2-cv)/0.2
	case cv < 0.5:
		consistency = 0.7 + 0.2*(0.5-cv)/0.3
	case cv < 1.0:
		consistency = 0.5 + 0.2*(1.0-cv)/0.5
	case cv < 2.0:
		consistency = 0.3 + 0.2*(2.0-cv)/1.0
	default:
		consistency = 0.3 - 0.3*(cv-2.0)/3.0
		if consistency < 0 {
			consistency = 0
		}
	}

	if len(historical) >= 5 {
		histAmounts := make([]float64, len(historical))
		for i, t := range historical {
			histAmounts[i] = t.Amount
		}
		histMean := mean(histAmounts)
		histCV := 1.0
		if histMean > 0 {
			histCV = stdDev(histAmounts) / histMean
		}
		if cv > histCV*1.5 {
			consistency *= 0.7
		}
	}

	return consistency
}

// methodCounts tallies payment methods preserving first-seen order so
// that dominant-method ties resolve deterministically.
type methodCounts struct {
	order  []string
	counts map[string]int
}

func countMethods(txns []models.Transaction) methodCounts {
	mc := methodCounts{counts: map[string]int{}}
	for _, t := range txns {
		if _, ok := mc.counts[t.PaymentMethod]; !ok {
			mc.order = append(mc.order, t.PaymentMethod)
		}
		mc.counts[t.PaymentMethod]++
	}
	return mc
}

func (mc methodCounts) max() int {
	best := 0
	for _, m := range mc.order {
		if mc.counts[m] > best {
			best = mc.counts[m]
		}
	}
	return best
}

func (mc methodCounts) dominant() string {
	best, bestCount := "", -1
	for _, m := range mc.order {
		if mc.counts[m] > bestCount {
			best, bestCount = m, mc.counts[m]
		}
	}
	return best
}

// ChannelContinuity rewards sticking to an established payment channel.
func (d *PredictabilityDetector) ChannelContinuity(recent, historical []models.Transaction) float64 {
	if len(recent) == 0 {
		return 0.5
	}

	recentMethods := countMethods(recent)
	totalRecent := float64(len(recent))
	dominantRatio := float64(recentMethods.max()) / totalRecent

	var continuity float64
	switch {
	case dominantRatio >= 0.9:
		continuity = 1.0
	case dominantRatio >= 0.7:
		continuity = 0.8 + 0.2*(dominantRatio-0.7)/0.2
	case dominantRatio >= 0.5:
		continuity = 0.6 + 0.2*(dominantRatio-0.5)/0.2
	default:
		switch n := len(recentMethods.order); n {
		case 1:
			continuity = 0.6
		case 2:
			continuity = 0.4
		default:
			continuity = 0.4 - 0.1*float64(n-2)
			if continuity < 0 {
				continuity = 0
			}
		}
	}

	if len(historical) >= 5 {
		histMethods := countMethods(historical)
		totalHistorical := float64(len(historical))
		histDominant := float64(histMethods.max()) / totalHistorical
		histDominantMethod := histMethods.dominant()

		if float64(recentMethods.counts[histDominantMethod])/totalRecent >= 0.5 {
			continuity += 0.2
			if continuity > 1.0 {
				continuity = 1.0
			}
		} else if dominantRatio < histDominant*0.5 {
			continuity *= 0.7
		}
	}

	return continuity
}

// OverallPredictability combines the three dimensions 40/35/25.
func (d *PredictabilityDetector) OverallPredictability(temporal, amount, channel float64) float64 {
	return 0.40*temporal + 0.35*amount + 0.25*channel
}

// Analyze runs the full predictability analysis.
func (d *PredictabilityDetector) Analyze(recent, historical []models.Transaction) models.PredictabilityAnalysis {
	temporal := d.TemporalStability(recent, historical)
	amount := d.AmountConsistency(recent, historical)
	channel := d.ChannelContinuity(recent, historical)
	overall := d.OverallPredictability(temporal, amount, channel)

	zScore := 0.0
	if len(historical) >= 10 {
		histRecent := historical
		var histBase []models.Transaction
		if len(historical) >= 30 {
			histRecent = historical[len(historical)-30:]
			histBase = historical[:len(historical)-30]
		}
		histOverall := d.OverallPredictability(
			d.TemporalStability(histRecent, histBase),
			d.AmountConsistency(histRecent, histBase),
			d.ChannelContinuity(histRecent, histBase),
		)
		// assumed standard deviation of the predictability score
		if histOverall > 0 {
			zScore = (overall - histOverall) / 0.15
		}
	}

	return models.PredictabilityAnalysis{
		TemporalStability:     temporal,
		AmountConsistency:     amount,
		ChannelContinuity:     channel,
		OverallPredictability: overall,
		ZScore:                zScore,
		IsStable:              overall >= 0.7,
	}
}
