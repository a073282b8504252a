package detectors

import (
	"math"
	"sort"

	"github.com/compliance/aml-engine/internal/models"
)

// EntropyDetector measures behavioural complexity with Shannon entropy
// over amounts, payment methods, transaction types and time patterns.
// Both extreme concentration and extreme dispersion are suspicious.
type EntropyDetector struct {
	AmountBins []float64

	AmountWeight  float64
	PaymentWeight float64
	TypeWeight    float64
	TimeWeight    float64
}

// NewEntropyDetector returns a detector with the default bins and
// dimension weights.
func NewEntropyDetector() *EntropyDetector {
	return &EntropyDetector{
		AmountBins:    []float64{0, 500, 2000, 10000, math.Inf(1)},
		AmountWeight:  0.25,
		PaymentWeight: 0.30,
		TypeWeight:    0.20,
		TimeWeight:    0.25,
	}
}

// ShannonEntropy computes H = -sum p*log2(p) over the non-zero entries.
func ShannonEntropy(probabilities []float64) float64 {
	var h float64
	for _, p := range probabilities {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}

func countsToProbs(counts []int, total int) []float64 {
	probs := make([]float64, 0, len(counts))
	for _, c := range counts {
		if c > 0 {
			probs = append(probs, float64(c)/float64(total))
		}
	}
	return probs
}

// AmountEntropy bins the amounts and measures the bin distribution.
func (d *EntropyDetector) AmountEntropy(txns []models.Transaction) float64 {
	if len(txns) == 0 {
		return 0.0
	}
	counts := make([]int, len(d.AmountBins)-1)
	for _, t := range txns {
		for i := 0; i < len(d.AmountBins)-1; i++ {
			upperInclusive := i == len(d.AmountBins)-2
			if t.Amount >= d.AmountBins[i] &&
				(t.Amount < d.AmountBins[i+1] || (upperInclusive && t.Amount == d.AmountBins[i+1])) {
				counts[i]++
				break
			}
		}
	}
	return ShannonEntropy(countsToProbs(counts, len(txns)))
}

// PaymentMethodEntropy measures the payment-method distribution.
func (d *EntropyDetector) PaymentMethodEntropy(txns []models.Transaction) float64 {
	if len(txns) == 0 {
		return 0.0
	}
	counts := map[string]int{}
	for _, t := range txns {
		counts[t.PaymentMethod]++
	}
	probs := make([]float64, 0, len(counts))
	for _, c := range counts {
		probs = append(probs, float64(c)/float64(len(txns)))
	}
	return ShannonEntropy(probs)
}

// TransactionTypeEntropy measures the investment/withdrawal distribution.
func (d *EntropyDetector) TransactionTypeEntropy(txns []models.Transaction) float64 {
	if len(txns) == 0 {
		return 0.0
	}
	counts := map[string]int{}
	for _, t := range txns {
		counts[t.TransactionType]++
	}
	probs := make([]float64, 0, len(counts))
	for _, c := range counts {
		probs = append(probs, float64(c)/float64(len(txns)))
	}
	return ShannonEntropy(probs)
}

// TimeEntropy averages weekday entropy and four-hour-block entropy over
// the timestamped transactions.
func (d *EntropyDetector) TimeEntropy(txns []models.Transaction) float64 {
	var timestamped []models.Transaction
	for _, t := range txns {
		if t.Timestamp != nil {
			timestamped = append(timestamped, t)
		}
	}
	if len(timestamped) == 0 {
		return 0.0
	}

	weekdayCounts := make([]int, 7)
	blockCounts := make([]int, 6)
	for _, t := range timestamped {
		// Monday = 0, as in ISO weekday numbering
		weekday := (int(t.Timestamp.Weekday()) + 6) % 7
		weekdayCounts[weekday]++
		blockCounts[t.Timestamp.Hour()/4]++
	}

	weekdayEntropy := ShannonEntropy(countsToProbs(weekdayCounts, len(timestamped)))
	blockEntropy := ShannonEntropy(countsToProbs(blockCounts, len(timestamped)))

	return (weekdayEntropy + blockEntropy) / 2.0
}

// AggregateEntropy combines the dimension entropies with the configured
// weights.
func (d *EntropyDetector) AggregateEntropy(amount, payment, txType, timeE float64) float64 {
	return d.AmountWeight*amount +
		d.PaymentWeight*payment +
		d.TypeWeight*txType +
		d.TimeWeight*timeE
}

func (d *EntropyDetector) zScore(current float64, baseline []float64) float64 {
	if len(baseline) < 2 {
		return 0.0
	}
	mu := mean(baseline)
	sigma := stdDev(baseline)
	if sigma < 0.01 {
		sigma = 0.01
	}
	return (current - mu) / sigma
}

// Analyze runs the full entropy analysis over the recent window, with a
// rolling-window baseline from the historical transactions.
func (d *EntropyDetector) Analyze(recent, historical []models.Transaction) models.EntropyAnalysis {
	amount := d.AmountEntropy(recent)
	payment := d.PaymentMethodEntropy(recent)
	txType := d.TransactionTypeEntropy(recent)
	timeE := d.TimeEntropy(recent)
	aggregate := d.AggregateEntropy(amount, payment, txType, timeE)

	// Absolute thresholds work without any history.
	absoluteSuspicious := aggregate < 0.3 || aggregate > 2.0

	if payment < 0.1 && len(recent) > 10 {
		absoluteSuspicious = true
	}

	if len(recent) >= 10 {
		unique := map[float64]struct{}{}
		for _, t := range recent {
			unique[t.Amount] = struct{}{}
		}
		if float64(len(unique))/float64(len(recent)) >= 0.8 {
			absoluteSuspicious = true
		}
		if amount >= 1.0 {
			absoluteSuspicious = true
		}
	}

	zScore := 0.0
	relativeSuspicious := false
	if len(historical) > 0 {
		baseline := d.historicalEntropies(historical, 30)
		zScore = d.zScore(aggregate, baseline)
		relativeSuspicious = math.Abs(zScore) >= 2.5
	}

	return models.EntropyAnalysis{
		EntropyAmount:          amount,
		EntropyPaymentMethod:   payment,
		EntropyTransactionType: txType,
		EntropyTime:            timeE,
		EntropyAggregate:       aggregate,
		ZScore:                 zScore,
		IsComplex:              absoluteSuspicious || relativeSuspicious,
	}
}

// historicalEntropies computes aggregate entropies over rolling windows
// of windowDays, stepped by seven days.
func (d *EntropyDetector) historicalEntropies(historical []models.Transaction, windowDays int) []float64 {
	var timestamped []models.Transaction
	for _, t := range historical {
		if t.Timestamp != nil {
			timestamped = append(timestamped, t)
		}
	}
	if len(timestamped) == 0 {
		return nil
	}
	sort.Slice(timestamped, func(i, j int) bool {
		return timestamped[i].Timestamp.Before(*timestamped[j].Timestamp)
	})

	minTs := *timestamped[0].Timestamp
	maxTs := *timestamped[len(timestamped)-1].Timestamp

	var entropies []float64
	current := minTs.AddDate(0, 0, windowDays)
	for !current.After(maxTs) {
		start := current.AddDate(0, 0, -windowDays)
		var window []models.Transaction
		for _, t := range timestamped {
			if !t.Timestamp.Before(start) && t.Timestamp.Before(current) {
				window = append(window, t)
			}
		}
		if len(window) >= 5 {
			e := d.AggregateEntropy(
				d.AmountEntropy(window),
				d.PaymentMethodEntropy(window),
				d.TransactionTypeEntropy(window),
				d.TimeEntropy(window),
			)
			entropies = append(entropies, e)
		}
		current = current.AddDate(0, 0, 7)
	}

	return entropies
}
