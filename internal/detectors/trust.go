package detectors

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/compliance/aml-engine/internal/models"
)

// TrustScoreCalculator tracks a smoothed per-customer trust score built
// from behavioural predictability, self-deviation and peer-deviation.
// It is the only stateful detector; the previous-score cache is guarded
// for concurrent per-customer analysis.
type TrustScoreCalculator struct {
	Beta float64

	mu             sync.Mutex
	previousScores map[string]float64
}

// NewTrustScoreCalculator returns a calculator with smoothing factor beta.
func NewTrustScoreCalculator(beta float64) *TrustScoreCalculator {
	return &TrustScoreCalculator{
		Beta:           beta,
		previousScores: make(map[string]float64),
	}
}

// Reset clears the per-customer smoothing state for a new session.
func (c *TrustScoreCalculator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.previousScores = make(map[string]float64)
}

// CalculatePredictability measures time-series stability over daily
// aggregates: amount variation, interval regularity and trend residue.
func (c *TrustScoreCalculator) CalculatePredictability(txns []models.Transaction) float64 {
	if len(txns) < 5 {
		return 0.5
	}

	var timestamped []models.Transaction
	for _, t := range txns {
		if t.Timestamp != nil {
			timestamped = append(timestamped, t)
		}
	}
	if len(timestamped) == 0 {
		return 0.5
	}
	sort.Slice(timestamped, func(i, j int) bool {
		return timestamped[i].Timestamp.Before(*timestamped[j].Timestamp)
	})

	type day struct {
		date time.Time
		sum  float64
	}
	var daily []day
	for _, t := range timestamped {
		d := dateOf(*t.Timestamp)
		if len(daily) > 0 && daily[len(daily)-1].date.Equal(d) {
			daily[len(daily)-1].sum += t.Amount
		} else {
			daily = append(daily, day{date: d, sum: t.Amount})
		}
	}
	if len(daily) < 3 {
		return 0.5
	}

	sums := make([]float64, len(daily))
	for i, d := range daily {
		sums[i] = d.sum
	}

	cvAmount := sampleStdDev(sums) / (mean(sums) + 1e-6)
	cvScore := 1.0 / (1.0 + cvAmount)

	intervals := make([]float64, 0, len(daily)-1)
	for i := 1; i < len(daily); i++ {
		intervals = append(intervals, float64(daysBetween(daily[i-1].date, daily[i].date)))
	}
	intervalScore := 0.5
	if len(intervals) > 1 {
		cvIntervals := sampleStdDev(intervals) / (mean(intervals) + 1e-6)
		intervalScore = 1.0 / (1.0 + cvIntervals)
	}

	trendScore := 0.5
	if len(daily) > 10 {
		slope, intercept := linearFit(sums)
		detrended := make([]float64, len(sums))
		for i, s := range sums {
			detrended[i] = s - (slope*float64(i) + intercept)
		}
		trendVariance := variance(detrended)
		originalVariance := variance(sums)
		trendScore = 1.0 - math.Min(trendVariance/(originalVariance+1e-6), 1.0)
	}

	return clamp01(cvScore*0.4 + intervalScore*0.3 + trendScore*0.3)
}

// linearFit returns the least-squares line y = slope*x + intercept for
// x = 0..n-1.
func linearFit(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	if n == 0 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// CalculateSelfDeviation compares the recent window against the
// customer's own history: mean amount shift plus payment-method
// KL divergence.
func (c *TrustScoreCalculator) CalculateSelfDeviation(recent, historical []models.Transaction) float64 {
	if len(historical) == 0 || len(recent) == 0 {
		return 0.0
	}

	histAmounts := make([]float64, len(historical))
	for i, t := range historical {
		histAmounts[i] = t.Amount
	}
	recentAmounts := make([]float64, len(recent))
	for i, t := range recent {
		recentAmounts[i] = t.Amount
	}

	histMean := mean(histAmounts)
	histStd := stdDev(histAmounts)
	amountZ := 0.0
	if histStd > 0 {
		amountZ = math.Abs((mean(recentAmounts) - histMean) / histStd)
	}
	amountDeviation := math.Min(amountZ/2.0, 1.0)

	histDist := methodDistribution(historical)
	recentDist := methodDistribution(recent)

	union := map[string]struct{}{}
	for m := range histDist {
		union[m] = struct{}{}
	}
	for m := range recentDist {
		union[m] = struct{}{}
	}
	methods := make([]string, 0, len(union))
	for m := range union {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	histProbs := make([]float64, len(methods))
	recentProbs := make([]float64, len(methods))
	var histSum, recentSum float64
	for i, m := range methods {
		histProbs[i] = probOr(histDist, m, 0.01)
		recentProbs[i] = probOr(recentDist, m, 0.01)
		histSum += histProbs[i]
		recentSum += recentProbs[i]
	}

	var klDiv float64
	for i := range methods {
		h := histProbs[i] / histSum
		r := recentProbs[i] / recentSum
		klDiv += r * math.Log((r+1e-10)/(h+1e-10))
	}
	methodDeviation := math.Min(klDiv/1.5, 1.0)

	return clamp01(amountDeviation*0.6 + methodDeviation*0.4)
}

func methodDistribution(txns []models.Transaction) map[string]float64 {
	counts := map[string]int{}
	for _, t := range txns {
		counts[t.PaymentMethod]++
	}
	dist := make(map[string]float64, len(counts))
	for m, n := range counts {
		dist[m] = float64(n) / float64(len(txns))
	}
	return dist
}

func probOr(dist map[string]float64, key string, fallback float64) float64 {
	if p, ok := dist[key]; ok {
		return p
	}
	return fallback
}

// CalculatePeerDeviation measures how far the customer's mean amount
// sits from the peer group's distribution.
func (c *TrustScoreCalculator) CalculatePeerDeviation(customerTxns, peerTxns []models.Transaction) float64 {
	if len(peerTxns) == 0 || len(customerTxns) == 0 {
		return 0.0
	}

	peerAmounts := make([]float64, len(peerTxns))
	for i, t := range peerTxns {
		peerAmounts[i] = t.Amount
	}
	customerAmounts := make([]float64, len(customerTxns))
	for i, t := range customerTxns {
		customerAmounts[i] = t.Amount
	}

	peerStd := stdDev(peerAmounts)
	peerZ := 0.0
	if peerStd > 0 {
		peerZ = math.Abs((mean(customerAmounts) - mean(peerAmounts)) / peerStd)
	}

	return clamp01(math.Min(peerZ/2.0, 1.0))
}

// CalculateTrustScore combines the components into T_new and smooths it
// against the previous score with a deviation-dependent beta, so that
// suspicious behaviour shows up quickly while trust recovers slowly.
func (c *TrustScoreCalculator) CalculateTrustScore(predictability, selfDeviation, peerDeviation float64, customerID string) float64 {
	selfPenalty := selfDeviation * selfDeviation

	var tNew float64
	if peerDeviation > 0.0 {
		peerPenalty := peerDeviation * peerDeviation
		tNew = 0.25*predictability + 0.50*(1.0-selfPenalty) + 0.25*(1.0-peerPenalty)
	} else {
		// no peer signal: lean on self-deviation instead
		tNew = 0.20*predictability + 0.80*(1.0-selfPenalty)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tCurrent := tNew
	if previous, ok := c.previousScores[customerID]; ok && customerID != "" {
		maxDeviation := math.Max(selfDeviation, peerDeviation)

		var betaDynamic float64
		switch {
		case maxDeviation > 0.7 || tNew < 0.3:
			betaDynamic = 0.2
		case maxDeviation > 0.5 || tNew < 0.4:
			betaDynamic = 0.3
		case maxDeviation > 0.3 || tNew < 0.6:
			betaDynamic = 0.5
		default:
			betaDynamic = c.Beta
		}

		tCurrent = betaDynamic*previous + (1-betaDynamic)*tNew
	}

	if customerID != "" {
		c.previousScores[customerID] = tCurrent
	}

	return clamp01(tCurrent)
}

// Analyze runs the full trust analysis for one customer.
func (c *TrustScoreCalculator) Analyze(customerID string, recent, historical, peers []models.Transaction) models.TrustScoreAnalysis {
	combined := make([]models.Transaction, 0, len(historical)+len(recent))
	combined = append(combined, historical...)
	combined = append(combined, recent...)

	predictability := c.CalculatePredictability(combined)
	selfDeviation := c.CalculateSelfDeviation(recent, historical)

	peerDeviation := 0.0
	if len(peers) > 0 {
		peerDeviation = c.CalculatePeerDeviation(recent, peers)
	}

	currentScore := c.CalculateTrustScore(predictability, selfDeviation, peerDeviation, customerID)

	return models.TrustScoreAnalysis{
		CurrentScore:   currentScore,
		Predictability: predictability,
		SelfDeviation:  selfDeviation,
		PeerDeviation:  peerDeviation,
	}
}
