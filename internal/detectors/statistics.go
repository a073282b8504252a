package detectors

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/compliance/aml-engine/internal/models"
)

// StatisticalAnalyzer bundles the auxiliary statistical checks: Benford
// first-digit analysis, velocity, time anomalies, behavioural clustering
// and cash-to-bank layering detection.
type StatisticalAnalyzer struct {
	benfordExpected map[int]float64

	// clustering parameters
	NumClusters int
	Seed        int64
}

// NewStatisticalAnalyzer returns an analyzer with the standard Benford
// distribution and deterministic clustering.
func NewStatisticalAnalyzer() *StatisticalAnalyzer {
	return &StatisticalAnalyzer{
		benfordExpected: map[int]float64{
			1: 0.301, 2: 0.176, 3: 0.125, 4: 0.097, 5: 0.079,
			6: 0.067, 7: 0.058, 8: 0.051, 9: 0.046,
		},
		NumClusters: 5,
		Seed:        42,
	}
}

// BenfordAnalysis measures deviation of first-digit frequencies from
// Benford's law via a chi-squared statistic normalized against the
// df=8, alpha=0.05 critical value.
func (a *StatisticalAnalyzer) BenfordAnalysis(txns []models.Transaction) float64 {
	if len(txns) < 20 {
		return 0.0
	}

	var firstDigits []int
	for _, t := range txns {
		s := strconv.Itoa(int(t.Amount))
		if len(s) > 0 && s[0] != '0' && s[0] >= '1' && s[0] <= '9' {
			firstDigits = append(firstDigits, int(s[0]-'0'))
		}
	}
	if len(firstDigits) < 20 {
		return 0.0
	}

	counts := make(map[int]int)
	for _, d := range firstDigits {
		counts[d]++
	}

	var chiSquared float64
	for digit := 1; digit <= 9; digit++ {
		expected := a.benfordExpected[digit]
		observed := float64(counts[digit]) / float64(len(firstDigits))
		chiSquared += (observed - expected) * (observed - expected) / expected
	}

	return math.Min(chiSquared/15.5, 1.0)
}

// VelocityAnalysis scores burst density and volume over 1h, 24h and 7d
// windows anchored at each transaction, against absolute thresholds of
// ten transactions and 50,000 EUR per day.
func (a *StatisticalAnalyzer) VelocityAnalysis(txns []models.Transaction) float64 {
	var timestamped []models.Transaction
	for _, t := range txns {
		if t.Timestamp != nil {
			timestamped = append(timestamped, t)
		}
	}
	if len(timestamped) < 3 {
		return 0.0
	}
	sort.Slice(timestamped, func(i, j int) bool {
		return timestamped[i].Timestamp.Before(*timestamped[j].Timestamp)
	})

	windows := []float64{1, 24, 168}
	var scores []float64

	for _, windowHours := range windows {
		maxCount := 0
		maxAmount := 0.0

		for _, anchor := range timestamped {
			windowEnd := anchor.Timestamp.Add(time.Duration(windowHours * float64(time.Hour)))
			count := 0
			amount := 0.0
			for _, t := range timestamped {
				if !t.Timestamp.Before(*anchor.Timestamp) && t.Timestamp.Before(windowEnd) {
					count++
					amount += t.Amount
				}
			}
			if count > maxCount {
				maxCount = count
			}
			if amount > maxAmount {
				maxAmount = amount
			}
		}

		expectedMaxCount := windowHours / 2.4
		countScore := math.Min(float64(maxCount)/expectedMaxCount, 1.0)

		expectedMaxAmount := (windowHours / 24.0) * 50000
		amountScore := math.Min(maxAmount/expectedMaxAmount, 1.0)

		scores = append(scores, (countScore+amountScore)/2.0)
	}

	return mean(scores)
}

// TimeAnomalyDetection combines off-hours activity, weekend share and
// burst patterns into a single anomaly score.
func (a *StatisticalAnalyzer) TimeAnomalyDetection(txns []models.Transaction) float64 {
	var timestamped []models.Transaction
	for _, t := range txns {
		if t.Timestamp != nil {
			timestamped = append(timestamped, t)
		}
	}
	if len(timestamped) < 5 {
		return 0.0
	}

	var scores []float64

	offHours := 0
	for _, t := range timestamped {
		if h := t.Timestamp.Hour(); h < 6 || h >= 22 {
			offHours++
		}
	}
	scores = append(scores, float64(offHours)/float64(len(timestamped)))

	weekend := 0
	for _, t := range timestamped {
		if wd := t.Timestamp.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend++
		}
	}
	weekendRatio := float64(weekend) / float64(len(timestamped))
	scores = append(scores, math.Min(weekendRatio/0.4, 1.0))

	sort.Slice(timestamped, func(i, j int) bool {
		return timestamped[i].Timestamp.Before(*timestamped[j].Timestamp)
	})
	bursts := 0
	for i := 0; i+2 < len(timestamped); i++ {
		diff := timestamped[i+2].Timestamp.Sub(*timestamped[i].Timestamp).Minutes()
		if diff < 5 {
			bursts++
		}
	}
	denom := len(timestamped) - 2
	if denom < 1 {
		denom = 1
	}
	scores = append(scores, math.Min(float64(bursts)/float64(denom)/0.2, 1.0))

	return mean(scores)
}

// ClusteringAnalysis clusters all customers on behaviour features and
// scores this customer's distance to the nearest centroid.
func (a *StatisticalAnalyzer) ClusteringAnalysis(customerTxns, allTxns []models.Transaction) float64 {
	if len(customerTxns) == 0 || len(allTxns) < 50 {
		return 0.0
	}

	byCustomer := map[string][]models.Transaction{}
	for _, t := range allTxns {
		byCustomer[t.CustomerID] = append(byCustomer[t.CustomerID], t)
	}
	if len(byCustomer) < a.NumClusters {
		return 0.0
	}

	ids := make([]string, 0, len(byCustomer))
	for id := range byCustomer {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	features := make([][]float64, len(ids))
	for i, id := range ids {
		features[i] = extractFeatures(byCustomer[id])
	}

	means, stds := standardize(features)
	centroids := kMeans(features, a.NumClusters, a.Seed)

	customer := scaleFeatures(extractFeatures(customerTxns), means, stds)

	minDistance := math.Inf(1)
	for _, c := range centroids {
		if d := euclidean(c, customer); d < minDistance {
			minDistance = d
		}
	}

	return math.Min(minDistance/5.0, 1.0)
}

// extractFeatures builds the [avgAmount, txnsPerDay, cashRatio,
// investmentRatio] vector for one customer.
func extractFeatures(txns []models.Transaction) []float64 {
	if len(txns) == 0 {
		return []float64{0, 0, 0, 0}
	}

	var amountSum float64
	cash, investments := 0, 0
	var timestamped []models.Transaction
	for _, t := range txns {
		amountSum += t.Amount
		if t.PaymentMethod == models.PaymentMethodCash {
			cash++
		}
		if t.TransactionType == models.TransactionTypeInvestment {
			investments++
		}
		if t.Timestamp != nil {
			timestamped = append(timestamped, t)
		}
	}

	frequency := 0.0
	if len(timestamped) > 1 {
		minTs, maxTs := *timestamped[0].Timestamp, *timestamped[0].Timestamp
		for _, t := range timestamped[1:] {
			if t.Timestamp.Before(minTs) {
				minTs = *t.Timestamp
			}
			if t.Timestamp.After(maxTs) {
				maxTs = *t.Timestamp
			}
		}
		dateRange := daysBetween(minTs, maxTs) + 1
		if dateRange < 1 {
			dateRange = 1
		}
		frequency = float64(len(txns)) / float64(dateRange)
	}

	return []float64{
		amountSum / float64(len(txns)),
		frequency,
		float64(cash) / float64(len(txns)),
		float64(investments) / float64(len(txns)),
	}
}

// standardize scales feature columns to zero mean and unit variance in
// place, returning the column statistics for transforming new points.
func standardize(features [][]float64) (means, stds []float64) {
	if len(features) == 0 {
		return nil, nil
	}
	dims := len(features[0])
	means = make([]float64, dims)
	stds = make([]float64, dims)

	for d := 0; d < dims; d++ {
		col := make([]float64, len(features))
		for i, f := range features {
			col[i] = f[d]
		}
		means[d] = mean(col)
		stds[d] = stdDev(col)
		if stds[d] == 0 {
			stds[d] = 1.0
		}
	}

	for i := range features {
		features[i] = scaleFeatures(features[i], means, stds)
	}
	return means, stds
}

func scaleFeatures(f, means, stds []float64) []float64 {
	scaled := make([]float64, len(f))
	for d := range f {
		scaled[d] = (f[d] - means[d]) / stds[d]
	}
	return scaled
}

func euclidean(a, b []float64) float64 {
	var ss float64
	for i := range a {
		d := a[i] - b[i]
		ss += d * d
	}
	return math.Sqrt(ss)
}

// kMeans runs Lloyd's algorithm with ten seeded restarts and returns the
// centroids of the best run by inertia.
func kMeans(points [][]float64, k int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))

	var bestCentroids [][]float64
	bestInertia := math.Inf(1)

	for run := 0; run < 10; run++ {
		centroids := make([][]float64, k)
		perm := rng.Perm(len(points))
		for i := 0; i < k; i++ {
			centroids[i] = append([]float64(nil), points[perm[i]]...)
		}

		assignment := make([]int, len(points))
		for iter := 0; iter < 100; iter++ {
			changed := false
			for i, p := range points {
				best, bestDist := 0, math.Inf(1)
				for c, centroid := range centroids {
					if d := euclidean(p, centroid); d < bestDist {
						best, bestDist = c, d
					}
				}
				if assignment[i] != best {
					assignment[i] = best
					changed = true
				}
			}
			if iter > 0 && !changed {
				break
			}

			for c := range centroids {
				var members [][]float64
				for i, p := range points {
					if assignment[i] == c {
						members = append(members, p)
					}
				}
				if len(members) == 0 {
					continue
				}
				next := make([]float64, len(centroids[c]))
				for _, m := range members {
					for d := range next {
						next[d] += m[d]
					}
				}
				for d := range next {
					next[d] /= float64(len(members))
				}
				centroids[c] = next
			}
		}

		var inertia float64
		for i, p := range points {
			inertia += euclidean(p, centroids[assignment[i]]) * euclidean(p, centroids[assignment[i]])
		}
		if inertia < bestInertia {
			bestInertia = inertia
			bestCentroids = centroids
		}
	}

	return bestCentroids
}

// CashToBankLayeringDetection scores the classic laundering pattern of
// cash investments followed by electronic withdrawals. Hoarding (cash in,
// nothing out) is scored separately and capped at 0.5.
func (a *StatisticalAnalyzer) CashToBankLayeringDetection(txns []models.Transaction) float64 {
	if len(txns) < 3 {
		return 0.0
	}

	var investments, withdrawals []models.Transaction
	for _, t := range txns {
		switch t.TransactionType {
		case models.TransactionTypeInvestment:
			investments = append(investments, t)
		case models.TransactionTypeWithdrawal:
			withdrawals = append(withdrawals, t)
		}
	}
	if len(investments) == 0 {
		return 0.0
	}

	var barInvestments []models.Transaction
	for _, t := range investments {
		if t.PaymentMethod == models.PaymentMethodCash {
			barInvestments = append(barInvestments, t)
		}
	}

	if len(withdrawals) == 0 {
		if len(barInvestments) >= 5 {
			ratio := float64(len(barInvestments)) / float64(len(investments))
			return math.Min(0.5, ratio*0.7)
		}
		return 0.0
	}

	barInvestmentRatio := float64(len(barInvestments)) / float64(len(investments))

	var electronicWithdrawals []models.Transaction
	for _, t := range withdrawals {
		if t.PaymentMethod == models.PaymentMethodSEPA || t.PaymentMethod == models.PaymentMethodCreditCard {
			electronicWithdrawals = append(electronicWithdrawals, t)
		}
	}
	electronicWithdrawalRatio := float64(len(electronicWithdrawals)) / float64(len(withdrawals))

	volumeMatchScore := 0.0
	var barInVolume float64
	for _, t := range barInvestments {
		barInVolume += t.Amount
	}
	if len(barInvestments) > 0 && len(electronicWithdrawals) > 0 && barInVolume > 0 {
		var electronicOutVolume float64
		for _, t := range electronicWithdrawals {
			electronicOutVolume += t.Amount
		}
		volumeRatio := electronicOutVolume / barInVolume
		if volumeRatio > 0.5 && volumeRatio < 1.5 {
			volumeMatchScore = 1.0 - math.Abs(1.0-volumeRatio)
		}
	}

	timeProximity := layeringTimeProximity(barInvestments, electronicWithdrawals)

	indicators := 0
	if len(barInvestments) >= 3 && len(electronicWithdrawals) >= 2 {
		indicators++
	}
	if barInvestmentRatio >= 0.5 {
		indicators++
	}
	if electronicWithdrawalRatio >= 0.4 {
		indicators++
	}
	if len(barInvestments) > 0 && len(electronicWithdrawals) > 0 && barInVolume >= 5000 {
		indicators++
	}
	if len(barInvestments) > 0 && len(electronicWithdrawals) > 0 && timeProximity >= 0.3 {
		indicators++
	}

	baseScore := 0.35*barInvestmentRatio +
		0.35*electronicWithdrawalRatio +
		0.15*volumeMatchScore +
		0.15*timeProximity

	var layeringScore float64
	if indicators >= 2 {
		boost := math.Min(0.3, float64(indicators)*0.1)
		layeringScore = math.Min(1.0, baseScore+boost)
	} else {
		// too few indicators: damp hard to keep normal savers out
		layeringScore = baseScore * 0.3
	}

	return math.Min(layeringScore, 1.0)
}

// layeringTimeProximity is the share of withdrawals with a cash
// investment in the 90 days before them.
func layeringTimeProximity(barInvestments, electronicWithdrawals []models.Transaction) float64 {
	if len(barInvestments) == 0 || len(electronicWithdrawals) == 0 {
		return 0.0
	}

	matched := 0
	for _, w := range electronicWithdrawals {
		if w.Timestamp == nil {
			continue
		}
		for _, inv := range barInvestments {
			if inv.Timestamp == nil {
				continue
			}
			days := int(math.Floor(w.Timestamp.Sub(*inv.Timestamp).Hours() / 24))
			if days >= 0 && days <= 90 {
				matched++
				break
			}
		}
	}

	return float64(matched) / float64(len(electronicWithdrawals))
}

// Analyze runs every statistical check over the customer's recent
// transactions. Clustering needs the full batch for peer context.
func (a *StatisticalAnalyzer) Analyze(customerTxns, allTxns []models.Transaction) models.StatisticalAnalysis {
	clustering := 0.0
	if len(allTxns) > 0 {
		clustering = a.ClusteringAnalysis(customerTxns, allTxns)
	}

	return models.StatisticalAnalysis{
		BenfordScore:     a.BenfordAnalysis(customerTxns),
		VelocityScore:    a.VelocityAnalysis(customerTxns),
		TimeAnomalyScore: a.TimeAnomalyDetection(customerTxns),
		ClusteringScore:  clustering,
		LayeringScore:    a.CashToBankLayeringDetection(customerTxns),
	}
}
