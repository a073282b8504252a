package detectors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compliance/aml-engine/internal/models"
)

func TestBenfordAnalysisTooFewTransactions(t *testing.T) {
	a := NewStatisticalAnalyzer()
	assert.Zero(t, a.BenfordAnalysis(weeklyDeposits(10, 5000)))
}

func TestBenfordAnalysisSkewedDistribution(t *testing.T) {
	a := NewStatisticalAnalyzer()

	var txns []models.Transaction
	for i := 0; i < 48; i++ {
		txns = append(txns, sepaInvestment(5000+float64(i)*17, testReference.AddDate(0, 0, -i)))
	}
	txns = append(txns,
		sepaInvestment(6100, testReference.AddDate(0, 0, -50)),
		sepaInvestment(6400, testReference.AddDate(0, 0, -51)),
	)

	score := a.BenfordAnalysis(txns)
	assert.Greater(t, score, 0.6)
}

func TestBenfordAnalysisNaturalDistribution(t *testing.T) {
	a := NewStatisticalAnalyzer()

	// frequencies roughly following Benford's law
	digitCounts := map[int]int{1: 30, 2: 18, 3: 12, 4: 10, 5: 8, 6: 7, 7: 6, 8: 5, 9: 4}
	var txns []models.Transaction
	i := 0
	for digit := 1; digit <= 9; digit++ {
		for n := 0; n < digitCounts[digit]; n++ {
			txns = append(txns, sepaInvestment(float64(digit)*1000+float64(n), testReference.AddDate(0, 0, -i)))
			i++
		}
	}

	assert.Less(t, a.BenfordAnalysis(txns), 0.3)
}

func TestVelocityAnalysisTooFewTransactions(t *testing.T) {
	a := NewStatisticalAnalyzer()
	assert.Zero(t, a.VelocityAnalysis(weeklyDeposits(2, 1000)))
}

func TestVelocityAnalysisBurst(t *testing.T) {
	a := NewStatisticalAnalyzer()

	var burst []models.Transaction
	for i := 0; i < 20; i++ {
		burst = append(burst, sepaInvestment(8000, testReference.Add(time.Duration(i)*10*time.Minute)))
	}

	spread := weeklyDeposits(20, 300)

	assert.Greater(t, a.VelocityAnalysis(burst), a.VelocityAnalysis(spread))
}

func TestTimeAnomalyDetectionOffHours(t *testing.T) {
	a := NewStatisticalAnalyzer()

	var night []models.Transaction
	base := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC) // Monday 03:00
	for week := 0; week < 2; week++ {
		for day := 0; day < 5; day++ {
			night = append(night, sepaInvestment(1000, base.AddDate(0, 0, week*7+day)))
		}
	}

	score := a.TimeAnomalyDetection(night)
	// all off-hours, no weekend activity, no bursts
	assert.InDelta(t, 1.0/3.0, score, 1e-9)
}

func TestTimeAnomalyDetectionDaytime(t *testing.T) {
	a := NewStatisticalAnalyzer()

	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) // Monday 10:00
	var txns []models.Transaction
	for week := 0; week < 2; week++ {
		for day := 0; day < 5; day++ {
			txns = append(txns, sepaInvestment(1000, base.AddDate(0, 0, week*7+day)))
		}
	}
	assert.Zero(t, a.TimeAnomalyDetection(txns))
}

func TestClusteringAnalysisSmallBatch(t *testing.T) {
	a := NewStatisticalAnalyzer()
	customer := weeklyDeposits(10, 1000)
	assert.Zero(t, a.ClusteringAnalysis(customer, customer))
}

func TestClusteringAnalysisDeterministic(t *testing.T) {
	a := NewStatisticalAnalyzer()

	var all []models.Transaction
	for c := 0; c < 10; c++ {
		for i := 0; i < 8; i++ {
			txn := sepaInvestment(500+float64(c)*300, testReference.AddDate(0, 0, -i*3))
			txn.CustomerID = fmt.Sprintf("K-%03d", c)
			all = append(all, txn)
		}
	}
	customer := all[:8]

	first := a.ClusteringAnalysis(customer, all)
	second := a.ClusteringAnalysis(customer, all)
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first, 0.0)
	assert.LessOrEqual(t, first, 1.0)
}

func TestLayeringDetectionFewTransactions(t *testing.T) {
	a := NewStatisticalAnalyzer()
	assert.Zero(t, a.CashToBankLayeringDetection(weeklyDeposits(2, 9000)))
}

func TestLayeringDetectionClassicPattern(t *testing.T) {
	a := NewStatisticalAnalyzer()

	var txns []models.Transaction
	for i := 0; i < 8; i++ {
		txns = append(txns, cashInvestment(9000, testReference.AddDate(0, 0, -65+i*5)))
	}
	for i := 0; i < 6; i++ {
		txns = append(txns, sepaWithdrawal(11000, testReference.AddDate(0, 0, -25+i*5)))
	}

	score := a.CashToBankLayeringDetection(txns)
	require.Greater(t, score, 0.9)
}

func TestLayeringDetectionCashHoardingCapped(t *testing.T) {
	a := NewStatisticalAnalyzer()

	var txns []models.Transaction
	for i := 0; i < 8; i++ {
		txns = append(txns, cashInvestment(9000, testReference.AddDate(0, 0, -i*5)))
	}

	score := a.CashToBankLayeringDetection(txns)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 0.5)
}

func TestLayeringDetectionPlainSaverStaysLow(t *testing.T) {
	a := NewStatisticalAnalyzer()

	txns := weeklyDeposits(10, 500)
	txns = append(txns, sepaWithdrawal(400, testReference.AddDate(0, 0, -3)))

	assert.Less(t, a.CashToBankLayeringDetection(txns), 0.3)
}
