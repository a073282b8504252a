package detectors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compliance/aml-engine/internal/models"
)

func TestCalculateWeightEmpty(t *testing.T) {
	d := NewWeightDetector()
	assert.Zero(t, d.CalculateWeight(nil, testReference))
}

func TestCalculateWeightDecay(t *testing.T) {
	d := NewWeightDetector()

	today := d.CalculateWeight([]models.Transaction{
		sepaInvestment(5000, testReference),
	}, testReference)
	monthAgo := d.CalculateWeight([]models.Transaction{
		sepaInvestment(5000, testReference.AddDate(0, 0, -30)),
	}, testReference)

	require.Positive(t, today)
	assert.Greater(t, today, monthAgo)
}

func TestCalculateWeightThresholdAvoidanceFactor(t *testing.T) {
	d := NewWeightDetector()
	ts := testReference.AddDate(0, 0, -1)

	nearThreshold := d.CalculateWeight([]models.Transaction{cashInvestment(9500, ts)}, testReference)
	plain := d.CalculateWeight([]models.Transaction{sepaInvestment(9500, ts)}, testReference)

	// single near-threshold cash investment carries factor 1 + 1.5
	assert.InDelta(t, plain*2.5, nearThreshold, 1e-9)
}

func TestSmallTransactionRatio(t *testing.T) {
	d := NewWeightDetector()
	txns := []models.Transaction{
		sepaInvestment(100, testReference),
		sepaInvestment(500, testReference),
		sepaInvestment(1999, testReference),
		sepaInvestment(8000, testReference),
	}
	assert.InDelta(t, 0.75, d.SmallTransactionRatio(txns), 1e-9)
}

func TestDetectThresholdAvoidance(t *testing.T) {
	d := NewWeightDetector()
	txns := []models.Transaction{
		cashInvestment(8000, testReference),
		cashInvestment(9000, testReference),
		cashInvestment(5000, testReference),
		sepaInvestment(8000, testReference),
	}

	ratio, cumulative := d.DetectThresholdAvoidance(txns)
	assert.InDelta(t, 2.0/3.0, ratio, 1e-9)
	assert.InDelta(t, 17000.0, cumulative, 1e-9)
}

func TestDetectThresholdAvoidanceNoCash(t *testing.T) {
	d := NewWeightDetector()
	ratio, cumulative := d.DetectThresholdAvoidance([]models.Transaction{
		sepaInvestment(9000, testReference),
	})
	assert.Zero(t, ratio)
	assert.Zero(t, cumulative)
}

func TestTemporalDensityWeeks(t *testing.T) {
	d := NewWeightDetector()
	var txns []models.Transaction
	for i := 0; i < 8; i++ {
		offset := i * 13 / 7 // spread 8 txns across 14 days
		txns = append(txns, sepaInvestment(100, testReference.AddDate(0, 0, -offset)))
	}
	// first and last are 13 days apart, so the span is 14 days = 2 weeks
	assert.InDelta(t, 4.0, d.TemporalDensityWeeks(txns), 0.01)
}

func TestCheckSourceOfFunds(t *testing.T) {
	d := NewWeightDetector()
	txns := []models.Transaction{
		sepaInvestment(30000, testReference),
		cashInvestment(30000, testReference),
		sepaWithdrawal(10000, testReference),
	}

	exceeded, cumulative := d.CheckSourceOfFunds(txns, &models.CustomerInfo{
		CustomerID:    "K-100",
		SourceOfFunds: floatPtr(50000),
	})
	assert.True(t, exceeded)
	assert.InDelta(t, 60000.0, cumulative, 1e-9)

	exceeded, _ = d.CheckSourceOfFunds(txns, nil)
	assert.False(t, exceeded)
}

func TestCheckEconomicPlausibility(t *testing.T) {
	d := NewWeightDetector()
	info := &models.CustomerInfo{CustomerID: "K-100", MonthlyIncome: floatPtr(2500)}

	var txns []models.Transaction
	for i := 0; i < 5; i++ {
		txns = append(txns, cashInvestment(9500, testReference.AddDate(0, 0, -i*7)))
	}
	assert.True(t, d.CheckEconomicPlausibility(txns, info))

	// fewer than three near-threshold deposits never triggers
	assert.False(t, d.CheckEconomicPlausibility(txns[:2], info))
	assert.False(t, d.CheckEconomicPlausibility(txns, nil))
}

func TestAnalyzeFlagsSmurfer(t *testing.T) {
	d := NewWeightDetector()

	amounts := []float64{7100, 7400, 7700, 8000, 8300, 8600, 8900, 9200, 9500, 9800, 7600, 8200}
	var recent []models.Transaction
	for i, amount := range amounts {
		recent = append(recent, cashInvestment(amount, testReference.AddDate(0, 0, -7*(len(amounts)-1-i))))
	}

	analysis := d.Analyze(recent, nil, nil, testReference)

	assert.True(t, analysis.IsSuspicious)
	assert.InDelta(t, 1.0, analysis.ThresholdAvoidanceRatio, 1e-9)
	assert.Greater(t, analysis.CumulativeLargeAmount, 50000.0)
	assert.Greater(t, analysis.TemporalDensityWeeks, 1.0)
}

func TestAnalyzeNormalSaverStaysClean(t *testing.T) {
	d := NewWeightDetector()

	var recent []models.Transaction
	for i := 0; i < 12; i++ {
		recent = append(recent, cashInvestment(500, testReference.AddDate(0, 0, -32*i)))
	}

	analysis := d.Analyze(recent, nil, nil, testReference)

	assert.False(t, analysis.IsSuspicious)
	assert.InDelta(t, 1.0, analysis.SmallTransactionRatio, 1e-9)
	assert.Less(t, analysis.TemporalDensityWeeks, d.NormalSaverDensityWeeks)
	assert.Zero(t, analysis.ThresholdAvoidanceRatio)
}

func TestAnalyzeRespectedSourceOfFundsDisablesModule(t *testing.T) {
	d := NewWeightDetector()
	info := &models.CustomerInfo{CustomerID: "K-100", SourceOfFunds: floatPtr(200000)}

	var recent []models.Transaction
	for i := 0; i < 6; i++ {
		recent = append(recent, cashInvestment(9500, testReference.AddDate(0, 0, -i*3)))
	}

	analysis := d.Analyze(recent, nil, info, testReference)
	assert.False(t, analysis.SourceOfFundsExceeded)
	assert.False(t, analysis.IsSuspicious)
}

func TestCalculateZScoreSparseBaseline(t *testing.T) {
	d := NewWeightDetector()

	historical := []models.Transaction{
		sepaInvestment(1000, testReference.AddDate(0, 0, -200)),
	}
	assert.Zero(t, d.CalculateZScore(10.0, historical, 30, testReference))
	assert.Zero(t, d.CalculateZScore(10.0, nil, 30, testReference))
}

func TestDaysBetweenIgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2025, 6, 1, 23, 50, 0, 0, time.UTC)
	b := time.Date(2025, 6, 2, 0, 10, 0, 0, time.UTC)
	assert.Equal(t, 1, daysBetween(a, b))
}
