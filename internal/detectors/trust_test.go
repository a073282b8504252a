package detectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compliance/aml-engine/internal/models"
)

func TestCalculatePredictabilityFewTransactions(t *testing.T) {
	c := NewTrustScoreCalculator(0.7)
	assert.InDelta(t, 0.5, c.CalculatePredictability(weeklyDeposits(4, 1000)), 1e-9)
}

func TestCalculatePredictabilityRegularSaver(t *testing.T) {
	c := NewTrustScoreCalculator(0.7)
	score := c.CalculatePredictability(weeklyDeposits(12, 1000))
	assert.Greater(t, score, 0.7)
}

func TestCalculateSelfDeviationNoHistory(t *testing.T) {
	c := NewTrustScoreCalculator(0.7)
	assert.Zero(t, c.CalculateSelfDeviation(weeklyDeposits(3, 1000), nil))
	assert.Zero(t, c.CalculateSelfDeviation(nil, weeklyDeposits(3, 1000)))
}

func TestCalculateSelfDeviationAmountShift(t *testing.T) {
	c := NewTrustScoreCalculator(0.7)

	var historical []models.Transaction
	for i := 0; i < 20; i++ {
		amount := 900.0
		if i%2 == 1 {
			amount = 1100.0
		}
		historical = append(historical, sepaInvestment(amount, testReference.AddDate(0, 0, -200+i*7)))
	}
	recent := []models.Transaction{
		sepaInvestment(2000, testReference),
		sepaInvestment(2000, testReference.AddDate(0, 0, -7)),
	}

	// the amount z-score saturates; the payment-method mix is unchanged
	assert.InDelta(t, 0.6, c.CalculateSelfDeviation(recent, historical), 0.01)
}

func TestCalculatePeerDeviation(t *testing.T) {
	c := NewTrustScoreCalculator(0.7)

	var peers []models.Transaction
	for i := 0; i < 20; i++ {
		amount := 900.0
		if i%2 == 1 {
			amount = 1100.0
		}
		peers = append(peers, sepaInvestment(amount, testReference.AddDate(0, 0, -i)))
	}

	typical := c.CalculatePeerDeviation([]models.Transaction{sepaInvestment(1000, testReference)}, peers)
	outlier := c.CalculatePeerDeviation([]models.Transaction{sepaInvestment(5000, testReference)}, peers)

	assert.Zero(t, typical)
	assert.InDelta(t, 1.0, outlier, 1e-9)
}

func TestCalculateTrustScoreSmoothingIsStableAtFixpoint(t *testing.T) {
	c := NewTrustScoreCalculator(0.7)

	first := c.CalculateTrustScore(0.8, 0.0, 0.0, "K-1")
	second := c.CalculateTrustScore(0.8, 0.0, 0.0, "K-1")

	require.InDelta(t, 0.96, first, 1e-9)
	assert.InDelta(t, first, second, 1e-9)
}

func TestCalculateTrustScoreDropsFastOnDeviation(t *testing.T) {
	c := NewTrustScoreCalculator(0.7)

	first := c.CalculateTrustScore(0.9, 0.0, 0.0, "K-1")
	require.InDelta(t, 0.98, first, 1e-9)

	// strong self-deviation switches to the fast beta
	second := c.CalculateTrustScore(0.9, 0.9, 0.0, "K-1")
	assert.InDelta(t, 0.4616, second, 1e-4)
	assert.Less(t, second, first)
}

func TestCalculateTrustScoreRecoversSlowly(t *testing.T) {
	c := NewTrustScoreCalculator(0.7)

	c.CalculateTrustScore(0.9, 0.9, 0.0, "K-1")
	low := c.CalculateTrustScore(0.9, 0.9, 0.0, "K-1")
	recovering := c.CalculateTrustScore(0.9, 0.0, 0.0, "K-1")

	assert.Greater(t, recovering, low)
	assert.Less(t, recovering, 0.98)
}

func TestResetClearsSmoothingState(t *testing.T) {
	c := NewTrustScoreCalculator(0.7)

	first := c.CalculateTrustScore(0.8, 0.0, 0.0, "K-1")
	c.CalculateTrustScore(0.8, 0.9, 0.0, "K-1")
	c.Reset()

	assert.InDelta(t, first, c.CalculateTrustScore(0.8, 0.0, 0.0, "K-1"), 1e-9)
}

func TestAnalyzeWithoutPeers(t *testing.T) {
	c := NewTrustScoreCalculator(0.7)

	analysis := c.Analyze("K-1", weeklyDeposits(6, 1000), weeklyDeposits(10, 1000), nil)

	assert.Zero(t, analysis.PeerDeviation)
	assert.GreaterOrEqual(t, analysis.CurrentScore, 0.0)
	assert.LessOrEqual(t, analysis.CurrentScore, 1.0)
}
