package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/compliance/aml-engine/internal/models"
)

func TestFormatThousands(t *testing.T) {
	assert.Equal(t, "999", formatThousands(999))
	assert.Equal(t, "52,000", formatThousands(52000))
	assert.Equal(t, "1,234,568", formatThousands(1234567.6))
}

func TestGenerateFlagsSmurfing(t *testing.T) {
	weight := models.WeightAnalysis{
		IsSuspicious:            true,
		ThresholdAvoidanceRatio: 0.8,
		CumulativeLargeAmount:   90000,
		TemporalDensityWeeks:    1.2,
	}

	flags := generateFlags(weight, models.EntropyAnalysis{EntropyAggregate: 1.0},
		models.PredictabilityAnalysis{OverallPredictability: 0.9, IsStable: true},
		models.TrustScoreAnalysis{CurrentScore: 0.8}, models.StatisticalAnalysis{})

	assert.Contains(t, flags, flagSmurfingThreshold)
	assert.Contains(t, flags, flagCumulativeSum(90000))
	assert.Contains(t, flags, flagThresholdAvoidance(0.8))
	assert.Contains(t, flags, flagTemporalDensity(1.2))
}

func TestGenerateFlagsLayeringTiers(t *testing.T) {
	base := func(layering float64) []string {
		return generateFlags(models.WeightAnalysis{}, models.EntropyAnalysis{EntropyAggregate: 1.0},
			models.PredictabilityAnalysis{OverallPredictability: 0.9, IsStable: true},
			models.TrustScoreAnalysis{CurrentScore: 0.8},
			models.StatisticalAnalysis{LayeringScore: layering})
	}

	assert.NotContains(t, base(0.2), flagLaunderingPattern)
	assert.Contains(t, base(0.4), flagLaunderingPattern)
	assert.Contains(t, base(0.6), flagLaunderingStrong)
}

func TestGenerateFlagsCleanProfile(t *testing.T) {
	flags := generateFlags(models.WeightAnalysis{SmallTransactionRatio: 0.5},
		models.EntropyAnalysis{EntropyAggregate: 1.0},
		models.PredictabilityAnalysis{OverallPredictability: 0.9, IsStable: true},
		models.TrustScoreAnalysis{CurrentScore: 0.9}, models.StatisticalAnalysis{})
	assert.Empty(t, flags)
}

func TestGenerateRecommendationsByLevel(t *testing.T) {
	green := generateRecommendations(models.RiskLevelGreen, nil)
	assert.Len(t, green, 1)

	red := generateRecommendations(models.RiskLevelRed, nil)
	assert.GreaterOrEqual(t, len(red), 4)
}

func TestGenerateRecommendationsLaunderingFollowUps(t *testing.T) {
	recs := generateRecommendations(models.RiskLevelRed, []string{flagLaunderingStrong})

	found := false
	for _, r := range recs {
		if strings.Contains(r, "SAR") {
			found = true
		}
	}
	assert.True(t, found)
}
