package analyzer

import (
	"math"

	"github.com/compliance/aml-engine/internal/models"
)

// modulePointSet carries the trust/suspicion points of every detector
// module. Trust score influences the reported profile but contributes
// zero points; it is listed so the breakdown stays complete.
type modulePointSet struct {
	Weight         models.ModulePoints
	Entropy        models.ModulePoints
	Predictability models.ModulePoints
	Trust          models.ModulePoints
	Statistics     models.ModulePoints
}

func (s modulePointSet) suspiciousModules() int {
	n := 0
	for _, m := range []models.ModulePoints{s.Weight, s.Entropy, s.Predictability, s.Statistics} {
		// Any suspicion points count, even when the module also earned
		// trust points.
		if m.SuspicionPoints > 0 {
			n++
		}
	}
	return n
}

// calculateModulePoints maps the detector findings onto the point scale.
func calculateModulePoints(
	weight models.WeightAnalysis,
	entropy models.EntropyAnalysis,
	predictability models.PredictabilityAnalysis,
	statistics models.StatisticalAnalysis,
) modulePointSet {
	var points modulePointSet

	points.Weight.Multiplier = 2.0
	switch {
	case weight.TemporalDensityWeeks > 5.0:
		points.Weight.SuspicionPoints += 400
	case weight.TemporalDensityWeeks > 2.0:
		points.Weight.SuspicionPoints += 300
	case weight.TemporalDensityWeeks > 1.0:
		points.Weight.SuspicionPoints += 200
	case weight.TemporalDensityWeeks > 0.5:
		points.Weight.SuspicionPoints += 100
	}
	if weight.IsSuspicious {
		if weight.ThresholdAvoidanceRatio >= 0.5 {
			points.Weight.SuspicionPoints += 300
		}
		if weight.CumulativeLargeAmount >= 50000 {
			points.Weight.SuspicionPoints += 150
		}
		if weight.EconomicPlausibilityIssue {
			points.Weight.SuspicionPoints += 150
		}
		if weight.SourceOfFundsExceeded {
			points.Weight.SuspicionPoints += 200
		}
	}

	points.Entropy.Multiplier = 1.2
	if entropy.EntropyAggregate < 0.3 || entropy.EntropyAggregate > 2.0 {
		points.Entropy.SuspicionPoints += 150
	}
	if entropy.EntropyPaymentMethod < 0.1 {
		points.Entropy.SuspicionPoints += 50
	}

	points.Predictability.Multiplier = 1.0
	switch {
	case predictability.OverallPredictability >= 0.8:
		points.Predictability.TrustPoints += 150
	case predictability.OverallPredictability >= 0.6:
		points.Predictability.TrustPoints += 80
	}
	switch {
	case predictability.OverallPredictability < 0.3:
		points.Predictability.SuspicionPoints += 150
	case predictability.OverallPredictability < 0.5:
		points.Predictability.SuspicionPoints += 75
	}
	if predictability.ZScore < -2.0 {
		points.Predictability.SuspicionPoints += 50
	}

	points.Trust.Multiplier = 1.0

	points.Statistics.Multiplier = 1.5
	if statistics.BenfordScore > 0.6 {
		points.Statistics.SuspicionPoints += 200
	}
	if statistics.VelocityScore > 0.7 {
		points.Statistics.SuspicionPoints += 150
	}
	if statistics.TimeAnomalyScore > 0.6 {
		points.Statistics.SuspicionPoints += 100
	}
	switch {
	case statistics.LayeringScore > 0.9:
		points.Statistics.SuspicionPoints += 500
	case statistics.LayeringScore > 0.7:
		points.Statistics.SuspicionPoints += 300
	case statistics.LayeringScore > 0.5:
		points.Statistics.SuspicionPoints += 150
	}

	return points
}

// applyAmplification boosts the base score when several modules point
// in the same direction. Combined cash-structuring plus statistical
// evidence gets an extra factor.
func applyAmplification(points modulePointSet) float64 {
	amplification := 1.0
	if n := points.suspiciousModules(); n > 1 {
		amplification = math.Min(1.0+0.1*float64(n-1), 1.3)
	}

	weightSuspicious := points.Weight.SuspicionPoints > points.Weight.TrustPoints
	entropySuspicious := points.Entropy.SuspicionPoints > points.Entropy.TrustPoints
	statsSuspicious := points.Statistics.SuspicionPoints > points.Statistics.TrustPoints

	if weightSuspicious && statsSuspicious && points.Statistics.SuspicionPoints > 100 {
		amplification *= 1.2
	}
	if statsSuspicious && entropySuspicious && points.Statistics.SuspicionPoints > 300 {
		amplification *= 1.3
	}

	return amplification
}

// applyNonlinearScaling stretches the mid range so that the ORANGE and
// RED bands separate clearly. Sign is preserved.
func applyNonlinearScaling(score float64) float64 {
	x := math.Abs(score)
	var scaled float64
	switch {
	case x <= 150:
		scaled = x
	case x <= 300:
		scaled = 150 + (x-150)*1.2
	case x <= 500:
		scaled = 330 + (x-300)*1.5
	default:
		scaled = 630 + (x-500)*0.8
	}
	if score < 0 {
		return -scaled
	}
	return scaled
}

// calculateSuspicionScore aggregates all module findings into the final
// score. The point-based path is the calibrated default; the legacy
// small-scale path is kept for comparison runs.
func (a *Analyzer) calculateSuspicionScore(
	weight models.WeightAnalysis,
	entropy models.EntropyAnalysis,
	predictability models.PredictabilityAnalysis,
	trust models.TrustScoreAnalysis,
	statistics models.StatisticalAnalysis,
) float64 {
	zWeight := 0.0
	if weight.ZScore30d > 0 {
		zWeight = math.Min(weight.ZScore30d, 5.0)
	}
	zEntropy := 0.0
	if entropy.ZScore != 0 {
		zEntropy = math.Min(math.Abs(entropy.ZScore), 5.0)
	}

	if !a.cfg.UseTPSP {
		return a.legacySuspicionScore(weight, entropy, statistics, zWeight, zEntropy)
	}

	points := calculateModulePoints(weight, entropy, predictability, statistics)

	weightedSum := 0.40*points.Weight.Net()*points.Weight.Multiplier +
		0.25*points.Entropy.Net()*points.Entropy.Multiplier +
		0.25*points.Predictability.Net()*points.Predictability.Multiplier +
		0.10*points.Statistics.Net()*points.Statistics.Multiplier

	amplified := weightedSum * applyAmplification(points)

	relative := (a.cfg.Alpha*zWeight*30 + a.cfg.Beta*zEntropy*30)

	raw := amplified*0.7 + relative*0.3
	return math.Max(0.0, applyNonlinearScaling(raw))
}

// legacySuspicionScore is the pre-TP/SP combination on a 0-10 scale.
func (a *Analyzer) legacySuspicionScore(
	weight models.WeightAnalysis,
	entropy models.EntropyAnalysis,
	statistics models.StatisticalAnalysis,
	zWeight, zEntropy float64,
) float64 {
	smurfingScore := 0.0
	if weight.IsSuspicious {
		if weight.ThresholdAvoidanceRatio >= 0.5 {
			smurfingScore += 2.0
		}
		if weight.CumulativeLargeAmount >= 50000 {
			smurfingScore += 1.5
		}
		switch {
		case weight.TemporalDensityWeeks > 5.0:
			smurfingScore += 4.0
		case weight.TemporalDensityWeeks > 2.0:
			smurfingScore += 3.0
		case weight.TemporalDensityWeeks > 1.0:
			smurfingScore += 2.0
		case weight.TemporalDensityWeeks > 0.5:
			smurfingScore += 1.0
		}
		if weight.EconomicPlausibilityIssue {
			smurfingScore += 1.5
		}
		if weight.SourceOfFundsExceeded {
			smurfingScore += 2.0
		}
	}

	entropyScore := 0.0
	if entropy.EntropyAggregate < 0.3 || entropy.EntropyAggregate > 2.0 {
		entropyScore += 1.5
	}
	if entropy.EntropyPaymentMethod < 0.1 {
		entropyScore += 0.5
	}

	statsScore := (0.1*statistics.BenfordScore +
		0.1*statistics.VelocityScore +
		0.1*statistics.TimeAnomalyScore +
		0.1*statistics.ClusteringScore +
		0.6*statistics.LayeringScore) * 5

	absolute := (0.40*smurfingScore + 0.30*entropyScore + 0.30*statsScore) * 0.7
	relative := (a.cfg.Alpha*zWeight + a.cfg.Beta*zEntropy) * 0.3

	return math.Max(0.0, absolute+relative)
}

// determineRiskLevel maps the point score onto the four risk bands.
func determineRiskLevel(score float64) string {
	switch {
	case score >= 500:
		return models.RiskLevelRed
	case score >= 300:
		return models.RiskLevelOrange
	case score >= 150:
		return models.RiskLevelYellow
	default:
		return models.RiskLevelGreen
	}
}
