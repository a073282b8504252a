package analyzer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/compliance/aml-engine/internal/models"
)

// Flag and recommendation texts are kept verbatim from the compliance
// catalogue (German, icon-prefixed). Callers treat them as opaque
// identifiers; the recommendation rules match on the keyword part.
const (
	flagSmurfingThreshold     = "🚨 SMURFING-VERDACHT: Bar-Investments nah unter 10.000€ Grenze"
	flagSmurfingSmall         = "⚠️ SMURFING-VERDACHT: Viele kleine Transaktionen"
	flagHighActivity          = "🔴 HOHE TRANSAKTIONSAKTIVITÄT: Z-Score >= 3"
	flagSmallAmountPattern    = "💰 KLEINBETRAGS-MUSTER: >80% Transaktionen <2000 EUR"
	flagSourceOfFunds         = "🚨 SOURCE OF FUNDS ÜBERSCHRITTEN: Kumulative Summe > angegebener SoF"
	flagEconomicPlausibility  = "⚠️ ECONOMIC PLAUSIBILITY: Unrealistisch hohe Beträge im Verhältnis zum Einkommen"
	flagEntropyConcentration  = "📍 ENTROPIE-KANALISATION: Extreme Konzentration auf wenige Muster"
	flagEntropyDispersion     = "🔀 ENTROPIE-VERSCHLEIERUNG: Extreme Streuung (jeder Betrag unterschiedlich)"
	flagEntropyUp             = "🔀 UNGEWÖHNLICHE STREUUNG: Erhöhte Komplexität vs. Historie"
	flagEntropyDown           = "📍 KANALISATION: Konzentration auf wenige Muster vs. Historie"
	flagVeryUnstable          = "⚠️ INSTABILES VERHALTEN: Sehr niedrige Predictability (< 0.3)"
	flagUnpredictable         = "📊 UNVORHERSAGBARES VERHALTEN: Niedrige Predictability (< 0.5)"
	flagPredictabilityDrop    = "📉 PREDICTABILITY-ABWEICHUNG: Starke negative Abweichung von historischer Baseline"
	flagLowTrust              = "📉 NIEDRIGER TRUST SCORE: Unvorhersagbares Verhalten"
	flagBehaviourChange       = "⚡ VERHALTENSÄNDERUNG: Starke Abweichung vom eigenen Profil"
	flagBenford               = "📊 BENFORD-ABWEICHUNG: Unnatürliche Zahlenverteilung"
	flagVelocity              = "⏱️ HOHE VELOCITY: Ungewöhnliche Transaktionsgeschwindigkeit"
	flagTimeAnomaly           = "🕐 ZEITANOMALIEN: Ungewöhnliche Uhrzeiten/Tage"
	flagPeerDeviation         = "👥 PEER-ABWEICHUNG: Untypisch für Kundengruppe"
	flagLaunderingStrong      = "🚨 GELDWÄSCHE-VERDACHT: Bar-Einzahlung → SEPA-Auszahlung"
	flagLaunderingPattern     = "⚠️ LAYERING-MUSTER: Auffällige Bar/SEPA-Kombination"
)

func flagCumulativeSum(amount float64) string {
	return fmt.Sprintf("💰 GROSSE KUMULATIVE SUMME: %s€ nah unter Grenze", formatThousands(amount))
}

func flagThresholdAvoidance(ratio float64) string {
	return fmt.Sprintf("🎯 THRESHOLD-AVOIDANCE: %.0f%% der Bar-Investments nah unter Grenze", ratio*100)
}

func flagTemporalDensity(density float64) string {
	return fmt.Sprintf("⏱️ HOHE TEMPORALE DICHTE: %.2f Transaktionen/Woche", density)
}

// formatThousands renders a rounded amount with comma grouping.
func formatThousands(v float64) string {
	s := strconv.FormatFloat(v, 'f', 0, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// generateFlags builds the warning list for one customer profile.
func generateFlags(
	weight models.WeightAnalysis,
	entropy models.EntropyAnalysis,
	predictability models.PredictabilityAnalysis,
	trust models.TrustScoreAnalysis,
	statistics models.StatisticalAnalysis,
) []string {
	flags := []string{}

	if weight.IsSuspicious {
		if weight.ThresholdAvoidanceRatio >= 0.5 {
			flags = append(flags, flagSmurfingThreshold)
			if weight.CumulativeLargeAmount >= 50000.0 {
				flags = append(flags, flagCumulativeSum(weight.CumulativeLargeAmount))
			}
		} else {
			flags = append(flags, flagSmurfingSmall)
		}
	}

	if weight.ZScore30d >= 3.0 {
		flags = append(flags, flagHighActivity)
	}
	if weight.SmallTransactionRatio >= 0.8 {
		flags = append(flags, flagSmallAmountPattern)
	}
	if weight.ThresholdAvoidanceRatio >= 0.7 {
		flags = append(flags, flagThresholdAvoidance(weight.ThresholdAvoidanceRatio))
	}
	if weight.TemporalDensityWeeks > 0.5 {
		flags = append(flags, flagTemporalDensity(weight.TemporalDensityWeeks))
	}
	if weight.SourceOfFundsExceeded {
		flags = append(flags, flagSourceOfFunds)
	}
	if weight.EconomicPlausibilityIssue {
		flags = append(flags, flagEconomicPlausibility)
	}

	if entropy.EntropyAggregate < 0.3 {
		flags = append(flags, flagEntropyConcentration)
	} else if entropy.EntropyAggregate > 2.0 {
		flags = append(flags, flagEntropyDispersion)
	}
	if entropy.IsComplex && entropy.ZScore != 0 {
		if entropy.ZScore > 2.0 {
			flags = append(flags, flagEntropyUp)
		} else if entropy.ZScore < -2.0 {
			flags = append(flags, flagEntropyDown)
		}
	}

	if !predictability.IsStable {
		if predictability.OverallPredictability < 0.3 {
			flags = append(flags, flagVeryUnstable)
		} else if predictability.OverallPredictability < 0.5 {
			flags = append(flags, flagUnpredictable)
		}
	}
	if predictability.ZScore < -2.0 {
		flags = append(flags, flagPredictabilityDrop)
	}

	if trust.CurrentScore < 0.3 {
		flags = append(flags, flagLowTrust)
	}
	if trust.SelfDeviation > 0.7 {
		flags = append(flags, flagBehaviourChange)
	}

	if statistics.BenfordScore > 0.6 {
		flags = append(flags, flagBenford)
	}
	if statistics.VelocityScore > 0.7 {
		flags = append(flags, flagVelocity)
	}
	if statistics.TimeAnomalyScore > 0.6 {
		flags = append(flags, flagTimeAnomaly)
	}
	if statistics.ClusteringScore > 0.7 {
		flags = append(flags, flagPeerDeviation)
	}
	if statistics.LayeringScore > 0.5 {
		flags = append(flags, flagLaunderingStrong)
	} else if statistics.LayeringScore > 0.3 {
		flags = append(flags, flagLaunderingPattern)
	}

	return flags
}

// generateRecommendations maps the risk level and flags onto concrete
// follow-up actions.
func generateRecommendations(riskLevel string, flags []string) []string {
	recommendations := []string{}

	switch riskLevel {
	case models.RiskLevelGreen:
		recommendations = append(recommendations, "✅ Keine Maßnahmen erforderlich")
	case models.RiskLevelYellow:
		recommendations = append(recommendations,
			"👁️ Monitoring intensivieren",
			"📝 Transaktionsmuster dokumentieren")
	case models.RiskLevelOrange:
		recommendations = append(recommendations,
			"📄 Nachweise anfordern (z.B. Source of Funds)",
			"🔍 Enhanced Due Diligence prüfen",
			"📞 Kundenkontakt aufnehmen")
	case models.RiskLevelRed:
		recommendations = append(recommendations,
			"🚨 DRINGEND: Nachweise erforderlich",
			"⚠️ Enhanced Due Diligence durchführen",
			"📋 Compliance-Team informieren",
			"🔒 Ggf. temporäre Limits setzen")
	}

	if anyFlagContains(flags, "SMURFING") {
		recommendations = append(recommendations, "💡 Prüfen: Geschäftliche Begründung für Zahlungsstruktur")
	}
	if anyFlagContains(flags, "BENFORD") {
		recommendations = append(recommendations, "💡 Prüfen: Belege und Rechnungen auf Authentizität")
	}
	if anyFlagContains(flags, "VELOCITY") {
		recommendations = append(recommendations, "💡 Prüfen: Plausibilität der Transaktionsfrequenz")
	}
	if anyFlagContains(flags, "GELDWÄSCHE") || anyFlagContains(flags, "LAYERING") {
		recommendations = append(recommendations,
			"🚨 GELDWÄSCHE-VERDACHT: Source of Funds für Bar-Einzahlungen",
			"🔍 Prüfen: Zusammenhang zwischen Ein- und Auszahlungen",
			"⚠️ Ggf. SAR (Suspicious Activity Report) erwägen")
	}

	return recommendations
}

func anyFlagContains(flags []string, keyword string) bool {
	for _, f := range flags {
		if strings.Contains(f, keyword) {
			return true
		}
	}
	return false
}
