package models

import (
	"time"
)

// PaymentMethod enum values
const (
	PaymentMethodCash       = "Bar"
	PaymentMethodSEPA       = "SEPA"
	PaymentMethodCreditCard = "Kreditkarte"
)

// TransactionType enum values
const (
	TransactionTypeInvestment = "investment"
	TransactionTypeWithdrawal = "auszahlung"
)

// RiskLevel enum values (scaled suspicion score bands)
const (
	RiskLevelGreen  = "GREEN"  // < 150
	RiskLevelYellow = "YELLOW" // 150-299
	RiskLevelOrange = "ORANGE" // 300-499
	RiskLevelRed    = "RED"    // >= 500
)

// ValidPaymentMethod reports whether s is a known payment method.
func ValidPaymentMethod(s string) bool {
	switch s {
	case PaymentMethodCash, PaymentMethodSEPA, PaymentMethodCreditCard:
		return true
	}
	return false
}

// ValidTransactionType reports whether s is a known transaction type.
func ValidTransactionType(s string) bool {
	switch s {
	case TransactionTypeInvestment, TransactionTypeWithdrawal:
		return true
	}
	return false
}

// Transaction represents a single customer transaction. Timestamp is
// optional; detectors that need a time axis skip untimestamped rows.
type Transaction struct {
	CustomerID      string     `json:"customer_id" binding:"required"`
	TransactionID   string     `json:"transaction_id" binding:"required"`
	CustomerName    string     `json:"customer_name"`
	Amount          float64    `json:"transaction_amount" binding:"min=0"`
	PaymentMethod   string     `json:"payment_method" binding:"required"`
	TransactionType string     `json:"transaction_type" binding:"required"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
}

// CustomerInfo carries declared source-of-funds and income figures used
// for plausibility checks. Both amounts are optional.
type CustomerInfo struct {
	CustomerID    string   `json:"customer_id" binding:"required"`
	SourceOfFunds *float64 `json:"source_of_funds,omitempty"`
	MonthlyIncome *float64 `json:"monthly_income,omitempty"`
}

// WeightAnalysis is the anti-smurfing module result.
type WeightAnalysis struct {
	Weight7d                  float64 `json:"weight_7d"`
	Weight30d                 float64 `json:"weight_30d"`
	Weight90d                 float64 `json:"weight_90d"`
	ZScore7d                  float64 `json:"z_score_7d"`
	ZScore30d                 float64 `json:"z_score_30d"`
	ZScore90d                 float64 `json:"z_score_90d"`
	IsSuspicious              bool    `json:"is_suspicious"`
	SmallTransactionRatio     float64 `json:"small_transaction_ratio"`
	ThresholdAvoidanceRatio   float64 `json:"threshold_avoidance_ratio"`
	CumulativeLargeAmount     float64 `json:"cumulative_large_amount"`
	TemporalDensityWeeks      float64 `json:"temporal_density_weeks"`
	SourceOfFundsExceeded     bool    `json:"source_of_funds_exceeded"`
	EconomicPlausibilityIssue bool    `json:"economic_plausibility_issue"`
}

// EntropyAnalysis is the behavioural-complexity module result.
type EntropyAnalysis struct {
	EntropyAmount          float64 `json:"entropy_amount"`
	EntropyPaymentMethod   float64 `json:"entropy_payment_method"`
	EntropyTransactionType float64 `json:"entropy_transaction_type"`
	EntropyTime            float64 `json:"entropy_time"`
	EntropyAggregate       float64 `json:"entropy_aggregate"`
	ZScore                 float64 `json:"z_score"`
	IsComplex              bool    `json:"is_complex"`
}

// PredictabilityAnalysis is the behavioural-stability module result.
type PredictabilityAnalysis struct {
	TemporalStability      float64 `json:"temporal_stability"`
	AmountConsistency      float64 `json:"amount_consistency"`
	ChannelContinuity      float64 `json:"channel_continuity"`
	OverallPredictability  float64 `json:"overall_predictability"`
	ZScore                 float64 `json:"z_score"`
	IsStable               bool    `json:"is_stable"`
}

// TrustScoreAnalysis is the smoothed per-customer trust module result.
type TrustScoreAnalysis struct {
	CurrentScore   float64 `json:"current_score"`
	Predictability float64 `json:"predictability"`
	SelfDeviation  float64 `json:"self_deviation"`
	PeerDeviation  float64 `json:"peer_deviation"`
}

// StatisticalAnalysis bundles the auxiliary statistical signals.
type StatisticalAnalysis struct {
	BenfordScore     float64 `json:"benford_score"`
	VelocityScore    float64 `json:"velocity_score"`
	TimeAnomalyScore float64 `json:"time_anomaly_score"`
	ClusteringScore  float64 `json:"clustering_score"`
	LayeringScore    float64 `json:"layering_score"`
}

// ModulePoints holds one module's trust points, suspicion points and
// multiplier in the TP/SP aggregation.
type ModulePoints struct {
	TrustPoints     float64 `json:"trust_points"`
	SuspicionPoints float64 `json:"suspicion_points"`
	Multiplier      float64 `json:"multiplier"`
}

// Net returns SP - TP, the module's net suspicion contribution before
// the multiplier is applied.
func (m ModulePoints) Net() float64 {
	return m.SuspicionPoints - m.TrustPoints
}

// CustomerRiskProfile is the full per-customer analysis output. The
// analysis pointers are nil for customers with no activity in the window.
type CustomerRiskProfile struct {
	CustomerID        string  `json:"customer_id"`
	CustomerName      string  `json:"customer_name"`
	TotalTransactions int     `json:"total_transactions"`
	TotalAmount       float64 `json:"total_amount"`

	WeightAnalysis         *WeightAnalysis         `json:"weight_analysis,omitempty"`
	EntropyAnalysis        *EntropyAnalysis        `json:"entropy_analysis,omitempty"`
	PredictabilityAnalysis *PredictabilityAnalysis `json:"predictability_analysis,omitempty"`
	TrustScoreAnalysis     *TrustScoreAnalysis     `json:"trust_score_analysis,omitempty"`
	StatisticalAnalysis    *StatisticalAnalysis    `json:"statistical_analysis,omitempty"`

	SuspicionScore    float64   `json:"suspicion_score"`
	RiskLevel         string    `json:"risk_level"`
	Flags             []string  `json:"flags"`
	Recommendations   []string  `json:"recommendations"`
	AnalysisTimestamp time.Time `json:"analysis_timestamp"`
}

// AnalysisSummary counts profiles per risk level.
type AnalysisSummary struct {
	Green  int `json:"green"`
	Yellow int `json:"yellow"`
	Orange int `json:"orange"`
	Red    int `json:"red"`
}

// AnalysisResponse is the batch-analysis API payload.
type AnalysisResponse struct {
	Status            string                `json:"status"`
	Message           string                `json:"message"`
	AnalyzedCustomers int                   `json:"analyzed_customers"`
	FlaggedCustomers  []CustomerRiskProfile `json:"flagged_customers"`
	Summary           AnalysisSummary       `json:"summary"`
}

// Statistics is the aggregate view over the current in-memory batch.
type Statistics struct {
	TotalCustomers        int            `json:"total_customers"`
	TotalTransactions     int            `json:"total_transactions"`
	RiskDistribution      map[string]int `json:"risk_distribution"`
	AverageSuspicionScore float64        `json:"average_suspicion_score"`
	FlaggedPercentage     float64        `json:"flagged_percentage"`
}

// HealthResponse is the health-check payload.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}
