package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/compliance/aml-engine/internal/detectors"
	"github.com/compliance/aml-engine/internal/models"
)

// ErrNoTransactionsInWindow is returned when a customer has no
// transactions inside the requested analysis window.
var ErrNoTransactionsInWindow = errors.New("no transactions in analysis window")

// Config holds the engine tunables.
type Config struct {
	// Alpha weighs the weight z-score, Beta the entropy z-score in the
	// relative score component.
	Alpha float64
	Beta  float64
	// HistoricalDays is the baseline window length.
	HistoricalDays int
	// UseTPSP selects the trust-point/suspicion-point aggregation. The
	// legacy small-scale score remains available for comparison runs
	// only; the documented risk thresholds assume TP/SP.
	UseTPSP bool
}

// DefaultConfig returns the calibrated engine defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:          0.6,
		Beta:           0.4,
		HistoricalDays: 365,
		UseTPSP:        true,
	}
}

// Analyzer coordinates the detector set over an in-memory transaction
// store and produces per-customer risk profiles.
type Analyzer struct {
	cfg Config

	weight         *detectors.WeightDetector
	entropy        *detectors.EntropyDetector
	predictability *detectors.PredictabilityDetector
	trust          *detectors.TrustScoreCalculator
	statistics     *detectors.StatisticalAnalyzer

	now func() time.Time

	mu           sync.RWMutex
	history      map[string][]models.Transaction
	customerInfo map[string]models.CustomerInfo
}

// New creates an analyzer with a fresh in-memory store.
func New(cfg Config) *Analyzer {
	return &Analyzer{
		cfg:            cfg,
		weight:         detectors.NewWeightDetector(),
		entropy:        detectors.NewEntropyDetector(),
		predictability: detectors.NewPredictabilityDetector(),
		trust:          detectors.NewTrustScoreCalculator(0.7),
		statistics:     detectors.NewStatisticalAnalyzer(),
		now:            time.Now,
		history:        make(map[string][]models.Transaction),
		customerInfo:   make(map[string]models.CustomerInfo),
	}
}

// AddTransactions appends transactions to the per-customer store.
func (a *Analyzer) AddTransactions(txns []models.Transaction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, txn := range txns {
		a.history[txn.CustomerID] = append(a.history[txn.CustomerID], txn)
	}
}

// SetCustomerInfo stores declared source-of-funds / income data.
func (a *Analyzer) SetCustomerInfo(info models.CustomerInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.customerInfo[info.CustomerID] = info
}

// Reset drops all stored transactions, customer info and trust state.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	a.history = make(map[string][]models.Transaction)
	a.customerInfo = make(map[string]models.CustomerInfo)
	a.mu.Unlock()
	a.trust.Reset()
}

// TransactionCount returns the number of stored transactions.
func (a *Analyzer) TransactionCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := 0
	for _, txns := range a.history {
		n += len(txns)
	}
	return n
}

// CustomerIDs returns the stored customer ids, sorted.
func (a *Analyzer) CustomerIDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.history))
	for id := range a.history {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AllTransactions returns every stored transaction in sorted customer
// order, for peer and clustering context.
func (a *Analyzer) AllTransactions() []models.Transaction {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.history))
	for id := range a.history {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []models.Transaction
	for _, id := range ids {
		out = append(out, a.history[id]...)
	}
	return out
}

// LatestTimestamp finds the newest timestamp across the whole store.
func (a *Analyzer) LatestTimestamp() *time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latestTimestampLocked()
}

func (a *Analyzer) latestTimestampLocked() *time.Time {
	var latest *time.Time
	for _, txns := range a.history {
		for _, txn := range txns {
			if txn.Timestamp == nil {
				continue
			}
			if latest == nil || txn.Timestamp.After(*latest) {
				ts := *txn.Timestamp
				latest = &ts
			}
		}
	}
	return latest
}

// isHistoricalData reports whether the batch is an archive import: the
// newest transaction is older than thresholdDays.
func (a *Analyzer) isHistoricalData(thresholdDays int) bool {
	latest := a.LatestTimestamp()
	if latest == nil {
		return false
	}
	return a.now().Sub(*latest).Hours()/24 > float64(thresholdDays)
}

// customerTransactions returns a customer's transactions, optionally
// clipped to the last `days` and with the most recent
// `excludeRecentDays` removed. For archive imports the reference point
// is the end of the data rather than the wall clock.
func (a *Analyzer) customerTransactions(customerID string, days, excludeRecentDays int, useDataEnd bool) []models.Transaction {
	a.mu.RLock()
	defer a.mu.RUnlock()

	txns := a.history[customerID]
	if len(txns) == 0 {
		return nil
	}

	reference := a.now()
	if useDataEnd {
		if latest := a.latestTimestampLocked(); latest != nil {
			reference = *latest
		}
	}

	out := make([]models.Transaction, 0, len(txns))
	if days > 0 {
		cutoff := reference.AddDate(0, 0, -days)
		for _, t := range txns {
			if t.Timestamp != nil && !t.Timestamp.Before(cutoff) {
				out = append(out, t)
			}
		}
	} else {
		out = append(out, txns...)
	}

	if excludeRecentDays > 0 {
		excludeCutoff := reference.AddDate(0, 0, -excludeRecentDays)
		kept := out[:0]
		for _, t := range out {
			if t.Timestamp != nil && t.Timestamp.Before(excludeCutoff) {
				kept = append(kept, t)
			}
		}
		out = kept
	}

	return out
}

// AnalyzeCustomer runs the full detector pipeline for one customer.
// allTransactions provides peer and clustering context and may be nil.
func (a *Analyzer) AnalyzeCustomer(customerID string, recentDays int, allTransactions []models.Transaction) (*models.CustomerRiskProfile, error) {
	useHistoricalMode := a.isHistoricalData(90)

	recent := a.customerTransactions(customerID, recentDays, 0, useHistoricalMode)

	var historical []models.Transaction
	if recentDays >= a.cfg.HistoricalDays {
		// Window degenerates: split the covered span 50/50 by time so a
		// baseline still exists.
		all := a.customerTransactions(customerID, a.cfg.HistoricalDays, 0, useHistoricalMode)
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].Timestamp.Before(*all[j].Timestamp)
		})
		if len(all) > 1 {
			split := len(all) / 2
			historical = all[:split]
			recent = all[split:]
		}
	} else {
		historical = a.customerTransactions(customerID, a.cfg.HistoricalDays, recentDays, useHistoricalMode)
	}

	if len(recent) == 0 {
		return nil, fmt.Errorf("customer %s: %w", customerID, ErrNoTransactionsInWindow)
	}

	reference := a.now()
	if useHistoricalMode {
		if latest := a.LatestTimestamp(); latest != nil {
			reference = *latest
		}
	}

	customerName := recent[0].CustomerName
	var totalAmount float64
	for _, t := range recent {
		totalAmount += t.Amount
	}

	a.mu.RLock()
	info, hasInfo := a.customerInfo[customerID]
	a.mu.RUnlock()
	var infoPtr *models.CustomerInfo
	if hasInfo {
		infoPtr = &info
	}

	weightAnalysis := a.weight.Analyze(recent, historical, infoPtr, reference)
	entropyAnalysis := a.entropy.Analyze(recent, historical)
	predictabilityAnalysis := a.predictability.Analyze(recent, historical)

	// Peer group: other customers' transactions of comparable size. Too
	// few peers disables the peer component instead of skewing it.
	var peers []models.Transaction
	var amountSum float64
	for _, t := range recent {
		amountSum += t.Amount
	}
	customerMean := amountSum / float64(len(recent))
	if customerMean > 0 {
		for _, txn := range allTransactions {
			if txn.CustomerID == customerID {
				continue
			}
			if txn.Amount >= 0.5*customerMean && txn.Amount <= 2.0*customerMean {
				peers = append(peers, txn)
			}
		}
	}
	if len(peers) < 10 {
		peers = nil
	}

	trustAnalysis := a.trust.Analyze(customerID, recent, historical, peers)
	statisticalAnalysis := a.statistics.Analyze(recent, allTransactions)

	// Suspicious indicators pull the reported trust score down so that
	// it stays correlated with the risk level.
	trustPenalty := 0.0
	if weightAnalysis.IsSuspicious {
		if weightAnalysis.ThresholdAvoidanceRatio >= 0.5 {
			trustPenalty += 0.3
		} else if weightAnalysis.ThresholdAvoidanceRatio >= 0.3 {
			trustPenalty += 0.2
		}
		if weightAnalysis.CumulativeLargeAmount >= 50000 {
			trustPenalty += 0.2
		}
		if weightAnalysis.TemporalDensityWeeks > 1.0 {
			trustPenalty += 0.2
		}
	}
	switch {
	case statisticalAnalysis.LayeringScore > 0.7:
		trustPenalty += 0.4
	case statisticalAnalysis.LayeringScore > 0.5:
		trustPenalty += 0.3
	case statisticalAnalysis.LayeringScore > 0.3:
		trustPenalty += 0.2
	}
	if entropyAnalysis.IsComplex &&
		(entropyAnalysis.EntropyAggregate < 0.3 || entropyAnalysis.EntropyAggregate > 2.0) {
		trustPenalty += 0.2
	}
	if trustPenalty > 0.7 {
		trustPenalty = 0.7
	}
	trustAnalysis.CurrentScore = math.Max(0.0, math.Min(1.0, trustAnalysis.CurrentScore*(1.0-trustPenalty)))

	suspicionScore := a.calculateSuspicionScore(
		weightAnalysis, entropyAnalysis, predictabilityAnalysis, trustAnalysis, statisticalAnalysis)
	riskLevel := determineRiskLevel(suspicionScore)

	flags := generateFlags(
		weightAnalysis, entropyAnalysis, predictabilityAnalysis, trustAnalysis, statisticalAnalysis)
	recommendations := generateRecommendations(riskLevel, flags)

	log.Debug().
		Str("customer_id", customerID).
		Float64("suspicion_score", suspicionScore).
		Str("risk_level", riskLevel).
		Int("flags", len(flags)).
		Msg("customer analyzed")

	return &models.CustomerRiskProfile{
		CustomerID:             customerID,
		CustomerName:           customerName,
		TotalTransactions:      len(recent),
		TotalAmount:            totalAmount,
		WeightAnalysis:         &weightAnalysis,
		EntropyAnalysis:        &entropyAnalysis,
		PredictabilityAnalysis: &predictabilityAnalysis,
		TrustScoreAnalysis:     &trustAnalysis,
		StatisticalAnalysis:    &statisticalAnalysis,
		SuspicionScore:         suspicionScore,
		RiskLevel:              riskLevel,
		Flags:                  flags,
		Recommendations:        recommendations,
		AnalysisTimestamp:      a.now(),
	}, nil
}

// AnalyzeAllCustomers analyzes every stored customer concurrently.
// Customers without transactions in the window get a default GREEN
// profile. Results are sorted by suspicion score, highest first.
func (a *Analyzer) AnalyzeAllCustomers(ctx context.Context, recentDays int) ([]models.CustomerRiskProfile, error) {
	// New session: trust smoothing starts fresh so repeated batch runs
	// are reproducible.
	a.trust.Reset()

	a.mu.RLock()
	ids := make([]string, 0, len(a.history))
	for id := range a.history {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var allTxns []models.Transaction
	for _, id := range ids {
		allTxns = append(allTxns, a.history[id]...)
	}
	a.mu.RUnlock()

	profiles := make([]*models.CustomerRiskProfile, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			profile, err := a.AnalyzeCustomer(id, recentDays, allTxns)
			if err != nil {
				if errors.Is(err, ErrNoTransactionsInWindow) {
					profiles[i] = &models.CustomerRiskProfile{
						CustomerID:        id,
						RiskLevel:         models.RiskLevelGreen,
						SuspicionScore:    0.0,
						Flags:             []string{},
						Recommendations:   []string{},
						AnalysisTimestamp: a.now(),
					}
					return nil
				}
				log.Error().Err(err).Str("customer_id", id).Msg("customer analysis failed")
				return nil
			}
			profiles[i] = profile
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.CustomerRiskProfile, 0, len(profiles))
	for _, p := range profiles {
		if p != nil {
			out = append(out, *p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SuspicionScore != out[j].SuspicionScore {
			return out[i].SuspicionScore > out[j].SuspicionScore
		}
		return out[i].CustomerID < out[j].CustomerID
	})

	log.Info().
		Int("customers", len(out)).
		Int("recent_days", recentDays).
		Msg("batch analysis complete")

	return out, nil
}

// Statistics aggregates the current batch into distribution figures.
func (a *Analyzer) Statistics(ctx context.Context, recentDays int) (*models.Statistics, error) {
	profiles, err := a.AnalyzeAllCustomers(ctx, recentDays)
	if err != nil {
		return nil, err
	}

	distribution := map[string]int{
		models.RiskLevelGreen:  0,
		models.RiskLevelYellow: 0,
		models.RiskLevelOrange: 0,
		models.RiskLevelRed:    0,
	}
	var scoreSum float64
	flagged := 0
	for _, p := range profiles {
		distribution[p.RiskLevel]++
		scoreSum += p.SuspicionScore
		if p.RiskLevel != models.RiskLevelGreen {
			flagged++
		}
	}

	avg := 0.0
	flaggedPct := 0.0
	if len(profiles) > 0 {
		avg = math.Round(scoreSum/float64(len(profiles))*100) / 100
		flaggedPct = math.Round(float64(flagged)/float64(len(profiles))*10000) / 100
	}

	return &models.Statistics{
		TotalCustomers:        len(profiles),
		TotalTransactions:     a.TransactionCount(),
		RiskDistribution:      distribution,
		AverageSuspicionScore: avg,
		FlaggedPercentage:     flaggedPct,
	}, nil
}
