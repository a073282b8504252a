package detectors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/compliance/aml-engine/internal/models"
)

func TestShannonEntropy(t *testing.T) {
	assert.Zero(t, ShannonEntropy([]float64{1.0}))
	assert.InDelta(t, 1.0, ShannonEntropy([]float64{0.5, 0.5}), 1e-9)
	assert.InDelta(t, 2.0, ShannonEntropy([]float64{0.25, 0.25, 0.25, 0.25}), 1e-9)
}

func TestAmountEntropySingleBin(t *testing.T) {
	d := NewEntropyDetector()
	txns := []models.Transaction{
		sepaInvestment(3000, testReference),
		sepaInvestment(4500, testReference),
		sepaInvestment(9000, testReference),
	}
	// all amounts land in the 2000-10000 bin
	assert.Zero(t, d.AmountEntropy(txns))
}

func TestAmountEntropyTwoBins(t *testing.T) {
	d := NewEntropyDetector()
	txns := []models.Transaction{
		sepaInvestment(100, testReference),
		sepaInvestment(3000, testReference),
	}
	assert.InDelta(t, 1.0, d.AmountEntropy(txns), 1e-9)
}

func TestAnalyzeConcentratedBehaviourIsComplex(t *testing.T) {
	d := NewEntropyDetector()

	var recent []models.Transaction
	for i := 0; i < 12; i++ {
		recent = append(recent, cashInvestment(7500, testReference.AddDate(0, 0, -7*i)))
	}

	analysis := d.Analyze(recent, nil)

	assert.Zero(t, analysis.EntropyAggregate)
	assert.True(t, analysis.IsComplex)
	assert.Zero(t, analysis.ZScore)
}

func TestAnalyzeModerateMixIsNotComplex(t *testing.T) {
	d := NewEntropyDetector()

	monday := testReference // Monday 12:00
	tuesday := testReference.AddDate(0, 0, 1).Add(-6 * time.Hour)
	recent := []models.Transaction{
		txnAt(300, models.PaymentMethodCash, models.TransactionTypeInvestment, monday),
		txnAt(1000, models.PaymentMethodSEPA, models.TransactionTypeWithdrawal, tuesday),
		txnAt(300, models.PaymentMethodCash, models.TransactionTypeInvestment, monday.AddDate(0, 0, 7)),
		txnAt(1000, models.PaymentMethodSEPA, models.TransactionTypeWithdrawal, tuesday.AddDate(0, 0, 7)),
		txnAt(300, models.PaymentMethodCash, models.TransactionTypeInvestment, monday.AddDate(0, 0, 14)),
		txnAt(1000, models.PaymentMethodSEPA, models.TransactionTypeWithdrawal, tuesday.AddDate(0, 0, 14)),
		txnAt(300, models.PaymentMethodCash, models.TransactionTypeInvestment, monday.AddDate(0, 0, 21)),
		txnAt(1000, models.PaymentMethodSEPA, models.TransactionTypeWithdrawal, tuesday.AddDate(0, 0, 21)),
	}

	analysis := d.Analyze(recent, nil)

	// amount, payment and type entropies are all exactly one bit; the
	// weighted aggregate sits comfortably inside the normal band
	assert.InDelta(t, 1.0, analysis.EntropyAmount, 1e-9)
	assert.InDelta(t, 1.0, analysis.EntropyPaymentMethod, 1e-9)
	assert.InDelta(t, 1.0, analysis.EntropyTransactionType, 1e-9)
	assert.Greater(t, analysis.EntropyAggregate, 0.3)
	assert.Less(t, analysis.EntropyAggregate, 2.0)
	assert.False(t, analysis.IsComplex)
}

func TestAnalyzeUniqueAmountsAreComplex(t *testing.T) {
	d := NewEntropyDetector()

	var recent []models.Transaction
	for i := 0; i < 12; i++ {
		recent = append(recent, sepaInvestment(1000+float64(i)*137, testReference.AddDate(0, 0, -i)))
	}

	analysis := d.Analyze(recent, nil)
	assert.True(t, analysis.IsComplex)
}

func TestHistoricalEntropiesNeedDenseWindows(t *testing.T) {
	d := NewEntropyDetector()

	// 21-day spacing never yields five transactions per 30-day window
	var historical []models.Transaction
	for i := 0; i < 10; i++ {
		historical = append(historical, sepaInvestment(1000, testReference.AddDate(0, 0, -21*i)))
	}
	assert.Empty(t, d.historicalEntropies(historical, 30))

	// daily activity does
	var dense []models.Transaction
	for i := 0; i < 60; i++ {
		dense = append(dense, sepaInvestment(1000, testReference.AddDate(0, 0, -i)))
	}
	assert.NotEmpty(t, d.historicalEntropies(dense, 30))
}
