package detectors

import (
	"time"

	"github.com/compliance/aml-engine/internal/models"
)

var testReference = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func txnAt(amount float64, method, txType string, ts time.Time) models.Transaction {
	t := ts
	return models.Transaction{
		CustomerID:      "K-100",
		TransactionID:   "T-1",
		CustomerName:    "Testkunde",
		Amount:          amount,
		PaymentMethod:   method,
		TransactionType: txType,
		Timestamp:       &t,
	}
}

func cashInvestment(amount float64, ts time.Time) models.Transaction {
	return txnAt(amount, models.PaymentMethodCash, models.TransactionTypeInvestment, ts)
}

func sepaInvestment(amount float64, ts time.Time) models.Transaction {
	return txnAt(amount, models.PaymentMethodSEPA, models.TransactionTypeInvestment, ts)
}

func sepaWithdrawal(amount float64, ts time.Time) models.Transaction {
	return txnAt(amount, models.PaymentMethodSEPA, models.TransactionTypeWithdrawal, ts)
}

func floatPtr(v float64) *float64 { return &v }
