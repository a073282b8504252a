package ingestion

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/compliance/aml-engine/internal/models"
)

const germanHeader = "Datum,Uhrzeit,Timestamp,Kundennummer,Unique Transaktion ID,Vollständiger Name,Auftragsvolumen,In/Out,Art\n"

func TestParseGermanLayout(t *testing.T) {
	data := germanHeader +
		`15.03.2024,"0,5",15.03.2024,K-1001,TX-1,Max Müller,"9500,00",In,Bar` + "\n" +
		`16.03.2024,"0,25",16.03.2024,K-1001,TX-2,Max Müller,"1200,50",Out,Kredit` + "\n"

	result, err := NewCSVParser().Parse(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)
	assert.Zero(t, result.Skipped)

	first := result.Transactions[0]
	assert.Equal(t, "K-1001", first.CustomerID)
	assert.Equal(t, "Max Müller", first.CustomerName)
	assert.Equal(t, 9500.0, first.Amount)
	assert.Equal(t, models.PaymentMethodCash, first.PaymentMethod)
	assert.Equal(t, models.TransactionTypeInvestment, first.TransactionType)
	require.NotNil(t, first.Timestamp)
	assert.Equal(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), *first.Timestamp)

	second := result.Transactions[1]
	assert.Equal(t, 1200.5, second.Amount)
	assert.Equal(t, models.PaymentMethodCreditCard, second.PaymentMethod)
	assert.Equal(t, models.TransactionTypeWithdrawal, second.TransactionType)
	require.NotNil(t, second.Timestamp)
	assert.Equal(t, 6, second.Timestamp.Hour())
}

func TestParseGermanLayoutWindows1252(t *testing.T) {
	data := germanHeader +
		`15.03.2024,"0,5",15.03.2024,K-1001,TX-1,Jürgen Müßig,"800,00",In,SEPA` + "\n"

	encoded, err := charmap.Windows1252.NewEncoder().Bytes([]byte(data))
	require.NoError(t, err)

	result, err := NewCSVParser().Parse(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, "Jürgen Müßig", result.Transactions[0].CustomerName)
}

func TestParseGermanLayoutSkipsBadRows(t *testing.T) {
	data := germanHeader +
		`15.03.2024,"0,5",15.03.2024,K-1001,TX-1,Max Müller,"9500,00",In,Bar` + "\n" +
		`16.03.2024,"0,5",16.03.2024,K-1001,TX-2,Max Müller,not-a-number,In,Bar` + "\n"

	result, err := NewCSVParser().Parse(strings.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, result.Transactions, 1)
	assert.Equal(t, 1, result.Skipped)
}

func TestParseEnglishLayout(t *testing.T) {
	data := "customer_id,transaction_id,customer_name,transaction_amount,payment_method,transaction_type,timestamp\n" +
		"K-2001,TX-10,Anna Schmidt,2500.00,SEPA,investment,2024-03-15T09:30:00Z\n" +
		"K-2001,TX-11,Anna Schmidt,400.00,Bar,auszahlung,2024-03-16\n"

	result, err := NewCSVParser().Parse(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, result.Transactions, 2)

	first := result.Transactions[0]
	assert.Equal(t, "K-2001", first.CustomerID)
	assert.Equal(t, 2500.0, first.Amount)
	require.NotNil(t, first.Timestamp)
	assert.Equal(t, 9, first.Timestamp.Hour())

	second := result.Transactions[1]
	assert.Equal(t, models.TransactionTypeWithdrawal, second.TransactionType)
	require.NotNil(t, second.Timestamp)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), *second.Timestamp)
}

func TestParseEnglishLayoutWithBOM(t *testing.T) {
	data := "\uFEFFcustomer_id,transaction_id,customer_name,transaction_amount,payment_method,transaction_type,timestamp\n" +
		"K-2001,TX-10,Anna Schmidt,2500.00,SEPA,investment,2024-03-15T09:30:00Z\n"

	result, err := NewCSVParser().Parse(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, "K-2001", result.Transactions[0].CustomerID)
}

func TestParseEnglishLayoutMissingColumns(t *testing.T) {
	data := "customer_id,transaction_amount\nK-1,100\n"

	_, err := NewCSVParser().Parse(strings.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns")
	assert.Contains(t, err.Error(), "payment_method")
}

func TestParseNoValidTransactions(t *testing.T) {
	data := "customer_id,transaction_id,customer_name,transaction_amount,payment_method,transaction_type,timestamp\n"

	_, err := NewCSVParser().Parse(strings.NewReader(data))
	assert.ErrorIs(t, err, ErrNoValidTransactions)
}

func TestParseUnparseableTimestampKeepsRow(t *testing.T) {
	data := "customer_id,transaction_id,customer_name,transaction_amount,payment_method,transaction_type,timestamp\n" +
		"K-2001,TX-10,Anna Schmidt,2500.00,SEPA,investment,yesterday\n"

	result, err := NewCSVParser().Parse(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.Nil(t, result.Transactions[0].Timestamp)
}
