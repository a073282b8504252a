package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/charmap"

	"github.com/compliance/aml-engine/internal/models"
)

// ErrNoValidTransactions is returned when a CSV file yields no usable rows.
var ErrNoValidTransactions = errors.New("no valid transactions found in CSV")

// ParseResult reports the outcome of a CSV import.
type ParseResult struct {
	Transactions []models.Transaction
	Skipped      int
}

// Two layouts are accepted:
//
//	customer_id,transaction_id,customer_name,transaction_amount,payment_method,transaction_type,timestamp
//	Datum,Uhrzeit,Timestamp,Kundennummer,Unique Transaktion ID,Vollständiger Name,Auftragsvolumen,In/Out,Art
//
// The German layout uses comma decimals, DD.MM.YYYY dates and a
// day-fraction time column as produced by spreadsheet exports.
type CSVParser struct{}

// NewCSVParser returns a parser for both supported layouts.
func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Parse reads the whole stream, fixes the text encoding and parses
// whichever layout the header announces. Broken rows are skipped and
// counted, they never abort the import.
func (p *CSVParser) Parse(r io.Reader) (*ParseResult, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))] = i
	}

	if _, german := columns["Kundennummer"]; german {
		return p.parseGerman(reader, columns)
	}
	return p.parseEnglish(reader, columns)
}

// decodeText returns the bytes as UTF-8, falling back to Windows-1252
// and Latin-1 for spreadsheet exports.
func decodeText(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	if decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw); err == nil {
		log.Debug().Msg("csv decoded as windows-1252")
		return string(decoded), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("csv not decodable with any known encoding: %w", err)
	}
	log.Debug().Msg("csv decoded as latin-1")
	return string(decoded), nil
}

func (p *CSVParser) parseGerman(reader *csv.Reader, columns map[string]int) (*ParseResult, error) {
	result := &ParseResult{}

	field := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	line := 1
	for {
		line++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("skipping malformed csv row")
			result.Skipped++
			continue
		}

		amountStr := strings.ReplaceAll(field(row, "Auftragsvolumen"), ",", ".")
		amount, err := strconv.ParseFloat(amountStr, 64)
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("skipping row with invalid amount")
			result.Skipped++
			continue
		}

		paymentMethod := field(row, "Art")
		if paymentMethod == "Kredit" {
			paymentMethod = models.PaymentMethodCreditCard
		}

		transactionType := models.TransactionTypeInvestment
		if field(row, "In/Out") == "Out" {
			transactionType = models.TransactionTypeWithdrawal
		}

		timestamp := parseGermanTimestamp(field(row, "Timestamp"), field(row, "Uhrzeit"))

		result.Transactions = append(result.Transactions, models.Transaction{
			CustomerID:      field(row, "Kundennummer"),
			TransactionID:   field(row, "Unique Transaktion ID"),
			CustomerName:    field(row, "Vollständiger Name"),
			Amount:          amount,
			PaymentMethod:   paymentMethod,
			TransactionType: transactionType,
			Timestamp:       timestamp,
		})
	}

	if len(result.Transactions) == 0 {
		return nil, ErrNoValidTransactions
	}

	log.Info().
		Int("transactions", len(result.Transactions)).
		Int("skipped", result.Skipped).
		Str("layout", "german").
		Msg("csv parsed")
	return result, nil
}

// parseGermanTimestamp combines a DD.MM.YYYY date with an optional
// day-fraction time value (0.5 = 12:00).
func parseGermanTimestamp(dateStr, timeStr string) *time.Time {
	if dateStr == "" {
		return nil
	}
	ts, err := time.Parse("02.01.2006", dateStr)
	if err != nil {
		log.Warn().Str("value", dateStr).Msg("unparseable date, storing transaction without timestamp")
		return nil
	}

	if timeStr != "" {
		if fraction, err := strconv.ParseFloat(strings.ReplaceAll(timeStr, ",", "."), 64); err == nil {
			dayHours := fraction * 24
			hours := int(dayHours)
			minutes := int((dayHours - float64(hours)) * 60)
			seconds := int(((dayHours-float64(hours))*60 - float64(minutes)) * 60)
			ts = time.Date(ts.Year(), ts.Month(), ts.Day(), hours, minutes, seconds, 0, ts.Location())
		}
	}

	return &ts
}

var englishRequiredColumns = []string{
	"customer_id", "transaction_id", "customer_name",
	"transaction_amount", "payment_method", "transaction_type",
}

func (p *CSVParser) parseEnglish(reader *csv.Reader, columns map[string]int) (*ParseResult, error) {
	var missing []string
	for _, name := range englishRequiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	result := &ParseResult{}

	field := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	line := 1
	for {
		line++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("skipping malformed csv row")
			result.Skipped++
			continue
		}

		amount, err := strconv.ParseFloat(field(row, "transaction_amount"), 64)
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("skipping row with invalid amount")
			result.Skipped++
			continue
		}

		result.Transactions = append(result.Transactions, models.Transaction{
			CustomerID:      field(row, "customer_id"),
			TransactionID:   field(row, "transaction_id"),
			CustomerName:    field(row, "customer_name"),
			Amount:          amount,
			PaymentMethod:   field(row, "payment_method"),
			TransactionType: field(row, "transaction_type"),
			Timestamp:       parseTimestamp(field(row, "timestamp")),
		})
	}

	if len(result.Transactions) == 0 {
		return nil, ErrNoValidTransactions
	}

	log.Info().
		Int("transactions", len(result.Transactions)).
		Int("skipped", result.Skipped).
		Str("layout", "english").
		Msg("csv parsed")
	return result, nil
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006",
}

func parseTimestamp(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return &ts
		}
	}
	log.Warn().Str("value", value).Msg("unparseable timestamp, storing transaction without it")
	return nil
}
