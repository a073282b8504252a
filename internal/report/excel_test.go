package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/compliance/aml-engine/internal/models"
)

func sampleProfiles() []models.CustomerRiskProfile {
	return []models.CustomerRiskProfile{
		{
			CustomerID:        "K-1001",
			CustomerName:      "Max Müller",
			TotalTransactions: 12,
			TotalAmount:       98600,
			RiskLevel:         models.RiskLevelRed,
			SuspicionScore:    506.59,
			Flags:             []string{"STRUKTURIERUNG: Auffällige Transaktionen unter Meldegrenze"},
			WeightAnalysis: &models.WeightAnalysis{
				ThresholdAvoidanceRatio: 1.0,
				CumulativeLargeAmount:   98600,
				TemporalDensityWeeks:    1.07,
			},
			EntropyAnalysis:     &models.EntropyAnalysis{IsComplex: true},
			StatisticalAnalysis: &models.StatisticalAnalysis{LayeringScore: 0.5},
		},
		{
			CustomerID:        "K-2001",
			CustomerName:      "Anna Schmidt",
			TotalTransactions: 8,
			TotalAmount:       6400,
			RiskLevel:         models.RiskLevelGreen,
			SuspicionScore:    0,
			Flags:             []string{},
		},
	}
}

func TestExportCSV(t *testing.T) {
	exporter, err := NewExporter(t.TempDir())
	require.NoError(t, err)

	name, err := exporter.ExportCSV(sampleProfiles())
	require.NoError(t, err)
	assert.Contains(t, name, "Analyzed_Trades_")

	raw, err := os.ReadFile(filepath.Join(exporter.OutputDir, name))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}))

	rows, err := csv.NewReader(bytes.NewReader(raw[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, resultColumns, rows[0])
	assert.Equal(t, "K-1001", rows[1][0])
	assert.Equal(t, models.RiskLevelRed, rows[1][4])
	assert.Equal(t, "100.0", rows[1][7])
	assert.Equal(t, "Ja", rows[1][11])
	assert.Equal(t, "Nein", rows[2][11])
}

func TestExportExcel(t *testing.T) {
	exporter, err := NewExporter(t.TempDir())
	require.NoError(t, err)

	name, err := exporter.ExportExcel(sampleProfiles())
	require.NoError(t, err)

	f, err := excelize.OpenFile(filepath.Join(exporter.OutputDir, name))
	require.NoError(t, err)
	defer f.Close()

	assert.Contains(t, f.GetSheetList(), sheetName)

	a1, err := f.GetCellValue(sheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Customer_ID", a1)

	e2, err := f.GetCellValue(sheetName, "E2")
	require.NoError(t, err)
	assert.Equal(t, models.RiskLevelRed, e2)

	b3, err := f.GetCellValue(sheetName, "B3")
	require.NoError(t, err)
	assert.Equal(t, "Anna Schmidt", b3)
}

func TestNewExporterCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "output")
	_, err := NewExporter(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
