package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/compliance/aml-engine/internal/models"
)

// Exporter writes analysis results as CSV and styled XLSX files into a
// target directory.
type Exporter struct {
	OutputDir string
}

// NewExporter creates the output directory if needed.
func NewExporter(outputDir string) (*Exporter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Exporter{OutputDir: outputDir}, nil
}

var resultColumns = []string{
	"Customer_ID",
	"Customer_Name",
	"Total_Transactions",
	"Total_Amount",
	"Risk_Level",
	"Suspicion_Score",
	"Flags",
	"Threshold_Avoidance_Ratio_%",
	"Cumulative_Large_Amount",
	"Temporal_Density_Weeks",
	"Layering_Score",
	"Entropy_Complex",
}

func resultRow(p models.CustomerRiskProfile) []string {
	avoidance, cumulative, density := 0.0, 0.0, 0.0
	if p.WeightAnalysis != nil {
		avoidance = p.WeightAnalysis.ThresholdAvoidanceRatio * 100
		cumulative = p.WeightAnalysis.CumulativeLargeAmount
		density = p.WeightAnalysis.TemporalDensityWeeks
	}
	layering := 0.0
	if p.StatisticalAnalysis != nil {
		layering = p.StatisticalAnalysis.LayeringScore
	}
	entropyComplex := "Nein"
	if p.EntropyAnalysis != nil && p.EntropyAnalysis.IsComplex {
		entropyComplex = "Ja"
	}

	return []string{
		p.CustomerID,
		p.CustomerName,
		strconv.Itoa(p.TotalTransactions),
		strconv.FormatFloat(p.TotalAmount, 'f', 2, 64),
		p.RiskLevel,
		strconv.FormatFloat(p.SuspicionScore, 'f', 2, 64),
		strings.Join(p.Flags, " | "),
		strconv.FormatFloat(avoidance, 'f', 1, 64),
		strconv.FormatFloat(cumulative, 'f', 2, 64),
		strconv.FormatFloat(density, 'f', 2, 64),
		strconv.FormatFloat(layering, 'f', 2, 64),
		entropyComplex,
	}
}

func (e *Exporter) baseName() string {
	return fmt.Sprintf("Analyzed_Trades_%s_%s",
		time.Now().Format("20060102_150405"),
		uuid.New().String()[:8])
}

// ExportCSV writes the profiles as a UTF-8 CSV with BOM so that
// spreadsheet tools pick up the umlauts. Returns the file name.
func (e *Exporter) ExportCSV(profiles []models.CustomerRiskProfile) (string, error) {
	name := e.baseName() + ".csv"
	path := filepath.Join(e.OutputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return "", fmt.Errorf("write bom: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(resultColumns); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, p := range profiles {
		if err := w.Write(resultRow(p)); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}

	log.Info().Str("file", name).Int("rows", len(profiles)).Msg("csv report written")
	return name, nil
}

const sheetName = "Analyse-Ergebnisse"

var riskFillColors = map[string]string{
	models.RiskLevelGreen:  "C6EFCE",
	models.RiskLevelYellow: "FFEB9C",
	models.RiskLevelOrange: "FFA500",
	models.RiskLevelRed:    "FF6B6B",
}

// ExportExcel writes a styled workbook: blue header, colour-coded risk
// levels, frozen header row. Returns the file name.
func (e *Exporter) ExportExcel(profiles []models.CustomerRiskProfile) (string, error) {
	name := e.baseName() + ".xlsx"
	path := filepath.Join(e.OutputDir, name)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return "", fmt.Errorf("rename sheet: %w", err)
	}

	thinBorder := []excelize.Border{
		{Type: "left", Style: 1}, {Type: "right", Style: 1},
		{Type: "top", Style: 1}, {Type: "bottom", Style: 1},
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    thinBorder,
	})
	if err != nil {
		return "", fmt.Errorf("header style: %w", err)
	}

	cellStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return "", fmt.Errorf("cell style: %w", err)
	}

	riskStyles := make(map[string]int, len(riskFillColors))
	for level, color := range riskFillColors {
		style, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Font:      &excelize.Font{Bold: true, Color: "000000"},
			Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
			Border:    thinBorder,
		})
		if err != nil {
			return "", fmt.Errorf("risk style: %w", err)
		}
		riskStyles[level] = style
	}

	for col, header := range resultColumns {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return "", fmt.Errorf("style header: %w", err)
		}
	}

	riskLevelCol := 0
	for i, name := range resultColumns {
		if name == "Risk_Level" {
			riskLevelCol = i + 1
		}
	}

	for rowIdx, p := range profiles {
		row := rowIdx + 2
		values := []interface{}{
			p.CustomerID,
			p.CustomerName,
			p.TotalTransactions,
			round2(p.TotalAmount),
			p.RiskLevel,
			round2(p.SuspicionScore),
			strings.Join(p.Flags, " | "),
			0.0, 0.0, 0.0, 0.0, "Nein",
		}
		if p.WeightAnalysis != nil {
			values[7] = round1(p.WeightAnalysis.ThresholdAvoidanceRatio * 100)
			values[8] = round2(p.WeightAnalysis.CumulativeLargeAmount)
			values[9] = round2(p.WeightAnalysis.TemporalDensityWeeks)
		}
		if p.StatisticalAnalysis != nil {
			values[10] = round2(p.StatisticalAnalysis.LayeringScore)
		}
		if p.EntropyAnalysis != nil && p.EntropyAnalysis.IsComplex {
			values[11] = "Ja"
		}

		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return "", fmt.Errorf("write cell: %w", err)
			}
			style := cellStyle
			if col+1 == riskLevelCol {
				if s, ok := riskStyles[p.RiskLevel]; ok {
					style = s
				}
			}
			if err := f.SetCellStyle(sheetName, cell, cell, style); err != nil {
				return "", fmt.Errorf("style cell: %w", err)
			}
		}
	}

	if err := f.SetColWidth(sheetName, "A", "B", 18); err != nil {
		return "", fmt.Errorf("set widths: %w", err)
	}
	if err := f.SetColWidth(sheetName, "G", "G", 60); err != nil {
		return "", fmt.Errorf("set widths: %w", err)
	}
	if err := f.SetColWidth(sheetName, "C", "F", 16); err != nil {
		return "", fmt.Errorf("set widths: %w", err)
	}
	if err := f.SetColWidth(sheetName, "H", "L", 16); err != nil {
		return "", fmt.Errorf("set widths: %w", err)
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return "", fmt.Errorf("freeze header: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	log.Info().Str("file", name).Int("rows", len(profiles)).Msg("excel report written")
	return name, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
