package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/compliance/aml-engine/configs"
	"github.com/compliance/aml-engine/internal/analyzer"
	"github.com/compliance/aml-engine/internal/ingestion"
	"github.com/compliance/aml-engine/internal/models"
	"github.com/compliance/aml-engine/internal/report"
)

var (
	inputPath  string
	outputDir  string
	recentDays int
	format     string
	verbose    bool
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Batch transaction risk analysis",
		Long: `Reads a transaction CSV export, runs the full risk analysis and
writes an annotated report next to a console summary.`,
		RunE: run,
	}

	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "transaction CSV file (required)")
	rootCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "output", "report output directory")
	rootCmd.Flags().IntVarP(&recentDays, "recent-days", "r", 30, "analysis window in days")
	rootCmd.Flags().StringVarP(&format, "format", "f", "both", "report format: csv, xlsx or both")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	_ = rootCmd.MarkFlagRequired("input")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if format != "csv" && format != "xlsx" && format != "both" {
		return fmt.Errorf("unknown format %q, expected csv, xlsx or both", format)
	}

	cfg := configs.Load()

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	result, err := ingestion.NewCSVParser().Parse(file)
	if err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	log.Info().
		Int("transactions", len(result.Transactions)).
		Int("skipped", result.Skipped).
		Msg("input parsed")

	engine := analyzer.New(analyzer.Config{
		Alpha:          cfg.Engine.Alpha,
		Beta:           cfg.Engine.Beta,
		HistoricalDays: cfg.Engine.HistoricalDays,
		UseTPSP:        cfg.Engine.UseTPSP,
	})
	engine.AddTransactions(result.Transactions)

	profiles, err := engine.AnalyzeAllCustomers(context.Background(), recentDays)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	exporter, err := report.NewExporter(outputDir)
	if err != nil {
		return err
	}

	if format == "csv" || format == "both" {
		name, err := exporter.ExportCSV(profiles)
		if err != nil {
			return fmt.Errorf("csv report: %w", err)
		}
		cmd.Printf("CSV report: %s\n", name)
	}
	if format == "xlsx" || format == "both" {
		name, err := exporter.ExportExcel(profiles)
		if err != nil {
			return fmt.Errorf("xlsx report: %w", err)
		}
		cmd.Printf("XLSX report: %s\n", name)
	}

	var summary models.AnalysisSummary
	for _, p := range profiles {
		switch p.RiskLevel {
		case models.RiskLevelGreen:
			summary.Green++
		case models.RiskLevelYellow:
			summary.Yellow++
		case models.RiskLevelOrange:
			summary.Orange++
		case models.RiskLevelRed:
			summary.Red++
		}
	}

	cmd.Printf("Customers analyzed: %d\n", len(profiles))
	cmd.Printf("  GREEN:  %d\n", summary.Green)
	cmd.Printf("  YELLOW: %d\n", summary.Yellow)
	cmd.Printf("  ORANGE: %d\n", summary.Orange)
	cmd.Printf("  RED:    %d\n", summary.Red)

	return nil
}
