package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/compliance/aml-engine/configs"
	"github.com/compliance/aml-engine/internal/analyzer"
	"github.com/compliance/aml-engine/internal/ingestion"
	"github.com/compliance/aml-engine/internal/models"
	"github.com/compliance/aml-engine/internal/report"
)

const version = "2.0.0"

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aml_http_requests_total",
		Help: "HTTP requests by method, path and status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aml_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	analyzedCustomersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aml_analyzed_customers_total",
		Help: "Customers analyzed since start.",
	})

	riskLevelTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aml_risk_level_total",
		Help: "Risk level occurrences across batch analyses.",
	}, []string{"level"})
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := configs.Load()

	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Str("version", version).
		Msg("Starting AML Engine API Server")

	engine := analyzer.New(analyzer.Config{
		Alpha:          cfg.Engine.Alpha,
		Beta:           cfg.Engine.Beta,
		HistoricalDays: cfg.Engine.HistoricalDays,
		UseTPSP:        cfg.Engine.UseTPSP,
	})

	parser := ingestion.NewCSVParser()

	exporter, err := report.NewExporter(cfg.Report.OutputDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare report directory")
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())

	// Rate limiting: 100 requests per minute per IP
	rateLimiter := NewRateLimiter(100, time.Minute)
	router.Use(rateLimitMiddleware(rateLimiter))

	setupRoutes(router, engine, parser, exporter, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func setupRoutes(
	router *gin.Engine,
	engine *analyzer.Analyzer,
	parser *ingestion.CSVParser,
	exporter *report.Exporter,
	cfg *configs.Config,
) {
	startTime := time.Now()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:        "healthy",
			Version:       version,
			UptimeSeconds: time.Since(startTime).Seconds(),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/analyze/transaction", analyzeTransactionHandler(engine, cfg))
		api.POST("/analyze/csv", analyzeCSVHandler(parser, exporter, cfg))
		api.POST("/batch/transactions", batchTransactionsHandler(engine, cfg))
		api.POST("/customer-info", customerInfoHandler(engine))
		api.GET("/customer/:id/risk-profile", riskProfileHandler(engine, cfg))
		api.GET("/flagged-customers", flaggedCustomersHandler(engine, cfg))
		api.GET("/statistics", statisticsHandler(engine, cfg))
		api.DELETE("/reset", resetHandler(engine))
	}
}

// Middleware

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		requestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(status)).Inc()
		requestDuration.WithLabelValues(c.Request.Method, c.FullPath()).Observe(latency.Seconds())

		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("request_id", c.GetString("request_id")).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimiter implements a simple in-memory rate limiter using token bucket algorithm
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	// Clean up old visitors periodically
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	now := time.Now()

	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastSeen: now}
		return true
	}

	// Refill tokens based on time elapsed
	elapsed := now.Sub(v.lastSeen)
	refill := int(elapsed / (rl.window / time.Duration(rl.rate)))
	v.tokens += refill
	if v.tokens > rl.rate {
		v.tokens = rl.rate
	}
	v.lastSeen = now

	if v.tokens > 0 {
		v.tokens--
		return true
	}

	return false
}

func rateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			c.Header("Retry-After", "60")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 60,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Handlers

func analyzeTransactionHandler(engine *analyzer.Analyzer, cfg *configs.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var txn models.Transaction
		if err := c.ShouldBindJSON(&txn); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !models.ValidPaymentMethod(txn.PaymentMethod) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown payment_method: %s", txn.PaymentMethod)})
			return
		}
		if !models.ValidTransactionType(txn.TransactionType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown transaction_type: %s", txn.TransactionType)})
			return
		}

		engine.AddTransactions([]models.Transaction{txn})

		profile, err := engine.AnalyzeCustomer(txn.CustomerID, cfg.Engine.RecentDays, engine.AllTransactions())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		analyzedCustomersTotal.Inc()
		riskLevelTotal.WithLabelValues(profile.RiskLevel).Inc()

		c.JSON(http.StatusOK, profile)
	}
}

func analyzeCSVHandler(parser *ingestion.CSVParser, exporter *report.Exporter, cfg *configs.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file upload"})
			return
		}

		recentDays := cfg.Engine.RecentDays
		if v := c.PostForm("recent_days"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				recentDays = n
			}
		}
		historicalDays := cfg.Engine.HistoricalDays
		if v := c.PostForm("historical_days"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				historicalDays = n
			}
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer file.Close()

		result, err := parser.Parse(file)
		if err != nil {
			status := http.StatusBadRequest
			if !errors.Is(err, ingestion.ErrNoValidTransactions) {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		// Every upload is analyzed in isolation with the requested windows.
		batch := analyzer.New(analyzer.Config{
			Alpha:          cfg.Engine.Alpha,
			Beta:           cfg.Engine.Beta,
			HistoricalDays: historicalDays,
			UseTPSP:        cfg.Engine.UseTPSP,
		})
		batch.AddTransactions(result.Transactions)

		profiles, err := batch.AnalyzeAllCustomers(c.Request.Context(), recentDays)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		csvName, err := exporter.ExportCSV(profiles)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		excelName, err := exporter.ExportExcel(profiles)
		if err != nil {
			log.Warn().Err(err).Msg("excel export failed, csv report is still available")
		}

		resp := buildAnalysisResponse(profiles,
			fmt.Sprintf("%d Transaktionen analysiert, %d Kunden bewertet", len(result.Transactions), len(profiles)))

		c.JSON(http.StatusOK, gin.H{
			"status":             resp.Status,
			"message":            resp.Message,
			"analyzed_customers": resp.AnalyzedCustomers,
			"flagged_customers":  resp.FlaggedCustomers,
			"summary":            resp.Summary,
			"skipped_rows":       result.Skipped,
			"csv_filename":       csvName,
			"excel_filename":     excelName,
		})
	}
}

func batchTransactionsHandler(engine *analyzer.Analyzer, cfg *configs.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var txns []models.Transaction
		if err := c.ShouldBindJSON(&txns); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(txns) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no transactions provided"})
			return
		}

		engine.AddTransactions(txns)

		profiles, err := engine.AnalyzeAllCustomers(c.Request.Context(), cfg.Engine.RecentDays)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := buildAnalysisResponse(profiles,
			fmt.Sprintf("%d Transaktionen analysiert", len(txns)))
		c.JSON(http.StatusOK, resp)
	}
}

func customerInfoHandler(engine *analyzer.Analyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var info models.CustomerInfo
		if err := c.ShouldBindJSON(&info); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		engine.SetCustomerInfo(info)
		c.JSON(http.StatusOK, gin.H{
			"status":      "success",
			"customer_id": info.CustomerID,
		})
	}
}

func riskProfileHandler(engine *analyzer.Analyzer, cfg *configs.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID := c.Param("id")

		profile, err := engine.AnalyzeCustomer(customerID, cfg.Engine.RecentDays, engine.AllTransactions())
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, analyzer.ErrNoTransactionsInWindow) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, profile)
	}
}

func flaggedCustomersHandler(engine *analyzer.Analyzer, cfg *configs.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		profiles, err := engine.AnalyzeAllCustomers(c.Request.Context(), cfg.Engine.RecentDays)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		flagged := make([]models.CustomerRiskProfile, 0)
		for _, p := range profiles {
			if p.RiskLevel != models.RiskLevelGreen {
				flagged = append(flagged, p)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"flagged_customers": flagged,
			"count":             len(flagged),
		})
	}
}

func statisticsHandler(engine *analyzer.Analyzer, cfg *configs.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := engine.Statistics(c.Request.Context(), cfg.Engine.RecentDays)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, stats)
	}
}

func resetHandler(engine *analyzer.Analyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		engine.Reset()
		log.Info().Msg("Analyzer state reset")
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Alle Daten zurückgesetzt"})
	}
}

func buildAnalysisResponse(profiles []models.CustomerRiskProfile, message string) models.AnalysisResponse {
	var summary models.AnalysisSummary
	flagged := make([]models.CustomerRiskProfile, 0)
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
		riskLevelTotal.WithLabelValues(p.RiskLevel).Inc()
		if p.RiskLevel != models.RiskLevelGreen {
			flagged = append(flagged, p)
		}
	}
	analyzedCustomersTotal.Add(float64(len(profiles)))

	return models.AnalysisResponse{
		Status:            "success",
		Message:           message,
		AnalyzedCustomers: len(profiles),
		FlaggedCustomers:  flagged,
		Summary:           summary,
	}
}
