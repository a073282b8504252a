package configs

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server ServerConfig
	Engine EngineConfig
	Report ReportConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Environment  string
}

type EngineConfig struct {
	// Alpha weighs the activity z-score, Beta the entropy z-score in
	// the relative score component.
	Alpha          float64
	Beta           float64
	HistoricalDays int
	RecentDays     int
	UseTPSP        bool
}

type ReportConfig struct {
	OutputDir string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Engine: EngineConfig{
			Alpha:          getFloatEnv("ENGINE_ALPHA", 0.6),
			Beta:           getFloatEnv("ENGINE_BETA", 0.4),
			HistoricalDays: getIntEnv("ENGINE_HISTORICAL_DAYS", 365),
			RecentDays:     getIntEnv("ENGINE_RECENT_DAYS", 30),
			UseTPSP:        getBoolEnv("ENGINE_USE_TP_SP", true),
		},
		Report: ReportConfig{
			OutputDir: getEnv("REPORT_OUTPUT_DIR", "output"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
