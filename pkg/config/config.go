package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the tracker backend.
type Config struct {
	Port string

	// Database
	DBPath string

	// Auth
	JWTSecret string

	// Billing: past_due keeps paid access this many days after period end.
	BillingGraceDays int

	// Benchmark
	BenchmarkSymbol string

	// Scanner
	ScannerConfigPath string

	// Logging
	LogLevel   string
	LogFile    string
	LogConsole bool

	// Portfolio read-model cache
	SummaryCacheTTLSeconds int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/wheel.db")
	}

	return &Config{
		Port:                   getEnv("PORT", "8080"),
		DBPath:                 dbPath,
		JWTSecret:              getEnv("JWT_SECRET", "dev-secret"),
		BillingGraceDays:       getEnvInt("BILLING_GRACE_DAYS", 3),
		BenchmarkSymbol:        strings.ToUpper(getEnv("BENCHMARK_SYMBOL", "SPY")),
		ScannerConfigPath:      getEnv("SCANNER_CONFIG_PATH", "scanner.yaml"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFile:                getEnv("LOG_FILE", ""),
		LogConsole:             getEnv("LOG_CONSOLE", "true") == "true",
		SummaryCacheTTLSeconds: getEnvInt("SUMMARY_CACHE_TTL_SECONDS", 5),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
