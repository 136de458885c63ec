package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RetryConfig holds the parameters of one retry tier.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Config holds all application configuration.
type Config struct {
	// Ledger
	InitialBalance float64
	TradingFee     float64 // Fraction of gross order value, e.g. 0.001 for 0.1%

	// Persistence
	DataDir     string
	LedgerStore string // "json" or "sqlite"
	DBPath      string // SQLite database path, used when LedgerStore is "sqlite"

	// Binance API
	APIKey         string
	SecretKey      string
	IsTestnet      bool
	MinQuoteVolume float64

	// Scheduler
	TopSymbolLimit   int
	VolatilitySample int
	MaxDailyTokens   int

	MonitorInterval time.Duration
	QuickInterval   time.Duration
	MediumInterval  time.Duration
	FullInterval    time.Duration

	HighVolatilityThreshold float64
	VolumeSurgeThreshold    float64
	SignificantPriceChange  float64

	ActiveHoursStart   int
	ActiveHoursEnd     int
	WeekendScaleFactor float64

	QuickAnalysisCost  int
	MediumAnalysisCost int
	FullAnalysisCost   int

	// Risk limits (zero disables the corresponding check)
	MaxOrderFraction    float64
	MaxPositionFraction float64
	MaxOpenPositions    int
	MinOrderValue       float64

	// Retry tiers
	MarketRetry RetryConfig
	TickerRetry RetryConfig

	// Analysis pipeline
	AgentRunnerURL     string // Empty disables the pipeline; scheduler runs monitor-only cycles
	AgentRunnerTimeout time.Duration

	// Observability
	LogLevel    string
	LogConsole  bool
	MetricsAddr string // Empty disables the metrics endpoint
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Ledger
	cfg.InitialBalance, err = getEnvAsFloatRequired("INITIAL_BALANCE", 10000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_BALANCE: %v", err))
	} else if cfg.InitialBalance <= 0 {
		errs = append(errs, "INITIAL_BALANCE must be positive")
	}

	cfg.TradingFee, err = getEnvAsFloatRequired("TRADING_FEE", 0.001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADING_FEE: %v", err))
	} else if cfg.TradingFee < 0 || cfg.TradingFee >= 1.0 {
		errs = append(errs, "TRADING_FEE must be between 0.0 and 1.0")
	}

	// Persistence
	cfg.DataDir = getEnv("DATA_DIR", "./data")
	if cfg.DataDir == "" {
		errs = append(errs, "DATA_DIR must be set")
	}
	cfg.LedgerStore = strings.ToLower(getEnv("LEDGER_STORE", "json"))
	if cfg.LedgerStore != "json" && cfg.LedgerStore != "sqlite" {
		errs = append(errs, fmt.Sprintf("invalid LEDGER_STORE '%s' (must be 'json' or 'sqlite')", cfg.LedgerStore))
	}
	cfg.DBPath = getEnv("DB_PATH", "./data/ledger.db")

	// Binance API (public endpoints only; keys are optional)
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)
	cfg.MinQuoteVolume = getEnvAsFloat("MIN_QUOTE_VOLUME", 1_000_000)
	if cfg.MinQuoteVolume < 0 {
		errs = append(errs, "MIN_QUOTE_VOLUME cannot be negative")
	}

	// Scheduler
	cfg.TopSymbolLimit = getEnvAsInt("TOP_SYMBOL_LIMIT", 10)
	if cfg.TopSymbolLimit <= 0 {
		errs = append(errs, "TOP_SYMBOL_LIMIT must be positive")
	}
	cfg.VolatilitySample = getEnvAsInt("VOLATILITY_SAMPLE", 5)
	if cfg.VolatilitySample <= 0 {
		errs = append(errs, "VOLATILITY_SAMPLE must be positive")
	}
	if cfg.VolatilitySample > cfg.TopSymbolLimit {
		errs = append(errs, "VOLATILITY_SAMPLE cannot exceed TOP_SYMBOL_LIMIT")
	}

	cfg.MaxDailyTokens, err = getEnvAsIntRequired("MAX_DAILY_TOKENS", 200_000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DAILY_TOKENS: %v", err))
	} else if cfg.MaxDailyTokens <= 0 {
		errs = append(errs, "MAX_DAILY_TOKENS must be positive")
	}

	cfg.MonitorInterval = getEnvAsMinutes("MONITOR_INTERVAL_MINUTES", 5)
	cfg.QuickInterval = getEnvAsMinutes("QUICK_INTERVAL_MINUTES", 60)
	cfg.MediumInterval = getEnvAsMinutes("MEDIUM_INTERVAL_MINUTES", 240)
	cfg.FullInterval = getEnvAsMinutes("FULL_INTERVAL_MINUTES", 720)
	if cfg.MonitorInterval <= 0 || cfg.QuickInterval <= 0 || cfg.MediumInterval <= 0 || cfg.FullInterval <= 0 {
		errs = append(errs, "analysis intervals must be positive")
	}
	if cfg.MonitorInterval > cfg.QuickInterval || cfg.QuickInterval > cfg.MediumInterval || cfg.MediumInterval > cfg.FullInterval {
		errs = append(errs, "analysis intervals must be non-decreasing (monitor <= quick <= medium <= full)")
	}

	cfg.HighVolatilityThreshold = getEnvAsFloat("HIGH_VOLATILITY_THRESHOLD", 0.05)
	cfg.VolumeSurgeThreshold = getEnvAsFloat("VOLUME_SURGE_THRESHOLD", 0.30)
	cfg.SignificantPriceChange = getEnvAsFloat("SIGNIFICANT_PRICE_CHANGE", 0.03)
	if cfg.HighVolatilityThreshold <= 0 || cfg.VolumeSurgeThreshold <= 0 || cfg.SignificantPriceChange <= 0 {
		errs = append(errs, "market condition thresholds must be positive")
	}

	cfg.ActiveHoursStart = getEnvAsInt("ACTIVE_HOURS_START", 6)
	cfg.ActiveHoursEnd = getEnvAsInt("ACTIVE_HOURS_END", 22)
	if cfg.ActiveHoursStart < 0 || cfg.ActiveHoursStart > 23 || cfg.ActiveHoursEnd < 0 || cfg.ActiveHoursEnd > 23 {
		errs = append(errs, "active hours must be within 0-23")
	}
	if cfg.ActiveHoursStart > cfg.ActiveHoursEnd {
		errs = append(errs, "ACTIVE_HOURS_START must not exceed ACTIVE_HOURS_END")
	}

	cfg.WeekendScaleFactor = getEnvAsFloat("WEEKEND_SCALE_FACTOR", 1.5)
	if cfg.WeekendScaleFactor <= 0 {
		errs = append(errs, "WEEKEND_SCALE_FACTOR must be positive")
	}

	cfg.QuickAnalysisCost = getEnvAsInt("QUICK_ANALYSIS_COST", 2000)
	cfg.MediumAnalysisCost = getEnvAsInt("MEDIUM_ANALYSIS_COST", 8000)
	cfg.FullAnalysisCost = getEnvAsInt("FULL_ANALYSIS_COST", 25000)
	if cfg.QuickAnalysisCost < 0 || cfg.MediumAnalysisCost < 0 || cfg.FullAnalysisCost < 0 {
		errs = append(errs, "analysis costs cannot be negative")
	}

	// Risk limits
	cfg.MaxOrderFraction = getEnvAsFloat("MAX_ORDER_FRACTION", 0.25)
	cfg.MaxPositionFraction = getEnvAsFloat("MAX_POSITION_FRACTION", 0.40)
	cfg.MaxOpenPositions = getEnvAsInt("MAX_OPEN_POSITIONS", 10)
	cfg.MinOrderValue = getEnvAsFloat("MIN_ORDER_VALUE", 10)
	if cfg.MaxOrderFraction < 0 || cfg.MaxPositionFraction < 0 || cfg.MaxOpenPositions < 0 || cfg.MinOrderValue < 0 {
		errs = append(errs, "risk limits cannot be negative")
	}

	// Retry tiers: the snapshot fetch is the loop's lifeline and gets more
	// patience than one-off price lookups.
	cfg.MarketRetry = RetryConfig{
		MaxAttempts: getEnvAsInt("MARKET_RETRY_ATTEMPTS", 4),
		BaseDelay:   getEnvAsSeconds("MARKET_RETRY_BASE_SECONDS", 1),
		MaxDelay:    getEnvAsSeconds("MARKET_RETRY_MAX_SECONDS", 15),
	}
	cfg.TickerRetry = RetryConfig{
		MaxAttempts: getEnvAsInt("TICKER_RETRY_ATTEMPTS", 3),
		BaseDelay:   getEnvAsMillis("TICKER_RETRY_BASE_MILLIS", 500),
		MaxDelay:    getEnvAsSeconds("TICKER_RETRY_MAX_SECONDS", 5),
	}
	for _, rc := range []struct {
		name string
		cfg  RetryConfig
	}{{"MARKET_RETRY", cfg.MarketRetry}, {"TICKER_RETRY", cfg.TickerRetry}} {
		if rc.cfg.MaxAttempts <= 0 {
			errs = append(errs, fmt.Sprintf("%s_ATTEMPTS must be positive", rc.name))
		}
		if rc.cfg.BaseDelay <= 0 || rc.cfg.MaxDelay < rc.cfg.BaseDelay {
			errs = append(errs, fmt.Sprintf("%s delays must be positive with max >= base", rc.name))
		}
	}

	// Analysis pipeline
	cfg.AgentRunnerURL = getEnv("AGENT_RUNNER_URL", "")
	cfg.AgentRunnerTimeout = getEnvAsSeconds("AGENT_RUNNER_TIMEOUT_SECONDS", 120)
	if cfg.AgentRunnerTimeout <= 0 {
		errs = append(errs, "AGENT_RUNNER_TIMEOUT_SECONDS must be positive")
	}

	// Observability
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogConsole = getEnvAsBool("LOG_CONSOLE", false)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsMinutes(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Minute
}

func getEnvAsSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Second
}

func getEnvAsMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Millisecond
}
