package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptotrader/config"
	"cryptotrader/internal/adapters/agentrunner"
	"cryptotrader/internal/adapters/binanceclient"
	"cryptotrader/internal/adapters/jsonstore"
	"cryptotrader/internal/adapters/logger"
	"cryptotrader/internal/adapters/sqlite"
	"cryptotrader/internal/domain"
	"cryptotrader/internal/ledger"
	"cryptotrader/internal/metrics"
	"cryptotrader/internal/ports"
	"cryptotrader/internal/retry"
	"cryptotrader/internal/risk"
	"cryptotrader/internal/scheduler"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Console: cfg.LogConsole})
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Stores. The JSON store always provides the market state
	// document; the ledger store is selectable.
	fileStore, err := jsonstore.New(jsonstore.Config{Dir: cfg.DataDir, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize JSON store")
		log.Fatalf("FATAL: Failed to initialize JSON store: %v", err)
	}

	var ledgerStore ports.LedgerStore = fileStore
	if cfg.LedgerStore == "sqlite" {
		dbStore, err := sqlite.New(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize SQLite store")
			log.Fatalf("FATAL: Failed to initialize SQLite store: %v", err)
		}
		defer func() {
			if err := dbStore.Close(); err != nil {
				appLogger.Error(ctx, err, "Error closing SQLite store")
			}
		}()
		ledgerStore = dbStore
	}
	appLogger.Info(ctx, "Stores initialized", map[string]interface{}{"ledgerStore": cfg.LedgerStore})

	// 4. Initialize Market Data Client (Binance Adapter)
	market, err := binanceclient.New(binanceclient.Config{
		APIKey:         cfg.APIKey,
		SecretKey:      cfg.SecretKey,
		UseTestnet:     cfg.IsTestnet,
		MinQuoteVolume: cfg.MinQuoteVolume,
		Logger:         appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// 5. Initialize Retry Tiers
	marketRetry, err := retry.New(retry.Config{
		MaxAttempts: cfg.MarketRetry.MaxAttempts,
		BaseDelay:   cfg.MarketRetry.BaseDelay,
		MaxDelay:    cfg.MarketRetry.MaxDelay,
		Logger:      appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize market retry policy")
		log.Fatalf("FATAL: Failed to initialize market retry policy: %v", err)
	}
	tickerRetry, err := retry.New(retry.Config{
		MaxAttempts: cfg.TickerRetry.MaxAttempts,
		BaseDelay:   cfg.TickerRetry.BaseDelay,
		MaxDelay:    cfg.TickerRetry.MaxDelay,
		Logger:      appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize ticker retry policy")
		log.Fatalf("FATAL: Failed to initialize ticker retry policy: %v", err)
	}

	// 6. Initialize Ledger
	book, err := ledger.New(ctx, ledger.Config{
		InitialBalance: cfg.InitialBalance,
		FeeRate:        cfg.TradingFee,
		Store:          ledgerStore,
		Logger:         appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize ledger")
		log.Fatalf("FATAL: Failed to initialize ledger: %v", err)
	}

	// 7. Initialize Metrics
	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			appLogger.Info(ctx, "Metrics endpoint listening", map[string]interface{}{"addr": cfg.MetricsAddr})
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				appLogger.Error(ctx, err, "Metrics endpoint failed")
			}
		}()
	}

	// 8. Initialize Analysis Runner
	var runner ports.AnalysisRunner
	if cfg.AgentRunnerURL != "" {
		runner, err = agentrunner.New(agentrunner.Config{
			Endpoint: cfg.AgentRunnerURL,
			Timeout:  cfg.AgentRunnerTimeout,
			Logger:   appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize analysis runner")
			log.Fatalf("FATAL: Failed to initialize analysis runner: %v", err)
		}
	} else {
		runner = agentrunner.NewNoop(appLogger)
	}

	// 9. Initialize Risk Manager
	riskManager, err := risk.New(risk.Config{
		MaxOrderFraction:    cfg.MaxOrderFraction,
		MaxPositionFraction: cfg.MaxPositionFraction,
		MaxOpenPositions:    cfg.MaxOpenPositions,
		MinOrderValue:       cfg.MinOrderValue,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize risk manager")
		log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
	}

	// 10. Initialize Scheduler
	sched, err := scheduler.New(scheduler.Config{
		Schedule: scheduler.ScheduleConfig{
			MonitorInterval:         cfg.MonitorInterval,
			QuickInterval:           cfg.QuickInterval,
			MediumInterval:          cfg.MediumInterval,
			FullInterval:            cfg.FullInterval,
			HighVolatilityThreshold: cfg.HighVolatilityThreshold,
			VolumeSurgeThreshold:    cfg.VolumeSurgeThreshold,
			SignificantPriceChange:  cfg.SignificantPriceChange,
			ActiveHoursStart:        cfg.ActiveHoursStart,
			ActiveHoursEnd:          cfg.ActiveHoursEnd,
			WeekendScaleFactor:      cfg.WeekendScaleFactor,
		},
		MaxDailyTokens: cfg.MaxDailyTokens,
		LevelCosts: map[domain.AnalysisLevel]int{
			domain.LevelMonitor: 0,
			domain.LevelQuick:   cfg.QuickAnalysisCost,
			domain.LevelMedium:  cfg.MediumAnalysisCost,
			domain.LevelFull:    cfg.FullAnalysisCost,
		},
		TopSymbolLimit:   cfg.TopSymbolLimit,
		VolatilitySample: cfg.VolatilitySample,
		Market:           market,
		Runner:           runner,
		Ledger:           book,
		StateStore:       fileStore,
		MarketRetry:      marketRetry,
		TickerRetry:      tickerRetry,
		Risk:             riskManager,
		Logger:           appLogger,
		Metrics:          appMetrics,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize scheduler")
		log.Fatalf("FATAL: Failed to initialize scheduler: %v", err)
	}

	// 11. Run until interrupted
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Run(runCtx); err != nil {
		appLogger.Error(ctx, err, "Scheduler exited with error")
		log.Fatalf("FATAL: Scheduler exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
