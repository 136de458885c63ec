package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"cryptotrader/config"
	"cryptotrader/internal/adapters/jsonstore"
	"cryptotrader/internal/adapters/logger"
	"cryptotrader/internal/adapters/sqlite"
	"cryptotrader/internal/ports"
	"cryptotrader/internal/utils"
)

func main() {
	outFlag := flag.String("out", "", "output CSV path (default data/trades_<date>.csv)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Console: true})
	ctx := context.Background()

	// 3. Initialize Ledger Store
	var store ports.LedgerStore
	if cfg.LedgerStore == "sqlite" {
		dbStore, err := sqlite.New(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize SQLite store")
			log.Fatalf("FATAL: Failed to initialize SQLite store: %v", err)
		}
		defer dbStore.Close()
		store = dbStore
	} else {
		fileStore, err := jsonstore.New(jsonstore.Config{Dir: cfg.DataDir, Logger: appLogger})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize JSON store")
			log.Fatalf("FATAL: Failed to initialize JSON store: %v", err)
		}
		store = fileStore
	}

	// 4. Load and export
	_, trades, _, err := store.Load(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Error loading ledger state")
		log.Fatalf("Error loading ledger state: %v", err)
	}
	if len(trades) == 0 {
		fmt.Println("No trades recorded yet.")
		return
	}

	filename := *outFlag
	if filename == "" {
		filename = fmt.Sprintf("data/trades_%s.csv", time.Now().Format("20060102"))
	}
	if err := utils.WriteTradesToCSV(trades, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Trades exported", map[string]interface{}{"filename": filename, "count": len(trades)})
}
