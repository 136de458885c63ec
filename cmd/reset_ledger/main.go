package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"cryptotrader/config"
	"cryptotrader/internal/adapters/jsonstore"
	"cryptotrader/internal/adapters/logger"
	"cryptotrader/internal/adapters/sqlite"
	"cryptotrader/internal/ports"
)

func main() {
	yesFlag := flag.Bool("yes", false, "skip the confirmation prompt")
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

	// 4. Confirm and wipe
	if !*yesFlag {
		fmt.Printf("This removes all persisted %s ledger state (account, trades, reports). Continue? [y/N] ", cfg.LedgerStore)
		reply, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(reply)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	if err := store.Wipe(ctx); err != nil {
		appLogger.Error(ctx, err, "Error wiping ledger state")
		log.Fatalf("Error wiping ledger state: %v", err)
	}
	fmt.Printf("Ledger state wiped. Next start begins fresh with INITIAL_BALANCE=%.2f.\n", cfg.InitialBalance)
}
