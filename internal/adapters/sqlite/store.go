// Package sqlite implements ports.LedgerStore on an embedded SQLite
// database. Each Save replaces the whole document inside a transaction,
// mirroring the replace-on-write contract of the JSON store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"cryptotrader/internal/domain"
	"cryptotrader/internal/ports"
)

// Store implements the ports.LedgerStore interface using SQLite.
type Store struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite ledger store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// New creates a new SQLite ledger store instance.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/ledger.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db, logger: cfg.Logger}

	if err := store.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite ledger store ready", map[string]interface{}{"path": dbPath})

	return store, nil
}

// initializeSchema creates tables if they don't exist.
func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS account (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		cash_balance REAL NOT NULL,
		initial_balance REAL NOT NULL,
		start_date TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		symbol TEXT PRIMARY KEY,
		quantity REAL NOT NULL,
		avg_price REAL NOT NULL,
		total_cost REAL NOT NULL,
		current_price REAL NOT NULL,
		current_value REAL NOT NULL,
		unrealized_pnl REAL NOT NULL,
		unrealized_pnl_pct REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		value REAL NOT NULL,
		fee REAL NOT NULL,
		rationale TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reports (
		date TEXT PRIMARY KEY,
		starting_value REAL NOT NULL,
		ending_value REAL NOT NULL,
		daily_pnl REAL NOT NULL,
		daily_pnl_pct REAL NOT NULL,
		total_pnl REAL NOT NULL,
		total_pnl_pct REAL NOT NULL,
		positions_count INTEGER NOT NULL,
		trades_count INTEGER NOT NULL,
		top_performer TEXT NOT NULL,
		worst_performer TEXT NOT NULL,
		key_actions TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_timestamp ON trades (symbol, timestamp);
	`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite database connection")
		return s.db.Close()
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on any error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w: %w", ports.ErrUpdateFailed, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error(ctx, rbErr, "Transaction rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w: %w", ports.ErrUpdateFailed, err)
	}
	return nil
}

// SaveAccount replaces the persisted account snapshot and all positions.
func (s *Store) SaveAccount(ctx context.Context, account *ports.AccountSnapshot) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		const upsert = `
		INSERT INTO account (id, cash_balance, initial_balance, start_date) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET cash_balance = excluded.cash_balance,
			initial_balance = excluded.initial_balance, start_date = excluded.start_date`
		if _, err := tx.ExecContext(ctx, upsert, account.CashBalance, account.InitialBalance, account.StartDate); err != nil {
			return fmt.Errorf("failed to upsert account row: %w: %w", ports.ErrUpdateFailed, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
			return fmt.Errorf("failed to clear positions: %w: %w", ports.ErrUpdateFailed, err)
		}
		const insertPos = `
		INSERT INTO positions (symbol, quantity, avg_price, total_cost, current_price,
		                       current_value, unrealized_pnl, unrealized_pnl_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		for _, pos := range account.Positions {
			if _, err := tx.ExecContext(ctx, insertPos,
				pos.Symbol, pos.Quantity, pos.AvgPrice, pos.TotalCost,
				pos.CurrentPrice, pos.CurrentValue, pos.UnrealizedPnL, pos.UnrealizedPnLPct); err != nil {
				return fmt.Errorf("failed to insert position for symbol %s: %w: %w", pos.Symbol, ports.ErrUpdateFailed, err)
			}
		}
		return nil
	})
}

// SaveTrades replaces the persisted trade log.
func (s *Store) SaveTrades(ctx context.Context, trades []*domain.Trade) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM trades`); err != nil {
			return fmt.Errorf("failed to clear trades: %w: %w", ports.ErrUpdateFailed, err)
		}
		const insert = `
		INSERT INTO trades (id, timestamp, symbol, side, quantity, price, value, fee, rationale)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		for _, trade := range trades {
			if _, err := tx.ExecContext(ctx, insert,
				trade.ID, trade.Timestamp, trade.Symbol, string(trade.Side),
				trade.Quantity, trade.Price, trade.Value, trade.Fee, trade.Rationale); err != nil {
				return fmt.Errorf("failed to insert trade %s: %w: %w", trade.ID, ports.ErrUpdateFailed, err)
			}
		}
		return nil
	})
}

// SaveReports replaces the persisted daily report log.
func (s *Store) SaveReports(ctx context.Context, reports []*domain.DailyReport) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM reports`); err != nil {
			return fmt.Errorf("failed to clear reports: %w: %w", ports.ErrUpdateFailed, err)
		}
		const insert = `
		INSERT INTO reports (date, starting_value, ending_value, daily_pnl, daily_pnl_pct,
		                     total_pnl, total_pnl_pct, positions_count, trades_count,
		                     top_performer, worst_performer, key_actions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		for _, report := range reports {
			actions, err := json.Marshal(report.KeyActions)
			if err != nil {
				return fmt.Errorf("failed to encode key actions for %s: %w", report.Date, err)
			}
			if _, err := tx.ExecContext(ctx, insert,
				report.Date, report.StartingValue, report.EndingValue,
				report.DailyPnL, report.DailyPnLPct, report.TotalPnL, report.TotalPnLPct,
				report.PositionsCount, report.TradesCount,
				report.TopPerformer, report.WorstPerformer, string(actions)); err != nil {
				return fmt.Errorf("failed to insert report for %s: %w: %w", report.Date, ports.ErrUpdateFailed, err)
			}
		}
		return nil
	})
}

// Load restores all three ledger documents. A missing account row yields a
// nil snapshot so a fresh ledger starts empty.
func (s *Store) Load(ctx context.Context) (*ports.AccountSnapshot, []*domain.Trade, []*domain.DailyReport, error) {
	account, err := s.loadAccount(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	trades, err := s.loadTrades(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	reports, err := s.loadReports(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return account, trades, reports, nil
}

func (s *Store) loadAccount(ctx context.Context) (*ports.AccountSnapshot, error) {
	const query = `SELECT cash_balance, initial_balance, start_date FROM account WHERE id = 1`
	account := &ports.AccountSnapshot{Positions: make(map[string]*domain.Position)}
	err := s.db.QueryRowContext(ctx, query).Scan(&account.CashBalance, &account.InitialBalance, &account.StartDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w: %w", ports.ErrQueryFailed, err)
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT symbol, quantity, avg_price, total_cost, current_price,
	       current_value, unrealized_pnl, unrealized_pnl_pct
	FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	for rows.Next() {
		pos := &domain.Position{}
		if err := rows.Scan(&pos.Symbol, &pos.Quantity, &pos.AvgPrice, &pos.TotalCost,
			&pos.CurrentPrice, &pos.CurrentValue, &pos.UnrealizedPnL, &pos.UnrealizedPnLPct); err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w: %w", ports.ErrQueryFailed, err)
		}
		account.Positions[pos.Symbol] = pos
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return account, nil
}

func (s *Store) loadTrades(ctx context.Context) ([]*domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, timestamp, symbol, side, quantity, price, value, fee, rationale
	FROM trades ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		trade := &domain.Trade{}
		var side string
		if err := rows.Scan(&trade.ID, &trade.Timestamp, &trade.Symbol, &side,
			&trade.Quantity, &trade.Price, &trade.Value, &trade.Fee, &trade.Rationale); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w: %w", ports.ErrQueryFailed, err)
		}
		trade.Side = domain.OrderSide(side)
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return trades, nil
}

func (s *Store) loadReports(ctx context.Context) ([]*domain.DailyReport, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT date, starting_value, ending_value, daily_pnl, daily_pnl_pct,
	       total_pnl, total_pnl_pct, positions_count, trades_count,
	       top_performer, worst_performer, key_actions
	FROM reports ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var reports []*domain.DailyReport
	for rows.Next() {
		report := &domain.DailyReport{}
		var actions string
		if err := rows.Scan(&report.Date, &report.StartingValue, &report.EndingValue,
			&report.DailyPnL, &report.DailyPnLPct, &report.TotalPnL, &report.TotalPnLPct,
			&report.PositionsCount, &report.TradesCount,
			&report.TopPerformer, &report.WorstPerformer, &actions); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w: %w", ports.ErrQueryFailed, err)
		}
		if err := json.Unmarshal([]byte(actions), &report.KeyActions); err != nil {
			return nil, fmt.Errorf("failed to decode key actions for %s: %w: %w", report.Date, ports.ErrQueryFailed, err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return reports, nil
}

// Wipe removes all persisted ledger data.
func (s *Store) Wipe(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"account", "positions", "trades", "reports"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w: %w", table, ports.ErrUpdateFailed, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "Persisted ledger data removed")
	return nil
}
