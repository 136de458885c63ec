// Package jsonstore persists the ledger's documents and the scheduler's
// market snapshot as JSON files. Every save rewrites the whole file through
// a temp-file-plus-rename so an interrupted write leaves the previous
// consistent version in place.
package jsonstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cryptotrader/internal/domain"
	"cryptotrader/internal/ports"
)

const (
	accountFile     = "portfolio.json"
	tradesFile      = "trades.json"
	reportsFile     = "reports.json"
	marketStateFile = "market_state.json"
)

// Store implements ports.LedgerStore and ports.MarketStateStore on a
// directory of JSON files.
type Store struct {
	dir    string
	logger ports.Logger
}

// Config holds configuration for the JSON file store.
type Config struct {
	Dir    string // Data directory; created if missing
	Logger ports.Logger
}

// New creates the store and ensures the data directory exists.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for JSON store")
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory '%s': %w", dir, err)
	}
	return &Store{dir: dir, logger: cfg.Logger}, nil
}

// writeDocument atomically replaces the named file with the JSON encoding
// of v.
func (s *Store) writeDocument(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w: %w", name, ports.ErrUpdateFailed, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w: %w", name, ports.ErrUpdateFailed, err)
	}
	return nil
}

// readDocument loads the named file into v. A missing file is not an
// error; found reports whether the document existed.
func (s *Store) readDocument(name string, v interface{}) (found bool, err error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w: %w", name, ports.ErrQueryFailed, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w: %w", name, ports.ErrQueryFailed, err)
	}
	return true, nil
}

// SaveAccount replaces the persisted account snapshot.
func (s *Store) SaveAccount(ctx context.Context, account *ports.AccountSnapshot) error {
	return s.writeDocument(accountFile, account)
}

// SaveTrades replaces the persisted trade log.
func (s *Store) SaveTrades(ctx context.Context, trades []*domain.Trade) error {
	return s.writeDocument(tradesFile, trades)
}

// SaveReports replaces the persisted daily report log.
func (s *Store) SaveReports(ctx context.Context, reports []*domain.DailyReport) error {
	return s.writeDocument(reportsFile, reports)
}

// Load restores all three ledger documents. Missing files yield nil values.
func (s *Store) Load(ctx context.Context) (*ports.AccountSnapshot, []*domain.Trade, []*domain.DailyReport, error) {
	var account ports.AccountSnapshot
	accountFound, err := s.readDocument(accountFile, &account)
	if err != nil {
		return nil, nil, nil, err
	}

	var trades []*domain.Trade
	if _, err := s.readDocument(tradesFile, &trades); err != nil {
		return nil, nil, nil, err
	}
	var reports []*domain.DailyReport
	if _, err := s.readDocument(reportsFile, &reports); err != nil {
		return nil, nil, nil, err
	}

	if !accountFound {
		return nil, trades, reports, nil
	}
	return &account, trades, reports, nil
}

// Wipe removes all persisted ledger documents.
func (s *Store) Wipe(ctx context.Context) error {
	for _, name := range []string{accountFile, tradesFile, reportsFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	s.logger.Info(ctx, "Persisted ledger documents removed", map[string]interface{}{"dir": s.dir})
	return nil
}

// SaveSnapshot replaces the stored market snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap *domain.MarketSnapshot) error {
	return s.writeDocument(marketStateFile, snap)
}

// LoadSnapshot returns the stored market snapshot, or nil if none exists.
func (s *Store) LoadSnapshot(ctx context.Context) (*domain.MarketSnapshot, error) {
	var snap domain.MarketSnapshot
	found, err := s.readDocument(marketStateFile, &snap)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}
