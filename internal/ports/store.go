package ports

import (
	"context"
	"time"

	"cryptotrader/internal/domain"
)

// AccountSnapshot is the persisted form of the ledger's account state:
// cash, initial balance, start date and all open positions.
type AccountSnapshot struct {
	CashBalance    float64                     `json:"cash_balance"`
	InitialBalance float64                     `json:"initial_balance"`
	StartDate      time.Time                   `json:"start_date"`
	Positions      map[string]*domain.Position `json:"positions"`
}

// LedgerStore persists the ledger's three logical documents: the account
// snapshot, the ordered trade log and the ordered report log. Each Save
// replaces the whole document so a crash mid-write can at worst leave the
// previous consistent version behind.
type LedgerStore interface {
	// SaveAccount replaces the persisted account snapshot.
	SaveAccount(ctx context.Context, account *AccountSnapshot) error
	// SaveTrades replaces the persisted trade log.
	SaveTrades(ctx context.Context, trades []*domain.Trade) error
	// SaveReports replaces the persisted daily report log.
	SaveReports(ctx context.Context, reports []*domain.DailyReport) error
	// Load restores all three documents. Missing documents yield nil values,
	// not an error, so a fresh ledger starts empty.
	Load(ctx context.Context) (*AccountSnapshot, []*domain.Trade, []*domain.DailyReport, error)
	// Wipe removes all persisted ledger data.
	Wipe(ctx context.Context) error
}

// MarketStateStore keeps the single most recent market snapshot between
// scheduler ticks.
type MarketStateStore interface {
	// SaveSnapshot replaces the stored snapshot.
	SaveSnapshot(ctx context.Context, snap *domain.MarketSnapshot) error
	// LoadSnapshot returns the stored snapshot, or nil, nil if none exists.
	LoadSnapshot(ctx context.Context) (*domain.MarketSnapshot, error)
}
