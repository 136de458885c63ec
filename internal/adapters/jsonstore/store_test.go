package jsonstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/domain"
	"cryptotrader/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := New(Config{Dir: dir, Logger: &mockLogger{}})
	require.NoError(t, err)
	return store, dir
}

func TestLoadOnEmptyDirectory(t *testing.T) {
	store, _ := newTestStore(t)

	account, trades, reports, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, account)
	assert.Nil(t, trades)
	assert.Nil(t, reports)

	snap, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestLedgerDocumentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t)

	ts := time.Date(2026, 8, 21, 10, 30, 0, 0, time.UTC)
	account := &ports.AccountSnapshot{
		CashBalance:    9000,
		InitialBalance: 10000,
		StartDate:      ts,
		Positions: map[string]*domain.Position{
			"BTCUSDT": {Symbol: "BTCUSDT", Quantity: 0.01998, AvgPrice: 50000, TotalCost: 999},
		},
	}
	trades := []*domain.Trade{
		{ID: "t1", Timestamp: ts, Symbol: "BTCUSDT", Side: domain.Buy, Quantity: 0.01998, Price: 50000, Value: 1000, Fee: 1},
	}
	reports := []*domain.DailyReport{
		{Date: "2026-08-21", StartingValue: 10000, EndingValue: 10100, KeyActions: []string{"BUY 0.0200 BTCUSDT @ $50000.0000"}},
	}

	require.NoError(t, store.SaveAccount(ctx, account))
	require.NoError(t, store.SaveTrades(ctx, trades))
	require.NoError(t, store.SaveReports(ctx, reports))

	gotAccount, gotTrades, gotReports, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, gotAccount)
	assert.Equal(t, account.CashBalance, gotAccount.CashBalance)
	assert.True(t, account.StartDate.Equal(gotAccount.StartDate))
	require.Contains(t, gotAccount.Positions, "BTCUSDT")
	assert.InDelta(t, 0.01998, gotAccount.Positions["BTCUSDT"].Quantity, 1e-9)
	require.Len(t, gotTrades, 1)
	assert.Equal(t, "t1", gotTrades[0].ID)
	assert.Equal(t, domain.Buy, gotTrades[0].Side)
	require.Len(t, gotReports, 1)
	assert.Equal(t, "2026-08-21", gotReports[0].Date)

	// Saves are whole-file replacements; no temp files may linger.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}
}

func TestSaveReplacesPreviousDocument(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.SaveTrades(ctx, []*domain.Trade{{ID: "t1"}, {ID: "t2"}}))
	require.NoError(t, store.SaveTrades(ctx, []*domain.Trade{{ID: "t3"}}))

	_, trades, _, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t3", trades[0].ID)
}

func TestWipeRemovesLedgerFilesOnly(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestStore(t)

	require.NoError(t, store.SaveAccount(ctx, &ports.AccountSnapshot{CashBalance: 1}))
	require.NoError(t, store.SaveTrades(ctx, nil))
	require.NoError(t, store.SaveReports(ctx, nil))
	require.NoError(t, store.SaveSnapshot(ctx, &domain.MarketSnapshot{TotalVolume: 42}))

	require.NoError(t, store.Wipe(ctx))

	account, trades, reports, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, account)
	assert.Nil(t, trades)
	assert.Nil(t, reports)

	// The market snapshot is scheduler state, not ledger state.
	snap, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.InDelta(t, 42, snap.TotalVolume, 1e-9)

	_, err = os.Stat(filepath.Join(dir, accountFile))
	assert.True(t, os.IsNotExist(err))

	// Wiping an already clean directory is fine.
	require.NoError(t, store.Wipe(ctx))
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	snap := &domain.MarketSnapshot{
		TotalVolume:   123456,
		AvgVolatility: 0.04,
		Timestamp:     time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC),
		Symbols: []domain.SymbolStats{
			{Symbol: "BTCUSDT", LastPrice: 50000, ChangePercent24h: 2.5, QuoteVolume24h: 123456, TradeCount24h: 99},
		},
	}
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	got, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, snap.TotalVolume, got.TotalVolume, 1e-9)
	require.Len(t, got.Symbols, 1)
	assert.Equal(t, "BTCUSDT", got.Symbols[0].Symbol)
	assert.Equal(t, int64(99), got.Symbols[0].TradeCount24h)
}

func TestLoadFailsOnCorruptDocument(t *testing.T) {
	store, dir := newTestStore(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, accountFile), []byte("{not json"), 0644))
	_, _, _, err := store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrQueryFailed)
}
