package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/domain"
	"cryptotrader/internal/ledger"
	"cryptotrader/internal/metrics"
	"cryptotrader/internal/ports"
	"cryptotrader/internal/retry"
	"cryptotrader/internal/risk"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockMarket struct {
	stats        []domain.SymbolStats
	statsErr     error
	tickerPrices map[string]float64
	tickerErr    error
	topCalls     int
}

func (m *mockMarket) GetTopSymbols(ctx context.Context, limit int) ([]domain.SymbolStats, error) {
	m.topCalls++
	return m.stats, m.statsErr
}

func (m *mockMarket) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	if m.tickerErr != nil {
		return 0, m.tickerErr
	}
	return m.tickerPrices[symbol], nil
}

type mockRunner struct {
	instructions []domain.TradeInstruction
	err          error
	levels       []domain.AnalysisLevel
	lastSummary  *domain.PortfolioSummary
}

func (m *mockRunner) RunCycle(ctx context.Context, level domain.AnalysisLevel, portfolio *domain.PortfolioSummary) ([]domain.TradeInstruction, error) {
	m.levels = append(m.levels, level)
	m.lastSummary = portfolio
	return m.instructions, m.err
}

type memStateStore struct {
	snap *domain.MarketSnapshot
}

func (s *memStateStore) SaveSnapshot(ctx context.Context, snap *domain.MarketSnapshot) error {
	cp := *snap
	s.snap = &cp
	return nil
}

func (s *memStateStore) LoadSnapshot(ctx context.Context) (*domain.MarketSnapshot, error) {
	return s.snap, nil
}

type nopLedgerStore struct{}

func (nopLedgerStore) SaveAccount(ctx context.Context, account *ports.AccountSnapshot) error {
	return nil
}
func (nopLedgerStore) SaveTrades(ctx context.Context, trades []*domain.Trade) error { return nil }
func (nopLedgerStore) SaveReports(ctx context.Context, reports []*domain.DailyReport) error {
	return nil
}
func (nopLedgerStore) Load(ctx context.Context) (*ports.AccountSnapshot, []*domain.Trade, []*domain.DailyReport, error) {
	return nil, nil, nil, nil
}
func (nopLedgerStore) Wipe(ctx context.Context) error { return nil }

type fixture struct {
	scheduler *Scheduler
	market    *mockMarket
	runner    *mockRunner
	ledger    *ledger.Ledger
	state     *memStateStore
	now       *time.Time
}

// Monday noon UTC, inside active hours.
func mondayNoon() time.Time {
	return time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T, maxTokens int) *fixture {
	t.Helper()
	now := mondayNoon()
	logger := &mockLogger{}
	clock := func() time.Time { return now }

	led, err := ledger.New(context.Background(), ledger.Config{
		InitialBalance: 10000,
		FeeRate:        0.001,
		Store:          nopLedgerStore{},
		Logger:         logger,
		Now:            clock,
	})
	require.NoError(t, err)

	policy := func() *retry.Policy {
		p, err := retry.New(retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Logger: logger})
		require.NoError(t, err)
		return p
	}

	market := &mockMarket{
		stats: []domain.SymbolStats{
			{Symbol: "BTCUSDT", LastPrice: 50000, ChangePercent24h: 1.0, QuoteVolume24h: 60},
			{Symbol: "ETHUSDT", LastPrice: 2000, ChangePercent24h: -1.0, QuoteVolume24h: 40},
		},
		tickerPrices: map[string]float64{},
	}
	runner := &mockRunner{}
	state := &memStateStore{}

	f := &fixture{market: market, runner: runner, ledger: led, state: state, now: &now}
	f.scheduler, err = New(Config{
		Schedule:       DefaultScheduleConfig(),
		MaxDailyTokens: maxTokens,
		Market:         market,
		Runner:         runner,
		Ledger:         led,
		StateStore:     state,
		MarketRetry:    policy(),
		TickerRetry:    policy(),
		Logger:         logger,
		Metrics:        metrics.New(prometheus.NewRegistry()),
		Now:            func() time.Time { return *f.now },
	})
	require.NoError(t, err)
	return f
}

func calmCondition(ts time.Time) domain.MarketCondition {
	return domain.MarketCondition{Volatility24h: 0.01, Timestamp: ts}
}

func TestDetermineLevelUnusualActivityOverridesTimers(t *testing.T) {
	f := newFixture(t, 100000)
	now := mondayNoon()

	// All timers satisfied: nothing is due.
	for _, level := range domain.Levels {
		f.scheduler.lastRun[level] = now
	}

	cond := calmCondition(now)
	cond.UnusualActivity = true
	assert.Equal(t, domain.LevelFull, f.scheduler.determineLevel(context.Background(), cond, now))
}

func TestDetermineLevelBudgetOverridesUnusualActivity(t *testing.T) {
	f := newFixture(t, 1000)
	now := mondayNoon()
	f.scheduler.budgetDate = now.Format(dateLayout)
	f.scheduler.tokensToday = 1000

	cond := calmCondition(now)
	cond.UnusualActivity = true
	assert.Equal(t, domain.LevelMonitor, f.scheduler.determineLevel(context.Background(), cond, now))
}

func TestDetermineLevelTimerCascade(t *testing.T) {
	f := newFixture(t, 100000)
	now := mondayNoon()
	cond := calmCondition(now)

	// Fresh scheduler: the full timer has never run, so full is due.
	assert.Equal(t, domain.LevelFull, f.scheduler.determineLevel(context.Background(), cond, now))

	// Full recent, medium overdue, inside active hours.
	f.scheduler.lastRun[domain.LevelFull] = now
	f.scheduler.lastRun[domain.LevelMedium] = now.Add(-5 * time.Hour)
	f.scheduler.lastRun[domain.LevelQuick] = now
	assert.Equal(t, domain.LevelMedium, f.scheduler.determineLevel(context.Background(), cond, now))

	// Same elapsed times outside active hours: medium is gated, quick not due.
	lateNight := time.Date(2026, 8, 17, 23, 30, 0, 0, time.UTC)
	f.scheduler.lastRun[domain.LevelFull] = lateNight
	f.scheduler.lastRun[domain.LevelMedium] = lateNight.Add(-5 * time.Hour)
	f.scheduler.lastRun[domain.LevelQuick] = lateNight
	assert.Equal(t, domain.LevelMonitor, f.scheduler.determineLevel(context.Background(), cond, lateNight))

	// Quick overdue.
	f.scheduler.lastRun[domain.LevelFull] = now
	f.scheduler.lastRun[domain.LevelMedium] = now
	f.scheduler.lastRun[domain.LevelQuick] = now.Add(-90 * time.Minute)
	assert.Equal(t, domain.LevelQuick, f.scheduler.determineLevel(context.Background(), cond, now))

	// Nothing due.
	f.scheduler.lastRun[domain.LevelQuick] = now
	assert.Equal(t, domain.LevelMonitor, f.scheduler.determineLevel(context.Background(), cond, now))
}

func TestDetermineLevelWeekendScaling(t *testing.T) {
	f := newFixture(t, 100000)
	saturday := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Saturday, saturday.Weekday())
	cond := calmCondition(saturday)

	// Medium elapsed 5h: due on a weekday (4h interval) but not on a
	// weekend where the interval stretches to 6h.
	f.scheduler.lastRun[domain.LevelFull] = saturday
	f.scheduler.lastRun[domain.LevelMedium] = saturday.Add(-5 * time.Hour)
	f.scheduler.lastRun[domain.LevelQuick] = saturday
	assert.Equal(t, domain.LevelMonitor, f.scheduler.determineLevel(context.Background(), cond, saturday))

	// At 7h elapsed the scaled interval is satisfied again.
	f.scheduler.lastRun[domain.LevelMedium] = saturday.Add(-7 * time.Hour)
	assert.Equal(t, domain.LevelMedium, f.scheduler.determineLevel(context.Background(), cond, saturday))
}

func TestAssessMarketFallsBackToDefaultCondition(t *testing.T) {
	f := newFixture(t, 100000)
	f.market.statsErr = errors.New("503 service unavailable")

	cond := f.scheduler.assessMarket(context.Background())
	assert.False(t, cond.UnusualActivity)
	assert.InDelta(t, 0.02, cond.Volatility24h, 1e-9)
	assert.Equal(t, 2, f.market.topCalls, "retry policy should have retried the transient error")
}

func TestAssessMarketDetectsVolumeSurge(t *testing.T) {
	f := newFixture(t, 100000)
	f.state.snap = &domain.MarketSnapshot{TotalVolume: 50}

	// Sampled volume is 100, doubling the stored 50: +100% > 30% threshold.
	cond := f.scheduler.assessMarket(context.Background())
	assert.InDelta(t, 1.0, cond.VolumeChange, 1e-9)
	assert.True(t, cond.UnusualActivity)

	// The snapshot was replaced for the next tick's comparison.
	require.NotNil(t, f.state.snap)
	assert.InDelta(t, 100, f.state.snap.TotalVolume, 1e-9)
}

func TestAssessMarketDetectsHighVolatility(t *testing.T) {
	f := newFixture(t, 100000)
	f.market.stats = []domain.SymbolStats{
		{Symbol: "BTCUSDT", LastPrice: 50000, ChangePercent24h: 8.0, QuoteVolume24h: 60},
		{Symbol: "ETHUSDT", LastPrice: 2000, ChangePercent24h: -6.0, QuoteVolume24h: 40},
	}
	cond := f.scheduler.assessMarket(context.Background())
	assert.InDelta(t, 0.07, cond.Volatility24h, 1e-9)
	assert.True(t, cond.UnusualActivity)
}

func TestTickRunsAnalysisAndAppliesInstructions(t *testing.T) {
	f := newFixture(t, 100000)
	f.runner.instructions = []domain.TradeInstruction{
		{Symbol: "BTCUSDT", Side: domain.Buy, Amount: 1000, Rationale: "momentum"},
	}

	f.scheduler.tick(context.Background())

	// First tick: full analysis is due and the runner was invoked once.
	require.Equal(t, []domain.AnalysisLevel{domain.LevelFull}, f.runner.levels)
	require.NotNil(t, f.runner.lastSummary)
	assert.InDelta(t, 10000, f.runner.lastSummary.InitialBalance, 1e-9)

	// The instruction was applied at the sampled price.
	pos, ok := f.ledger.Position("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 999.0/50000, pos.Quantity, 1e-9)

	// The full-level cost was charged and the timer recorded.
	assert.Equal(t, 25000, f.scheduler.tokensToday)
	assert.Equal(t, *f.now, f.scheduler.lastRun[domain.LevelFull])

	// A daily report was produced for the tick's date.
	report := f.ledger.LatestReport()
	require.NotNil(t, report)
	assert.Equal(t, "2026-08-17", report.Date)
}

func TestTickChargesBudgetEvenWhenRunnerFails(t *testing.T) {
	f := newFixture(t, 100000)
	f.runner.err = errors.New("agent pipeline exploded")

	f.scheduler.tick(context.Background())

	assert.Equal(t, 25000, f.scheduler.tokensToday, "budget charge stands after a failed attempt")
	assert.Equal(t, 0, f.ledger.TradeCount())
}

func TestMonitorTickDoesNotChargeOrTouchTimers(t *testing.T) {
	f := newFixture(t, 100000)
	now := *f.now
	stamps := map[domain.AnalysisLevel]time.Time{
		domain.LevelQuick:  now.Add(-time.Minute),
		domain.LevelMedium: now.Add(-time.Minute),
		domain.LevelFull:   now.Add(-time.Minute),
	}
	for level, ts := range stamps {
		f.scheduler.lastRun[level] = ts
	}

	f.scheduler.tick(context.Background())

	assert.Empty(t, f.runner.levels, "monitor tick must not invoke the runner")
	assert.Zero(t, f.scheduler.tokensToday)
	for level, ts := range stamps {
		assert.Equal(t, ts, f.scheduler.lastRun[level], "monitor tick must not reset the %s timer", level)
	}
}

func TestBudgetWindowResetsOnDateChange(t *testing.T) {
	f := newFixture(t, 30000)

	f.scheduler.tick(context.Background())
	assert.Equal(t, 25000, f.scheduler.tokensToday)

	// Exhaust the remaining budget and confirm the hard override.
	f.scheduler.tokensToday = 30000
	f.scheduler.tick(context.Background())
	assert.Equal(t, []domain.AnalysisLevel{domain.LevelFull}, f.runner.levels, "no analysis while over budget")

	// Next calendar day the window rolls and analysis resumes.
	*f.now = f.now.Add(24 * time.Hour)
	f.scheduler.tick(context.Background())
	assert.Equal(t, 2, len(f.runner.levels))
	assert.Equal(t, 25000, f.scheduler.tokensToday)
}

func TestApplyInstructionsLooksUpUnsampledSymbol(t *testing.T) {
	f := newFixture(t, 100000)
	f.market.tickerPrices["SOLUSDT"] = 150
	f.scheduler.lastPrices = map[string]float64{}

	summary := f.ledger.Summary(context.Background(), f.scheduler.lastPrices)
	f.scheduler.applyInstructions(context.Background(), []domain.TradeInstruction{
		{Symbol: "SOLUSDT", Side: domain.Buy, Amount: 300, Rationale: "test"},
	}, summary)

	pos, ok := f.ledger.Position("SOLUSDT")
	require.True(t, ok)
	assert.InDelta(t, 150, pos.AvgPrice, 1e-9)
}

func TestApplyInstructionsContinuesAfterRejection(t *testing.T) {
	f := newFixture(t, 100000)
	f.scheduler.lastPrices = map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 2000}

	summary := f.ledger.Summary(context.Background(), f.scheduler.lastPrices)
	f.scheduler.applyInstructions(context.Background(), []domain.TradeInstruction{
		{Symbol: "BTCUSDT", Side: domain.Sell, Amount: 1, Rationale: "no position"},
		{Symbol: "ETHUSDT", Side: domain.Buy, Amount: 500, Rationale: "valid"},
	}, summary)

	_, ok := f.ledger.Position("BTCUSDT")
	assert.False(t, ok)
	_, ok = f.ledger.Position("ETHUSDT")
	assert.True(t, ok, "rejection of one instruction must not abort the rest")
}

func TestApplyInstructionsHonorsRiskLimits(t *testing.T) {
	f := newFixture(t, 100000)
	guard, err := risk.New(risk.Config{MaxOrderFraction: 0.25}, &mockLogger{})
	require.NoError(t, err)
	f.scheduler.risk = guard
	f.scheduler.lastPrices = map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 2000}

	summary := f.ledger.Summary(context.Background(), f.scheduler.lastPrices)
	f.scheduler.applyInstructions(context.Background(), []domain.TradeInstruction{
		{Symbol: "BTCUSDT", Side: domain.Buy, Amount: 5000, Rationale: "half the book"},
		{Symbol: "ETHUSDT", Side: domain.Buy, Amount: 500, Rationale: "within limits"},
	}, summary)

	_, ok := f.ledger.Position("BTCUSDT")
	assert.False(t, ok, "oversized order must be blocked")
	_, ok = f.ledger.Position("ETHUSDT")
	assert.True(t, ok)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t, 100000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- f.scheduler.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop promptly on cancellation")
	}
}
