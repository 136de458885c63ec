// Package ledger implements the virtual trading account: cash, positions,
// trade history and daily performance reports. It is the single source of
// truth for account state; callers interact only through its public
// operations, which are serialized by a single mutex because buy/sell
// mutations are not commutative (order affects average cost basis).
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cryptotrader/internal/domain"
	"cryptotrader/internal/ports"
)

const dateLayout = "2006-01-02"

// Config holds construction parameters for the ledger.
type Config struct {
	InitialBalance float64
	FeeRate        float64 // Fee as a fraction of gross value (0.001 = 0.1%)
	Store          ports.LedgerStore
	Logger         ports.Logger
	Now            func() time.Time // Clock override for tests; defaults to time.Now
}

// Ledger is a virtual trading account with durable state.
type Ledger struct {
	mu             sync.Mutex
	cash           float64
	initialBalance float64
	feeRate        float64
	startDate      time.Time
	positions      map[string]*domain.Position
	trades         []*domain.Trade
	reports        []*domain.DailyReport
	lastReportDate string

	store  ports.LedgerStore
	logger ports.Logger
	now    func() time.Time
}

// New creates a ledger and restores any previously persisted state from the
// store. A load failure is logged and the ledger starts fresh; it does not
// prevent startup.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.Store == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for ledger")
	}
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("configuration InitialBalance must be positive")
	}
	if cfg.FeeRate < 0 || cfg.FeeRate >= 1 {
		return nil, fmt.Errorf("configuration FeeRate must be in [0, 1)")
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	l := &Ledger{
		cash:           cfg.InitialBalance,
		initialBalance: cfg.InitialBalance,
		feeRate:        cfg.FeeRate,
		startDate:      nowFn(),
		positions:      make(map[string]*domain.Position),
		store:          cfg.Store,
		logger:         cfg.Logger,
		now:            nowFn,
	}

	account, trades, reports, err := l.store.Load(ctx)
	if err != nil {
		l.logger.Warn(ctx, "Could not load persisted ledger state, starting fresh", map[string]interface{}{"error": err.Error()})
	} else {
		if account != nil {
			l.cash = account.CashBalance
			l.initialBalance = account.InitialBalance
			l.startDate = account.StartDate
			if account.Positions != nil {
				l.positions = account.Positions
			}
		}
		l.trades = trades
		l.reports = reports
		if len(reports) > 0 {
			l.lastReportDate = reports[len(reports)-1].Date
		}
	}

	l.logger.Info(ctx, "Ledger initialized", map[string]interface{}{
		"initialBalance": l.initialBalance,
		"cashBalance":    l.cash,
		"positions":      len(l.positions),
		"trades":         len(l.trades),
	})
	return l, nil
}

// Buy spends usdAmount of cash on the given symbol at the given price. The
// fee is taken out of the USD amount before computing the quantity. Repeated
// buys of the same symbol are carried at weighted average cost basis.
func (l *Ledger) Buy(ctx context.Context, symbol string, usdAmount, price float64, rationale string) (*domain.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if symbol == "" || usdAmount <= 0 || price <= 0 {
		return nil, fmt.Errorf("buy order for %q (amount=%.2f price=%.4f): %w", symbol, usdAmount, price, ports.ErrInvalidRequest)
	}
	if usdAmount > l.cash {
		return nil, fmt.Errorf("buy %s for $%.2f exceeds cash balance $%.2f: %w", symbol, usdAmount, l.cash, ports.ErrInsufficientFunds)
	}

	fee := usdAmount * l.feeRate
	net := usdAmount - fee
	quantity := net / price

	trade := &domain.Trade{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		Symbol:    symbol,
		Side:      domain.Buy,
		Quantity:  quantity,
		Price:     price,
		Value:     usdAmount,
		Fee:       fee,
		Rationale: rationale,
	}

	l.cash -= usdAmount

	if pos, ok := l.positions[symbol]; ok {
		totalCost := pos.TotalCost + net
		totalQty := pos.Quantity + quantity
		pos.AvgPrice = totalCost / totalQty
		pos.Quantity = totalQty
		pos.TotalCost = totalCost
		pos.UpdatePrice(price)
	} else {
		pos := &domain.Position{
			Symbol:    symbol,
			Quantity:  quantity,
			AvgPrice:  price,
			TotalCost: net,
		}
		pos.UpdatePrice(price)
		l.positions[symbol] = pos
	}

	l.trades = append(l.trades, trade)
	l.persist(ctx)

	l.logger.Info(ctx, "Buy order executed", map[string]interface{}{
		"symbol":   symbol,
		"quantity": quantity,
		"price":    price,
		"value":    usdAmount,
		"fee":      fee,
	})
	return trade, nil
}

// Sell disposes of quantity units of the given symbol at the given price.
// The fee is taken out of the gross proceeds. A rejected sell leaves both
// the position and the cash balance unchanged.
func (l *Ledger) Sell(ctx context.Context, symbol string, quantity, price float64, rationale string) (*domain.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if symbol == "" || quantity <= 0 || price <= 0 {
		return nil, fmt.Errorf("sell order for %q (quantity=%.6f price=%.4f): %w", symbol, quantity, price, ports.ErrInvalidRequest)
	}
	pos, ok := l.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("sell %s: %w", symbol, ports.ErrNoPosition)
	}
	if quantity > pos.Quantity {
		return nil, fmt.Errorf("sell %.6f %s exceeds held %.6f: %w", quantity, symbol, pos.Quantity, ports.ErrInsufficientQuantity)
	}

	gross := quantity * price
	fee := gross * l.feeRate
	net := gross - fee

	trade := &domain.Trade{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		Symbol:    symbol,
		Side:      domain.Sell,
		Quantity:  quantity,
		Price:     price,
		Value:     gross,
		Fee:       fee,
		Rationale: rationale,
	}

	l.cash += net

	remaining := pos.Quantity - quantity
	if remaining < domain.PositionEpsilon {
		delete(l.positions, symbol)
	} else {
		// Scale the cost basis by the remaining fraction; average cost per
		// unit is preserved.
		pos.TotalCost *= remaining / pos.Quantity
		pos.Quantity = remaining
		pos.UpdatePrice(price)
	}

	l.trades = append(l.trades, trade)
	l.persist(ctx)

	l.logger.Info(ctx, "Sell order executed", map[string]interface{}{
		"symbol":   symbol,
		"quantity": quantity,
		"price":    price,
		"gross":    gross,
		"fee":      fee,
	})
	return trade, nil
}

// Valuation revalues every position from the given price map and returns the
// total account value (cash plus positions). Symbols missing from the map
// keep their last known price.
func (l *Ledger) Valuation(ctx context.Context, prices map[string]float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.valuationLocked(prices)
}

func (l *Ledger) valuationLocked(prices map[string]float64) float64 {
	positionsValue := 0.0
	for symbol, pos := range l.positions {
		if price, ok := prices[symbol]; ok {
			pos.UpdatePrice(price)
		} else {
			pos.UpdatePrice(pos.CurrentPrice)
		}
		positionsValue += pos.CurrentValue
	}
	return l.cash + positionsValue
}

// AvailableBalance returns the cash available for buy orders.
func (l *Ledger) AvailableBalance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Position returns a copy of the current position in symbol, if any.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// TradeCount returns the total number of executed trades.
func (l *Ledger) TradeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.trades)
}

// Summary builds the account snapshot handed to the analysis pipeline.
func (l *Ledger) Summary(ctx context.Context, prices map[string]float64) *domain.PortfolioSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	totalValue := l.valuationLocked(prices)
	totalPnL := totalValue - l.initialBalance
	totalPnLPct := 0.0
	if l.initialBalance > 0 {
		totalPnLPct = totalPnL / l.initialBalance * 100
	}

	positions := make(map[string]domain.Position, len(l.positions))
	for symbol, pos := range l.positions {
		positions[symbol] = *pos
	}

	return &domain.PortfolioSummary{
		InitialBalance: l.initialBalance,
		CashBalance:    l.cash,
		PositionsValue: totalValue - l.cash,
		TotalValue:     totalValue,
		TotalPnL:       totalPnL,
		TotalPnLPct:    totalPnLPct,
		Positions:      positions,
		DaysRunning:    int(l.now().Sub(l.startDate).Hours()/24) + 1,
		TotalTrades:    len(l.trades),
	}
}

// Reset clears all in-memory state and wipes persisted files, starting a new
// account lifecycle. A non-positive newInitialBalance keeps the current one.
func (l *Ledger) Reset(ctx context.Context, newInitialBalance float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if newInitialBalance > 0 {
		l.initialBalance = newInitialBalance
	}
	l.cash = l.initialBalance
	l.positions = make(map[string]*domain.Position)
	l.trades = nil
	l.reports = nil
	l.startDate = l.now()
	l.lastReportDate = ""

	if err := l.store.Wipe(ctx); err != nil {
		l.logger.Error(ctx, err, "Failed to wipe persisted ledger state")
		return fmt.Errorf("wipe persisted state: %w", err)
	}
	l.logger.Info(ctx, "Ledger reset", map[string]interface{}{"initialBalance": l.initialBalance})
	return nil
}

// persist durably writes the three ledger documents. Must be called with the
// mutex held. Failures are logged but do not roll back the in-memory
// mutation: in-memory state is authoritative for the running process.
func (l *Ledger) persist(ctx context.Context) {
	account := &ports.AccountSnapshot{
		CashBalance:    l.cash,
		InitialBalance: l.initialBalance,
		StartDate:      l.startDate,
		Positions:      l.positions,
	}
	if err := l.store.SaveAccount(ctx, account); err != nil {
		l.logger.Error(ctx, err, "Failed to persist account snapshot")
	}
	if err := l.store.SaveTrades(ctx, l.trades); err != nil {
		l.logger.Error(ctx, err, "Failed to persist trade log")
	}
	if err := l.store.SaveReports(ctx, l.reports); err != nil {
		l.logger.Error(ctx, err, "Failed to persist report log")
	}
}
