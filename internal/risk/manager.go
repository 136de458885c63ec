// Package risk validates trade instructions from the external analysis
// pipeline before they reach the ledger. The pipeline is advisory, not
// trusted: a malformed or oversized instruction must be rejected here, not
// executed and regretted.
package risk

import (
	"context"
	"fmt"

	"cryptotrader/internal/domain"
	"cryptotrader/internal/ports"
)

// Config holds the exposure limits applied to incoming instructions.
type Config struct {
	MaxOrderFraction    float64 // Max single order value as a fraction of total portfolio value
	MaxPositionFraction float64 // Max per-symbol exposure as a fraction of total portfolio value
	MaxOpenPositions    int     // Max number of distinct open positions
	MinOrderValue       float64 // Reject dust orders below this USD value
}

// DefaultConfig returns conservative stock limits: no order above 25% of the
// portfolio, no symbol above 40%, at most 10 open positions, $10 minimum.
func DefaultConfig() Config {
	return Config{
		MaxOrderFraction:    0.25,
		MaxPositionFraction: 0.40,
		MaxOpenPositions:    10,
		MinOrderValue:       10,
	}
}

// Manager checks instructions against the configured limits.
type Manager struct {
	config Config
	logger ports.Logger
}

// New creates a risk manager. Zero-valued limits disable the corresponding
// check.
func New(cfg Config, logger ports.Logger) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for risk manager")
	}
	if cfg.MaxOrderFraction < 0 || cfg.MaxPositionFraction < 0 || cfg.MaxOpenPositions < 0 || cfg.MinOrderValue < 0 {
		return nil, fmt.Errorf("risk limits cannot be negative")
	}
	return &Manager{config: cfg, logger: logger}, nil
}

// ValidateInstruction checks one instruction against the current portfolio.
// The price is the execution price the caller intends to use; for SELL
// instructions it converts the asset quantity to a USD value.
func (m *Manager) ValidateInstruction(ctx context.Context, inst domain.TradeInstruction, price float64, portfolio *domain.PortfolioSummary) error {
	orderValue := inst.Amount
	if inst.Side == domain.Sell {
		orderValue = inst.Amount * price
	}

	if m.config.MinOrderValue > 0 && orderValue < m.config.MinOrderValue {
		return fmt.Errorf("order value %.2f below minimum %.2f", orderValue, m.config.MinOrderValue)
	}

	if inst.Side != domain.Buy {
		return nil // Sells only shrink exposure; the ledger enforces quantity
	}

	totalValue := portfolio.TotalValue
	if totalValue <= 0 {
		return fmt.Errorf("portfolio has no value to trade against")
	}

	if m.config.MaxOrderFraction > 0 && orderValue > totalValue*m.config.MaxOrderFraction {
		return fmt.Errorf("order value %.2f exceeds %.0f%% of portfolio value %.2f",
			orderValue, m.config.MaxOrderFraction*100, totalValue)
	}

	existing, held := portfolio.Positions[inst.Symbol]
	if m.config.MaxOpenPositions > 0 && !held && len(portfolio.Positions) >= m.config.MaxOpenPositions {
		return fmt.Errorf("open position limit %d reached", m.config.MaxOpenPositions)
	}

	if m.config.MaxPositionFraction > 0 {
		exposure := orderValue
		if held {
			exposure += existing.Quantity * price
		}
		if exposure > totalValue*m.config.MaxPositionFraction {
			return fmt.Errorf("%s exposure %.2f would exceed %.0f%% of portfolio value %.2f",
				inst.Symbol, exposure, m.config.MaxPositionFraction*100, totalValue)
		}
	}

	return nil
}
