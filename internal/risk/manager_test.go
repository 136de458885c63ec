package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := New(cfg, &mockLogger{})
	require.NoError(t, err)
	return m
}

func portfolio(totalValue float64, positions map[string]domain.Position) *domain.PortfolioSummary {
	if positions == nil {
		positions = map[string]domain.Position{}
	}
	return &domain.PortfolioSummary{TotalValue: totalValue, Positions: positions}
}

func TestValidateInstruction(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		MaxOrderFraction:    0.25,
		MaxPositionFraction: 0.40,
		MaxOpenPositions:    2,
		MinOrderValue:       10,
	}
	m := newTestManager(t, cfg)

	tests := []struct {
		name      string
		inst      domain.TradeInstruction
		price     float64
		portfolio *domain.PortfolioSummary
		wantErr   string
	}{
		{
			name:      "buy within all limits",
			inst:      domain.TradeInstruction{Symbol: "BTCUSDT", Side: domain.Buy, Amount: 2000},
			price:     50000,
			portfolio: portfolio(10000, nil),
		},
		{
			name:      "buy above order fraction",
			inst:      domain.TradeInstruction{Symbol: "BTCUSDT", Side: domain.Buy, Amount: 3000},
			price:     50000,
			portfolio: portfolio(10000, nil),
			wantErr:   "exceeds 25%",
		},
		{
			name:  "buy pushing symbol above position fraction",
			inst:  domain.TradeInstruction{Symbol: "BTCUSDT", Side: domain.Buy, Amount: 2000},
			price: 50000,
			portfolio: portfolio(10000, map[string]domain.Position{
				"BTCUSDT": {Symbol: "BTCUSDT", Quantity: 0.05}, // 2500 at current price
			}),
			wantErr: "would exceed 40%",
		},
		{
			name:  "new symbol above open position limit",
			inst:  domain.TradeInstruction{Symbol: "SOLUSDT", Side: domain.Buy, Amount: 500},
			price: 150,
			portfolio: portfolio(10000, map[string]domain.Position{
				"BTCUSDT": {Symbol: "BTCUSDT", Quantity: 0.01},
				"ETHUSDT": {Symbol: "ETHUSDT", Quantity: 0.5},
			}),
			wantErr: "open position limit 2 reached",
		},
		{
			name:  "adding to held symbol is not a new position",
			inst:  domain.TradeInstruction{Symbol: "ETHUSDT", Side: domain.Buy, Amount: 500},
			price: 3000,
			portfolio: portfolio(10000, map[string]domain.Position{
				"BTCUSDT": {Symbol: "BTCUSDT", Quantity: 0.01},
				"ETHUSDT": {Symbol: "ETHUSDT", Quantity: 0.5}, // 1500 exposure + 500 = 20%
			}),
		},
		{
			name:      "dust buy rejected",
			inst:      domain.TradeInstruction{Symbol: "BTCUSDT", Side: domain.Buy, Amount: 5},
			price:     50000,
			portfolio: portfolio(10000, nil),
			wantErr:   "below minimum",
		},
		{
			name:      "dust sell rejected",
			inst:      domain.TradeInstruction{Symbol: "BTCUSDT", Side: domain.Sell, Amount: 0.0001},
			price:     50000,
			portfolio: portfolio(10000, nil),
			wantErr:   "below minimum",
		},
		{
			name:  "large sell passes exposure checks",
			inst:  domain.TradeInstruction{Symbol: "BTCUSDT", Side: domain.Sell, Amount: 0.1},
			price: 50000,
			portfolio: portfolio(10000, map[string]domain.Position{
				"BTCUSDT": {Symbol: "BTCUSDT", Quantity: 0.1},
			}),
		},
		{
			name:      "buy against empty portfolio",
			inst:      domain.TradeInstruction{Symbol: "BTCUSDT", Side: domain.Buy, Amount: 100},
			price:     50000,
			portfolio: portfolio(0, nil),
			wantErr:   "no value to trade against",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ValidateInstruction(ctx, tt.inst, tt.price, tt.portfolio)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestZeroLimitsDisableChecks(t *testing.T) {
	m := newTestManager(t, Config{})

	inst := domain.TradeInstruction{Symbol: "BTCUSDT", Side: domain.Buy, Amount: 9999}
	err := m.ValidateInstruction(context.Background(), inst, 50000, portfolio(10000, nil))
	assert.NoError(t, err)
}

func TestNewRejectsNegativeLimits(t *testing.T) {
	_, err := New(Config{MaxOrderFraction: -0.1}, &mockLogger{})
	require.Error(t, err)
}
