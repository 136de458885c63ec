package ports

import (
	"context"

	"cryptotrader/internal/domain"
)

// MarketDataSource supplies current prices and 24h statistics. The scheduler
// and ledger valuation consume it through this interface and never implement
// it; transport failures surface as errors classified by the retry policy.
type MarketDataSource interface {
	// GetTopSymbols returns up to limit symbols ordered by 24h quote volume,
	// filtered to a minimum liquidity floor.
	GetTopSymbols(ctx context.Context, limit int) ([]domain.SymbolStats, error)

	// GetTickerPrice retrieves the last traded price for a single symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
}
