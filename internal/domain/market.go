package domain

import "time"

// SymbolStats holds 24h statistics for one traded symbol as reported by the
// market data source.
type SymbolStats struct {
	Symbol           string  `json:"symbol"`
	LastPrice        float64 `json:"last_price"`
	ChangePercent24h float64 `json:"change_percent_24h"`
	QuoteVolume24h   float64 `json:"quote_volume_24h"`
	TradeCount24h    int64   `json:"trade_count_24h"`
}

// MarketCondition is the ephemeral per-tick assessment of the overall
// market, derived from the sampled top symbols.
type MarketCondition struct {
	Volatility24h   float64 // Mean absolute 24h change across the sample (fraction, not percent)
	VolumeChange    float64 // Sampled volume change vs the previous tick (fraction)
	PriceChange     float64 // Mean signed 24h change across the sample (fraction)
	UnusualActivity bool    // Any configured threshold exceeded
	Timestamp       time.Time
}

// MarketSnapshot is the single most recent market sample kept between ticks
// so the next tick can compute a volume-change percentage. It is not a
// history; each save replaces the previous snapshot.
type MarketSnapshot struct {
	TotalVolume   float64       `json:"total_volume"`
	AvgVolatility float64       `json:"avg_volatility"`
	Timestamp     time.Time     `json:"timestamp"`
	Symbols       []SymbolStats `json:"symbols"`
}

// PortfolioSummary is the point-in-time account snapshot handed to the
// external analysis pipeline.
type PortfolioSummary struct {
	InitialBalance float64             `json:"initial_balance"`
	CashBalance    float64             `json:"cash_balance"`
	PositionsValue float64             `json:"positions_value"`
	TotalValue     float64             `json:"total_value"`
	TotalPnL       float64             `json:"total_pnl"`
	TotalPnLPct    float64             `json:"total_pnl_pct"`
	Positions      map[string]Position `json:"positions"`
	DaysRunning    int                 `json:"days_running"`
	TotalTrades    int                 `json:"total_trades"`
}
