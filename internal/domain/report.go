package domain

// DailyReport is an immutable end-of-day performance snapshot. At most one
// report is generated per calendar date; reports are append-only.
type DailyReport struct {
	Date           string   `json:"date"` // ISO calendar date (YYYY-MM-DD)
	StartingValue  float64  `json:"starting_value"`
	EndingValue    float64  `json:"ending_value"`
	DailyPnL       float64  `json:"daily_pnl"`
	DailyPnLPct    float64  `json:"daily_pnl_pct"`
	TotalPnL       float64  `json:"total_pnl"`
	TotalPnLPct    float64  `json:"total_pnl_pct"`
	PositionsCount int      `json:"positions_count"`
	TradesCount    int      `json:"trades_count"` // Trades executed on this date
	TopPerformer   string   `json:"top_performer,omitempty"`
	WorstPerformer string   `json:"worst_performer,omitempty"`
	KeyActions     []string `json:"key_actions"` // Up to 5 most recent same-day trades
}
