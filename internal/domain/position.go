package domain

// PositionEpsilon is the quantity below which a position is considered
// fully closed and removed from the ledger.
const PositionEpsilon = 1e-6

// Position is the current holding in a single symbol, carried at weighted
// average cost basis. TotalCost stays consistent with Quantity*AvgPrice at
// the moment of last update: recomputed as a weighted average on buys,
// scaled proportionally on partial sells.
type Position struct {
	Symbol           string  `json:"symbol"`
	Quantity         float64 `json:"quantity"`
	AvgPrice         float64 `json:"avg_price"`
	TotalCost        float64 `json:"total_cost"`
	CurrentPrice     float64 `json:"current_price"`
	CurrentValue     float64 `json:"current_value"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`
}

// UpdatePrice revalues the position at the given market price.
func (p *Position) UpdatePrice(price float64) {
	p.CurrentPrice = price
	p.CurrentValue = p.Quantity * price
	p.UnrealizedPnL = p.CurrentValue - p.TotalCost
	if p.TotalCost > 0 {
		p.UnrealizedPnLPct = p.UnrealizedPnL / p.TotalCost * 100
	} else {
		p.UnrealizedPnLPct = 0
	}
}
