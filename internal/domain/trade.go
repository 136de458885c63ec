package domain

import "time"

// Trade is an immutable record of a single executed order. Trades are
// appended to the ledger's trade log and never mutated afterwards.
type Trade struct {
	ID        string    `json:"id"`        // Unique trade identifier
	Timestamp time.Time `json:"timestamp"` // Time the order was executed
	Symbol    string    `json:"symbol"`    // Trading symbol (e.g., "BTCUSDT")
	Side      OrderSide `json:"side"`      // BUY or SELL
	Quantity  float64   `json:"quantity"`  // Asset quantity traded
	Price     float64   `json:"price"`     // Execution price
	Value     float64   `json:"value"`     // Gross USD value of the order
	Fee       float64   `json:"fee"`       // Fee charged on the order
	Rationale string    `json:"rationale"` // Free-text reasoning behind the order
}

// TradeInstruction is an order request produced by the external analysis
// pipeline. For BUY the Amount is a USD notional; for SELL it is an asset
// quantity.
type TradeInstruction struct {
	Symbol    string    `json:"symbol"`
	Side      OrderSide `json:"side"`
	Amount    float64   `json:"amount"`
	Rationale string    `json:"rationale"`
}
