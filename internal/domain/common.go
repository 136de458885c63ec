package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// AnalysisLevel is the intensity of analysis work performed on a scheduler
// tick, ordered by strictly increasing resource cost.
type AnalysisLevel int

const (
	LevelMonitor AnalysisLevel = iota // price checks only, no analysis cost
	LevelQuick
	LevelMedium
	LevelFull
)

// Levels lists all analysis levels in ascending cost order.
var Levels = []AnalysisLevel{LevelMonitor, LevelQuick, LevelMedium, LevelFull}

// String returns the string representation of the AnalysisLevel.
func (l AnalysisLevel) String() string {
	switch l {
	case LevelMonitor:
		return "monitor"
	case LevelQuick:
		return "quick"
	case LevelMedium:
		return "medium"
	case LevelFull:
		return "full"
	default:
		return "unknown"
	}
}
