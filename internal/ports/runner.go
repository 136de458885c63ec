package ports

import (
	"context"

	"cryptotrader/internal/domain"
)

// AnalysisRunner is the external analysis pipeline (the LLM-agent side of
// the system). The scheduler invokes it for levels above monitor and applies
// whatever trade instructions come back. Failures are contained at tick
// granularity by the caller.
type AnalysisRunner interface {
	RunCycle(ctx context.Context, level domain.AnalysisLevel, portfolio *domain.PortfolioSummary) ([]domain.TradeInstruction, error)
}
