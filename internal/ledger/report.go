package ledger

import (
	"context"
	"fmt"

	"cryptotrader/internal/domain"
)

const maxKeyActions = 5

// ShouldGenerateDailyReport reports whether no daily report has been
// generated yet for the current calendar date.
func (l *Ledger) ShouldGenerateDailyReport() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastReportDate != l.now().Format(dateLayout)
}

// LatestReport returns a copy of the most recent daily report, or nil if
// none has been generated.
func (l *Ledger) LatestReport() *domain.DailyReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.reports) == 0 {
		return nil
	}
	report := *l.reports[len(l.reports)-1]
	return &report
}

// GenerateDailyReport produces the performance snapshot for the current
// calendar date. It is idempotent per date: calling it again on the same day
// returns the already generated report without appending a new one.
func (l *Ledger) GenerateDailyReport(ctx context.Context, prices map[string]float64) (*domain.DailyReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.now().Format(dateLayout)
	if l.lastReportDate == today && len(l.reports) > 0 {
		report := *l.reports[len(l.reports)-1]
		return &report, nil
	}

	totalValue := l.valuationLocked(prices)

	// Daily P&L is measured against the previous report's ending value, or
	// the initial balance on the first day.
	previousValue := l.initialBalance
	if len(l.reports) > 0 {
		previousValue = l.reports[len(l.reports)-1].EndingValue
	}

	dailyPnL := totalValue - previousValue
	dailyPnLPct := 0.0
	if previousValue > 0 {
		dailyPnLPct = dailyPnL / previousValue * 100
	}
	totalPnL := totalValue - l.initialBalance
	totalPnLPct := 0.0
	if l.initialBalance > 0 {
		totalPnLPct = totalPnL / l.initialBalance * 100
	}

	var topPerformer, worstPerformer string
	bestPct, worstPct := 0.0, 0.0
	first := true
	for symbol, pos := range l.positions {
		if first || pos.UnrealizedPnLPct > bestPct {
			bestPct = pos.UnrealizedPnLPct
			topPerformer = fmt.Sprintf("%s (%+.2f%%)", symbol, pos.UnrealizedPnLPct)
		}
		if first || pos.UnrealizedPnLPct < worstPct {
			worstPct = pos.UnrealizedPnLPct
			worstPerformer = fmt.Sprintf("%s (%+.2f%%)", symbol, pos.UnrealizedPnLPct)
		}
		first = false
	}

	var todayTrades []*domain.Trade
	for _, trade := range l.trades {
		if trade.Timestamp.Format(dateLayout) == today {
			todayTrades = append(todayTrades, trade)
		}
	}

	var keyActions []string
	start := 0
	if len(todayTrades) > maxKeyActions {
		start = len(todayTrades) - maxKeyActions
	}
	for _, trade := range todayTrades[start:] {
		keyActions = append(keyActions, fmt.Sprintf("%s %.4f %s @ $%.4f", trade.Side, trade.Quantity, trade.Symbol, trade.Price))
	}
	if len(keyActions) == 0 {
		keyActions = []string{"No trades executed today"}
	}

	report := &domain.DailyReport{
		Date:           today,
		StartingValue:  previousValue,
		EndingValue:    totalValue,
		DailyPnL:       dailyPnL,
		DailyPnLPct:    dailyPnLPct,
		TotalPnL:       totalPnL,
		TotalPnLPct:    totalPnLPct,
		PositionsCount: len(l.positions),
		TradesCount:    len(todayTrades),
		TopPerformer:   topPerformer,
		WorstPerformer: worstPerformer,
		KeyActions:     keyActions,
	}

	l.reports = append(l.reports, report)
	l.lastReportDate = today
	l.persist(ctx)

	l.logger.Info(ctx, "Daily report generated", map[string]interface{}{
		"date":        today,
		"endingValue": totalValue,
		"dailyPnL":    dailyPnL,
		"totalPnL":    totalPnL,
	})
	result := *report
	return &result, nil
}
