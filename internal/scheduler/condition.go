package scheduler

import (
	"context"
	"math"

	"cryptotrader/internal/domain"
)

// assessMarket samples the top symbols through the retry policy and derives
// the tick's market condition. A fetch failure after retries degrades to a
// conservative default condition rather than failing the tick: with no data
// it is safer to under-react than to over-react.
func (s *Scheduler) assessMarket(ctx context.Context) domain.MarketCondition {
	var stats []domain.SymbolStats
	err := s.marketRetry.Do(ctx, "GetTopSymbols", func(ctx context.Context) error {
		var err error
		stats, err = s.market.GetTopSymbols(ctx, s.topSymbolLimit)
		return err
	})
	if err != nil || len(stats) == 0 {
		s.logger.Warn(ctx, "Market data unavailable, using default condition", map[string]interface{}{
			"symbols": len(stats),
			"error":   errString(err),
		})
		return s.defaultCondition()
	}

	// Volatility over the top of the sample only; change percentages arrive
	// as percents and are carried as fractions internally.
	sample := stats
	if len(sample) > s.volatilitySample {
		sample = sample[:s.volatilitySample]
	}
	var volSum, changeSum, totalVolume float64
	for _, st := range sample {
		volSum += math.Abs(st.ChangePercent24h) / 100
		changeSum += st.ChangePercent24h / 100
		totalVolume += st.QuoteVolume24h
	}
	avgVolatility := volSum / float64(len(sample))
	avgChange := changeSum / float64(len(sample))

	volumeChange := 0.0
	previous, err := s.stateStore.LoadSnapshot(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Could not load previous market snapshot", map[string]interface{}{"error": err.Error()})
	} else if previous != nil && previous.TotalVolume > 0 {
		volumeChange = (totalVolume - previous.TotalVolume) / previous.TotalVolume
	}

	unusual := avgVolatility > s.schedule.HighVolatilityThreshold ||
		math.Abs(volumeChange) > s.schedule.VolumeSurgeThreshold ||
		math.Abs(avgChange) > s.schedule.SignificantPriceChange

	prices := make(map[string]float64, len(stats))
	for _, st := range stats {
		prices[st.Symbol] = st.LastPrice
	}
	s.lastPrices = prices

	snapshot := &domain.MarketSnapshot{
		TotalVolume:   totalVolume,
		AvgVolatility: avgVolatility,
		Timestamp:     s.now(),
		Symbols:       sample,
	}
	if err := s.stateStore.SaveSnapshot(ctx, snapshot); err != nil {
		s.logger.Warn(ctx, "Could not save market snapshot", map[string]interface{}{"error": err.Error()})
	}

	if unusual {
		s.logger.Info(ctx, "Unusual market activity detected", map[string]interface{}{
			"volatility":   avgVolatility,
			"volumeChange": volumeChange,
			"priceChange":  avgChange,
		})
	}

	return domain.MarketCondition{
		Volatility24h:   avgVolatility,
		VolumeChange:    volumeChange,
		PriceChange:     avgChange,
		UnusualActivity: unusual,
		Timestamp:       s.now(),
	}
}

// defaultCondition is the conservative fallback when market data is
// unavailable: calm market, no unusual activity.
func (s *Scheduler) defaultCondition() domain.MarketCondition {
	return domain.MarketCondition{
		Volatility24h:   0.02,
		VolumeChange:    0,
		PriceChange:     0,
		UnusualActivity: false,
		Timestamp:       s.now(),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
