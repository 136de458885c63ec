// Package scheduler implements the adaptive analysis control loop. Each
// tick it samples the market, classifies the condition, picks an analysis
// level from a multi-threshold state machine with priority overrides, and
// runs the external analysis pipeline when the level is above monitor,
// feeding resulting trade instructions to the ledger. A hard daily token
// budget caps spend regardless of market conditions.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"cryptotrader/internal/domain"
	"cryptotrader/internal/ledger"
	"cryptotrader/internal/metrics"
	"cryptotrader/internal/ports"
	"cryptotrader/internal/retry"
	"cryptotrader/internal/risk"
)

const dateLayout = "2006-01-02"

// ScheduleConfig is the immutable per-instance cadence and threshold
// configuration. It is supplied at construction and never mutated.
type ScheduleConfig struct {
	MonitorInterval time.Duration // Minimum tick interval; also the loop sleep
	QuickInterval   time.Duration
	MediumInterval  time.Duration
	FullInterval    time.Duration

	HighVolatilityThreshold float64 // Fraction, e.g. 0.05 for 5%
	VolumeSurgeThreshold    float64
	SignificantPriceChange  float64

	ActiveHoursStart int // Inclusive UTC hour bounds for medium analysis
	ActiveHoursEnd   int

	WeekendScaleFactor float64 // Multiplies non-monitor intervals on Sat/Sun
}

// DefaultScheduleConfig returns the stock cadence: monitor every 5 minutes,
// quick hourly, medium every 4 hours, full every 12 hours.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		MonitorInterval:         5 * time.Minute,
		QuickInterval:           60 * time.Minute,
		MediumInterval:          240 * time.Minute,
		FullInterval:            720 * time.Minute,
		HighVolatilityThreshold: 0.05,
		VolumeSurgeThreshold:    0.30,
		SignificantPriceChange:  0.03,
		ActiveHoursStart:        6,
		ActiveHoursEnd:          22,
		WeekendScaleFactor:      1.5,
	}
}

// DefaultLevelCosts returns the estimated token cost attributed to the
// daily budget per executed level. These are heuristics, not measurements;
// the external runner is the only party that knows actual cost.
func DefaultLevelCosts() map[domain.AnalysisLevel]int {
	return map[domain.AnalysisLevel]int{
		domain.LevelMonitor: 0,
		domain.LevelQuick:   2000,
		domain.LevelMedium:  8000,
		domain.LevelFull:    25000,
	}
}

// Config holds construction parameters and collaborators for the scheduler.
type Config struct {
	Schedule         ScheduleConfig
	MaxDailyTokens   int
	LevelCosts       map[domain.AnalysisLevel]int // Defaults to DefaultLevelCosts
	TopSymbolLimit   int                          // Symbols requested per sample (default 10)
	VolatilitySample int                          // Top-N of the sample used for volatility (default 5)

	Market      ports.MarketDataSource
	Runner      ports.AnalysisRunner
	Ledger      *ledger.Ledger
	StateStore  ports.MarketStateStore
	MarketRetry *retry.Policy // Tier for market snapshot fetches
	TickerRetry *retry.Policy // Cheaper tier for single-symbol price lookups
	Risk        *risk.Manager // Optional instruction guard; nil applies no limits
	Logger      ports.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time // Clock override for tests
}

// Scheduler is the adaptive analysis control loop. Ticks are inherently
// serialized by the loop design; none of its state needs a lock.
type Scheduler struct {
	schedule         ScheduleConfig
	maxDailyTokens   int
	levelCosts       map[domain.AnalysisLevel]int
	topSymbolLimit   int
	volatilitySample int

	market      ports.MarketDataSource
	runner      ports.AnalysisRunner
	ledger      *ledger.Ledger
	stateStore  ports.MarketStateStore
	marketRetry *retry.Policy
	tickerRetry *retry.Policy
	risk        *risk.Manager
	logger      ports.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	lastRun       map[domain.AnalysisLevel]time.Time
	lastPrices    map[string]float64
	tokensToday   int
	budgetDate    string
	analysisCount map[domain.AnalysisLevel]int
}

// New creates a scheduler instance.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Market == nil || cfg.Runner == nil || cfg.Ledger == nil || cfg.StateStore == nil ||
		cfg.MarketRetry == nil || cfg.TickerRetry == nil || cfg.Logger == nil || cfg.Metrics == nil {
		return nil, fmt.Errorf("missing required dependencies for scheduler")
	}
	if cfg.Schedule.MonitorInterval <= 0 || cfg.Schedule.QuickInterval <= 0 ||
		cfg.Schedule.MediumInterval <= 0 || cfg.Schedule.FullInterval <= 0 {
		return nil, fmt.Errorf("schedule intervals must be positive")
	}
	if cfg.Schedule.WeekendScaleFactor <= 0 {
		return nil, fmt.Errorf("WeekendScaleFactor must be positive")
	}
	if cfg.MaxDailyTokens <= 0 {
		return nil, fmt.Errorf("MaxDailyTokens must be positive")
	}

	levelCosts := cfg.LevelCosts
	if levelCosts == nil {
		levelCosts = DefaultLevelCosts()
	}
	topLimit := cfg.TopSymbolLimit
	if topLimit <= 0 {
		topLimit = 10
	}
	sample := cfg.VolatilitySample
	if sample <= 0 {
		sample = 5
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	return &Scheduler{
		schedule:         cfg.Schedule,
		maxDailyTokens:   cfg.MaxDailyTokens,
		levelCosts:       levelCosts,
		topSymbolLimit:   topLimit,
		volatilitySample: sample,
		market:           cfg.Market,
		runner:           cfg.Runner,
		ledger:           cfg.Ledger,
		stateStore:       cfg.StateStore,
		marketRetry:      cfg.MarketRetry,
		tickerRetry:      cfg.TickerRetry,
		risk:             cfg.Risk,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		now:              nowFn,
		lastRun:          make(map[domain.AnalysisLevel]time.Time),
		lastPrices:       make(map[string]float64),
		analysisCount:    make(map[domain.AnalysisLevel]int),
	}, nil
}

// Run executes ticks at the monitor interval until the context is canceled.
// All work for one tick completes before the next tick's sleep begins; the
// only suspension points are the interval sleep and retry backoff waits,
// both of which honor cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting adaptive scheduler", map[string]interface{}{
		"monitorInterval": s.schedule.MonitorInterval.String(),
		"maxDailyTokens":  s.maxDailyTokens,
	})

	timer := time.NewTimer(s.schedule.MonitorInterval)
	defer timer.Stop()

	for {
		s.tick(ctx)

		timer.Reset(s.schedule.MonitorInterval)
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Scheduler stopped", map[string]interface{}{
				"tokensToday": s.tokensToday,
			})
			return nil
		case <-timer.C:
		}
	}
}

// tick performs one full scheduling iteration. Any failure is contained
// here: the loop always proceeds to the next scheduled interval.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	s.rollBudgetWindow(ctx, now)

	condition := s.assessMarket(ctx)
	level := s.determineLevel(ctx, condition, now)

	s.metrics.Ticks.WithLabelValues(level.String()).Inc()
	s.analysisCount[level]++

	if level == domain.LevelMonitor {
		s.logger.Debug(ctx, "Monitoring only", map[string]interface{}{
			"volatility":  condition.Volatility24h,
			"tokensToday": s.tokensToday,
		})
	} else {
		s.executeAnalysis(ctx, level, now)
	}

	if s.ledger.ShouldGenerateDailyReport() {
		if _, err := s.ledger.GenerateDailyReport(ctx, s.lastPrices); err != nil {
			s.logger.Error(ctx, err, "Failed to generate daily report")
		}
	}
	s.metrics.PortfolioValue.Set(s.ledger.Valuation(ctx, s.lastPrices))
}

// rollBudgetWindow resets the token budget and per-level counters when the
// calendar date changes, logging a summary of the closed window.
func (s *Scheduler) rollBudgetWindow(ctx context.Context, now time.Time) {
	date := now.Format(dateLayout)
	if s.budgetDate == date {
		return
	}
	if s.budgetDate != "" {
		s.logger.Info(ctx, "Daily summary", map[string]interface{}{
			"date":       s.budgetDate,
			"tokensUsed": s.tokensToday,
			"monitor":    s.analysisCount[domain.LevelMonitor],
			"quick":      s.analysisCount[domain.LevelQuick],
			"medium":     s.analysisCount[domain.LevelMedium],
			"full":       s.analysisCount[domain.LevelFull],
		})
	}
	s.budgetDate = date
	s.tokensToday = 0
	s.analysisCount = make(map[domain.AnalysisLevel]int)
	s.metrics.TokensUsedToday.Set(0)
}

// determineLevel picks the analysis level for this tick. Transitions are
// evaluated in strict priority order; budget exhaustion outranks even the
// unusual-activity trigger, since uncontrolled cost is a bigger risk than a
// missed reaction to volatility.
func (s *Scheduler) determineLevel(ctx context.Context, condition domain.MarketCondition, now time.Time) domain.AnalysisLevel {
	if s.tokensToday >= s.maxDailyTokens {
		s.logger.Warn(ctx, "Daily token budget reached, monitoring only", map[string]interface{}{
			"tokensToday": s.tokensToday,
			"budget":      s.maxDailyTokens,
		})
		return domain.LevelMonitor
	}

	if condition.UnusualActivity {
		return domain.LevelFull
	}

	scale := 1.0
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		scale = s.schedule.WeekendScaleFactor
	}
	isActiveHours := now.Hour() >= s.schedule.ActiveHoursStart && now.Hour() <= s.schedule.ActiveHoursEnd

	switch {
	case now.Sub(s.lastRun[domain.LevelFull]) >= scaleInterval(s.schedule.FullInterval, scale):
		return domain.LevelFull
	case now.Sub(s.lastRun[domain.LevelMedium]) >= scaleInterval(s.schedule.MediumInterval, scale) && isActiveHours:
		return domain.LevelMedium
	case now.Sub(s.lastRun[domain.LevelQuick]) >= scaleInterval(s.schedule.QuickInterval, scale):
		return domain.LevelQuick
	default:
		return domain.LevelMonitor
	}
}

func scaleInterval(d time.Duration, scale float64) time.Duration {
	return time.Duration(float64(d) * scale)
}

// executeAnalysis charges the budget, invokes the external runner and
// applies any returned trade instructions. Only the executed level's timer
// is recorded; lower-priority timers run independently.
func (s *Scheduler) executeAnalysis(ctx context.Context, level domain.AnalysisLevel, now time.Time) {
	cost := s.levelCosts[level]
	s.tokensToday += cost
	s.metrics.TokensUsedToday.Set(float64(s.tokensToday))
	s.lastRun[level] = now

	s.logger.Info(ctx, "Executing analysis", map[string]interface{}{
		"level":       level.String(),
		"cost":        cost,
		"tokensToday": s.tokensToday,
	})

	summary := s.ledger.Summary(ctx, s.lastPrices)
	instructions, err := s.runner.RunCycle(ctx, level, summary)
	if err != nil {
		// The attempt was made and presumably cost tokens even on failure,
		// so the budget charge stands.
		s.metrics.AnalysisFailures.Inc()
		s.logger.Error(ctx, err, "Analysis cycle failed", map[string]interface{}{"level": level.String()})
		return
	}
	s.applyInstructions(ctx, instructions, summary)
}

// applyInstructions executes each trade instruction against the ledger,
// looking up a current price through the cheap retry tier when the symbol
// was not part of this tick's market sample. A rejected instruction is
// logged and skipped; it never aborts the remaining instructions.
func (s *Scheduler) applyInstructions(ctx context.Context, instructions []domain.TradeInstruction, summary *domain.PortfolioSummary) {
	for _, inst := range instructions {
		price, ok := s.lastPrices[inst.Symbol]
		if !ok {
			err := s.tickerRetry.Do(ctx, "GetTickerPrice", func(ctx context.Context) error {
				p, err := s.market.GetTickerPrice(ctx, inst.Symbol)
				if err == nil {
					price = p
				}
				return err
			})
			if err != nil {
				s.metrics.Orders.WithLabelValues(string(inst.Side), "failed").Inc()
				s.logger.Error(ctx, err, "Could not price trade instruction", map[string]interface{}{"symbol": inst.Symbol})
				continue
			}
			s.lastPrices[inst.Symbol] = price
		}

		if s.risk != nil {
			if err := s.risk.ValidateInstruction(ctx, inst, price, summary); err != nil {
				s.metrics.Orders.WithLabelValues(string(inst.Side), "rejected").Inc()
				s.logger.Warn(ctx, "Trade instruction blocked by risk limits", map[string]interface{}{
					"symbol": inst.Symbol,
					"side":   string(inst.Side),
					"amount": inst.Amount,
					"error":  err.Error(),
				})
				continue
			}
		}

		var err error
		switch inst.Side {
		case domain.Buy:
			_, err = s.ledger.Buy(ctx, inst.Symbol, inst.Amount, price, inst.Rationale)
		case domain.Sell:
			_, err = s.ledger.Sell(ctx, inst.Symbol, inst.Amount, price, inst.Rationale)
		default:
			s.logger.Warn(ctx, "Unknown instruction side", map[string]interface{}{"side": string(inst.Side)})
			continue
		}
		if err != nil {
			s.metrics.Orders.WithLabelValues(string(inst.Side), "rejected").Inc()
			s.logger.Warn(ctx, "Trade instruction rejected", map[string]interface{}{
				"symbol": inst.Symbol,
				"side":   string(inst.Side),
				"amount": inst.Amount,
				"error":  err.Error(),
			})
			continue
		}
		s.metrics.Orders.WithLabelValues(string(inst.Side), "applied").Inc()
	}
}
