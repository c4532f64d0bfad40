package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harborfresh/order-forecast/internal/domain"
	"github.com/harborfresh/order-forecast/internal/forecast"
	"github.com/harborfresh/order-forecast/internal/observability"
)

// Engine runs the full stage sequence over one batch. Per-line stages fan
// out across goroutines and join at a barrier before the store passes; store
// passes run with a single writer per store group, parallel across stores.
type Engine struct {
	weather domain.WeatherLookup
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEngine creates an Engine. A nil weather lookup disables the weather
// pass for every store.
func NewEngine(weather domain.WeatherLookup, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		weather: weather,
		logger:  logger,
		metrics: metrics,
	}
}

// ProcessBatch mutates the batch in place through every stage, seals each
// line, and verifies ledger reconciliation. The scenario is validated first;
// a malformed scenario rejects the batch before any line changes.
func (e *Engine) ProcessBatch(ctx context.Context, b *domain.ForecastBatch) error {
	start := time.Now()

	if err := b.Scenario.Validate(); err != nil {
		e.metrics.BatchesRejected.Inc()
		return fmt.Errorf("reject batch %s: %w", b.BatchID, err)
	}

	e.metrics.BatchSize.Observe(float64(len(b.Lines)))

	e.runLineStages(b)

	groups := b.StoreGroups()
	e.runStorePasses(ctx, b, groups)

	for _, l := range b.Lines {
		forecast.ApplyInactiveStoreOverride(l, b.Scenario)
		l.Seal()
	}

	if err := e.reconcile(b); err != nil {
		return err
	}

	e.observeStages(b)
	e.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())

	e.logger.Debug("batch processed",
		"batch_id", b.BatchID,
		"region", b.RegionCode,
		"date", b.DateForecast.Format("2006-01-02"),
		"scenario", b.Scenario.Name,
		"lines", len(b.Lines),
		"total_quantity", b.TotalQuantity(),
	)
	return nil
}

// runLineStages executes stages that touch a single line at a time, fanned
// out across goroutines. Lines share nothing until the store passes.
func (e *Engine) runLineStages(b *domain.ForecastBatch) {
	var wg sync.WaitGroup
	for _, l := range b.Lines {
		wg.Add(1)
		go func(l *domain.ForecastLine) {
			defer wg.Done()
			forecast.EstimateBaseline(l, b.Scenario)
			forecast.ApplyDeclineAdjustment(l, b.Scenario)
			forecast.ApplyHighShrinkAdjustment(l, b.Scenario)
			forecast.ApplyAdjustmentRules(l, b.Scenario)
			forecast.ApplyCoverAndRounding(l, b.Scenario)
			forecast.ApplySafetyStock(l, b.Scenario)
			forecast.ApplyCoverGuardrail(l, b.Scenario)
		}(l)
	}
	wg.Wait()
}

// runStorePasses executes the consistency and weather passes, parallel
// across stores with one goroutine owning all lines of a store.
func (e *Engine) runStorePasses(ctx context.Context, b *domain.ForecastBatch, groups map[int][]*domain.ForecastLine) {
	var wg sync.WaitGroup
	for storeNo, lines := range groups {
		wg.Add(1)
		go func(storeNo int, lines []*domain.ForecastLine) {
			defer wg.Done()
			forecast.ApplyStoreConsistencyPass(lines, b.Scenario)
			e.runWeatherPass(ctx, b, storeNo, lines)
		}(storeNo, lines)
	}
	wg.Wait()
}

// runWeatherPass looks up the store's weather observation and applies the
// reduction pass. A lookup miss or error skips the pass; orders must never
// block on weather data.
func (e *Engine) runWeatherPass(ctx context.Context, b *domain.ForecastBatch, storeNo int, lines []*domain.ForecastLine) {
	if e.weather == nil {
		e.metrics.WeatherSkipped.WithLabelValues("no_observation").Inc()
		return
	}

	obs, ok, err := e.weather.Lookup(ctx, storeNo, b.DateForecast)
	if err != nil {
		e.logger.Warn("weather lookup failed, skipping weather pass",
			"error", err, "store_no", storeNo, "date", b.DateForecast.Format("2006-01-02"))
		e.metrics.WeatherLookups.WithLabelValues("error").Inc()
		e.metrics.WeatherSkipped.WithLabelValues("no_observation").Inc()
		return
	}
	if !ok {
		e.metrics.WeatherLookups.WithLabelValues("miss").Inc()
		e.metrics.WeatherSkipped.WithLabelValues("no_observation").Inc()
		return
	}

	e.metrics.WeatherLookups.WithLabelValues("hit").Inc()
	if obs.SeverityScore < b.Scenario.WeatherSeverityThreshold {
		e.metrics.WeatherSkipped.WithLabelValues("below_threshold").Inc()
	}
	forecast.ApplyWeatherReductionPass(lines, b.Scenario, obs)
}

// reconcile verifies every sealed line's waterfall closes to its final
// quantity. A violation is a programming error in a stage; the whole batch
// fails rather than shipping inconsistent records.
func (e *Engine) reconcile(b *domain.ForecastBatch) error {
	for _, l := range b.Lines {
		if err := l.Reconcile(); err != nil {
			e.metrics.ReconcileErrors.Inc()
			e.logger.Error("ledger reconcile failed",
				"error", err, "store_no", l.StoreNo, "item_no", l.ItemNo, "batch_id", b.BatchID)
			return fmt.Errorf("batch %s: line (%d, %d): %w", b.BatchID, l.StoreNo, l.ItemNo, err)
		}
	}
	return nil
}

func (e *Engine) observeStages(b *domain.ForecastBatch) {
	for _, l := range b.Lines {
		for _, d := range l.Ledger {
			direction := "increase"
			if d.Qty < 0 {
				direction = "decrease"
			}
			e.metrics.StageAdjustments.WithLabelValues(string(d.Stage), direction).Inc()
		}
	}
}
