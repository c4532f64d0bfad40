package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborfresh/order-forecast/internal/domain"
	"github.com/harborfresh/order-forecast/internal/observability"
	"github.com/harborfresh/order-forecast/internal/pipeline"
)

func fp(v float64) *float64 { return &v }

var testDate = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

// makeLine builds a healthy line: steady sales, no shrink data, sold out
// last week so the sold-out cover applies. Baseline 50, target 53,
// case-rounded to 54.
func makeLine(t *testing.T, storeNo, itemNo int) *domain.ForecastLine {
	t.Helper()
	line, err := domain.NewForecastLine(domain.InputRecord{
		StoreNo:      storeNo,
		ItemNo:       itemNo,
		RegionCode:   "BA",
		DateForecast: "2026-03-02",
		CasePackSize: 6,
		W1Shipped:    fp(50), W1Sold: fp(50),
		W2Shipped: fp(40), W2Sold: fp(40),
		W3Shipped: fp(45), W3Sold: fp(45),
		W4Shipped: fp(42), W4Sold: fp(42),
	})
	require.NoError(t, err)
	return line
}

func makeBatch(t *testing.T, s domain.ScenarioParameters, lines ...*domain.ForecastLine) *domain.ForecastBatch {
	t.Helper()
	b, err := domain.NewForecastBatch("BA", testDate, s, lines)
	require.NoError(t, err)
	return b
}

type stubWeather struct {
	obs domain.WeatherObservation
	ok  bool
	err error
}

func (w *stubWeather) Lookup(_ context.Context, storeNo int, date time.Time) (domain.WeatherObservation, bool, error) {
	return w.obs, w.ok, w.err
}

func newTestMetrics() *observability.Metrics {
	// Fresh registry to avoid "already registered" panics across tests.
	return observability.NewMetricsForTesting()
}

func TestEngine_ProcessBatch_HappyPath(t *testing.T) {
	line := makeLine(t, 431, 1713314)
	batch := makeBatch(t, domain.DefaultScenario(), line)

	eng := pipeline.NewEngine(nil, slog.Default(), newTestMetrics())
	require.NoError(t, eng.ProcessBatch(context.Background(), batch))

	assert.True(t, line.Sealed())
	assert.Equal(t, 50.0, line.BaselineQty)
	assert.Equal(t, 54.0, line.FinalQuantity)
	assert.NoError(t, line.Reconcile())
}

func TestEngine_ProcessBatch_RejectsBadScenarioBeforeMutation(t *testing.T) {
	line := makeLine(t, 431, 1713314)
	s := domain.DefaultScenario()
	s.CaseSize = 0
	batch := makeBatch(t, s, line)

	metrics := newTestMetrics()
	eng := pipeline.NewEngine(nil, slog.Default(), metrics)
	err := eng.ProcessBatch(context.Background(), batch)
	require.Error(t, err)

	assert.Zero(t, line.BaselineQty)
	assert.Zero(t, line.FinalQuantity)
	assert.Empty(t, line.Ledger)
	assert.False(t, line.Sealed())
}

func TestEngine_ProcessBatch_InactiveStoreClosesToZero(t *testing.T) {
	line := makeLine(t, 900, 1713314)
	s := domain.DefaultScenario()
	s.InactiveStores = []int{900}
	batch := makeBatch(t, s, line)

	eng := pipeline.NewEngine(nil, slog.Default(), newTestMetrics())
	require.NoError(t, eng.ProcessBatch(context.Background(), batch))

	assert.Zero(t, line.FinalQuantity)
	assert.Equal(t, -54.0, line.DeltaQty(domain.StageInactiveStore))
	assert.NoError(t, line.Reconcile())
}

func TestEngine_ProcessBatch_WeatherReduction(t *testing.T) {
	line := makeLine(t, 431, 1713314)
	weather := &stubWeather{
		obs: domain.WeatherObservation{
			StoreNo:       431,
			Date:          testDate,
			SeverityScore: 8.5,
			Condition:     "blizzard",
		},
		ok: true,
	}
	// An uplift rule gives the line headroom above its baseline floor so the
	// weather pass has cases to shed: 50 * 1.5 = 75, covered and rounded to
	// 84. The store bounds are loosened so the consistency pass does not
	// reclaim the uplift first.
	s := domain.DefaultScenario()
	s.AdjustmentRules = []domain.AdjustmentRule{{
		Label:      "event-uplift",
		Category:   domain.RuleAdhocIncrease,
		Multiplier: 1.5,
	}}
	s.StoreShrinkThreshold = 0.9
	s.StoreHistoricalThreshold = 1.0
	batch := makeBatch(t, s, line)

	eng := pipeline.NewEngine(weather, slog.Default(), newTestMetrics())
	require.NoError(t, eng.ProcessBatch(context.Background(), batch))

	assert.Equal(t, 8.5, line.WeatherSeverityScore)
	assert.Equal(t, "extreme", line.WeatherSeverityCategory)
	assert.True(t, line.WeatherAdjusted)
	assert.Less(t, line.FinalQuantity, 84.0)
	assert.GreaterOrEqual(t, line.FinalQuantity, line.BaselineQty)
	assert.NoError(t, line.Reconcile())
}

func TestEngine_ProcessBatch_WeatherLookupErrorSkipsPass(t *testing.T) {
	line := makeLine(t, 431, 1713314)
	weather := &stubWeather{err: errors.New("connection refused")}
	batch := makeBatch(t, domain.DefaultScenario(), line)

	eng := pipeline.NewEngine(weather, slog.Default(), newTestMetrics())
	require.NoError(t, eng.ProcessBatch(context.Background(), batch))

	assert.False(t, line.WeatherAdjusted)
	assert.Equal(t, 54.0, line.FinalQuantity)
}

func TestEngine_ProcessBatch_WeatherMissSkipsPass(t *testing.T) {
	line := makeLine(t, 431, 1713314)
	weather := &stubWeather{ok: false}
	batch := makeBatch(t, domain.DefaultScenario(), line)

	eng := pipeline.NewEngine(weather, slog.Default(), newTestMetrics())
	require.NoError(t, eng.ProcessBatch(context.Background(), batch))

	assert.False(t, line.WeatherAdjusted)
	assert.Zero(t, line.WeatherSeverityScore)
	assert.Equal(t, 54.0, line.FinalQuantity)
}

func TestEngine_ProcessBatch_ManyLinesReconcile(t *testing.T) {
	lines := make([]*domain.ForecastLine, 0, 40)
	for store := 1; store <= 4; store++ {
		for item := 1; item <= 10; item++ {
			lines = append(lines, makeLine(t, store, 100000+item))
		}
	}
	batch := makeBatch(t, domain.DefaultScenario(), lines...)

	eng := pipeline.NewEngine(nil, slog.Default(), newTestMetrics())
	require.NoError(t, eng.ProcessBatch(context.Background(), batch))

	for _, l := range batch.Lines {
		assert.True(t, l.Sealed())
		assert.NoError(t, l.Reconcile())
	}
}
