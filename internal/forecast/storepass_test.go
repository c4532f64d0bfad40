package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborfresh/order-forecast/internal/domain"
)

// storeLine builds a line with a pre-set baseline and a fixture delta
// bringing it to the given final quantity, keeping the ledger reconciled.
func storeLine(itemNo int, baseline, final float64, sold [4]*float64) *domain.ForecastLine {
	l := &domain.ForecastLine{
		StoreNo:      431,
		ItemNo:       itemNo,
		RegionCode:   "BA",
		DateForecast: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		CasePackSize: 6,
		BaselineQty:  baseline,
	}
	l.ForecastAverage = baseline
	l.FinalQuantity = baseline
	for i := 0; i < 4; i++ {
		l.Weeks[i] = domain.Week{Sold: sold[i]}
	}
	if final != baseline {
		l.Apply(domain.StageAdhocIncrease, final-baseline, "fixture")
	}
	return l
}

func TestApplyStoreConsistencyPass(t *testing.T) {
	scenario := domain.DefaultScenario()
	scenario.StoreShrinkThreshold = 0.20

	t.Run("shrink above bound sheds one case", func(t *testing.T) {
		// 36 units forecast against 27 sold last week: 25% store shrink.
		over := storeLine(1, 12, 24, [4]*float64{f(15), f(14), f(16), f(20)})
		clean := storeLine(2, 12, 12, [4]*float64{f(12), f(12), f(12), f(15)})
		clean.Weeks[0].Shipped = f(12) // sold out, protected
		lines := []*domain.ForecastLine{over, clean}
		require.InDelta(t, 0.25, storeShrinkRatio(lines), 1e-9)

		ApplyStoreConsistencyPass(lines, scenario)

		assert.InDelta(t, 18.0, over.FinalQuantity, 1e-9)
		assert.InDelta(t, -6.0, over.DeltaQty(domain.StageStoreDecline), 1e-9)
		assert.True(t, over.StoreLevelAdjusted)
		assert.InDelta(t, 12.0, clean.FinalQuantity, 1e-9)
		assert.LessOrEqual(t, storeShrinkRatio(lines), scenario.StoreShrinkThreshold)
		require.NoError(t, over.Reconcile())
		require.NoError(t, clean.Reconcile())
	})

	t.Run("reduction stops at baseline floor", func(t *testing.T) {
		// both lines forecast their baseline exactly; no safe reduction
		a := storeLine(1, 18, 18, [4]*float64{f(2), f(2), f(2), f(2)})
		b := storeLine(2, 12, 12, [4]*float64{f(1), f(1), f(1), f(1)})
		lines := []*domain.ForecastLine{a, b}
		require.Greater(t, storeShrinkRatio(lines), scenario.StoreShrinkThreshold)

		ApplyStoreConsistencyPass(lines, scenario)

		assert.InDelta(t, 18.0, a.FinalQuantity, 1e-9)
		assert.InDelta(t, 12.0, b.FinalQuantity, 1e-9)
	})

	t.Run("historical cap triggers even with healthy shrink", func(t *testing.T) {
		// shrink is fine but the store never sold this much in 4 weeks
		a := storeLine(1, 6, 24, [4]*float64{f(20), f(10), f(10), f(10)})
		b := storeLine(2, 6, 6, [4]*float64{f(6), f(2), f(2), f(2)})
		lines := []*domain.ForecastLine{a, b}
		require.LessOrEqual(t, storeShrinkRatio(lines), scenario.StoreShrinkThreshold)
		// store max week = 26, cap = 28.6, forecast total = 30

		ApplyStoreConsistencyPass(lines, scenario)

		assert.InDelta(t, 18.0, a.FinalQuantity, 1e-9)
		assert.Negative(t, a.DeltaQty(domain.StageStoreDecline))
	})

	t.Run("degenerate coverage is topped up one case", func(t *testing.T) {
		empty := storeLine(1, 10, 0, [4]*float64{f(8), f(8), f(8), f(8)})
		healthy := storeLine(2, 12, 12, [4]*float64{f(12), f(12), f(12), f(12)})
		lines := []*domain.ForecastLine{empty, healthy}

		ApplyStoreConsistencyPass(lines, scenario)

		assert.InDelta(t, 6.0, empty.FinalQuantity, 1e-9)
		assert.InDelta(t, 6.0, empty.DeltaQty(domain.StageStoreGrowth), 1e-9)
		assert.True(t, empty.StoreLevelAdjusted)
		require.NoError(t, empty.Reconcile())
	})

	t.Run("growth and decline are mutually exclusive", func(t *testing.T) {
		// a line reduced by the shrink loop is never bumped afterwards
		over := storeLine(1, 12, 30, [4]*float64{f(10), f(25), f(25), f(25)})
		lines := []*domain.ForecastLine{over}

		ApplyStoreConsistencyPass(lines, scenario)

		_, grew := over.Delta(domain.StageStoreGrowth)
		declined, _ := over.Delta(domain.StageStoreDecline)
		if declined.Qty != 0 {
			assert.False(t, grew)
		}
		assert.GreaterOrEqual(t, over.FinalQuantity, over.BaselineQty)
	})
}
