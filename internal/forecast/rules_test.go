package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborfresh/order-forecast/internal/domain"
)

func dateRange(start, end string) (domain.Date, domain.Date) {
	s, _ := time.Parse("2006-01-02", start)
	e, _ := time.Parse("2006-01-02", end)
	return domain.Date{Time: s}, domain.Date{Time: e}
}

func TestApplyAdjustmentRules(t *testing.T) {
	scenario := domain.DefaultScenario()
	start, end := dateRange("2026-03-01", "2026-03-07")

	t.Run("matching promo multiplies and records", func(t *testing.T) {
		scenario := scenario
		scenario.AdjustmentRules = []domain.AdjustmentRule{{
			Label:      "spring promo",
			Category:   domain.RulePromo,
			Regions:    []string{"BA"},
			StartDate:  start,
			EndDate:    end,
			Multiplier: 1.10,
		}}
		l := testLine(t,
			[4]*float64{f(40), f(40), f(40), f(40)},
			[4]*float64{f(48), f(48), f(48), f(48)})
		EstimateBaseline(l, scenario)

		ApplyAdjustmentRules(l, scenario)

		assert.InDelta(t, 44.0, l.ForecastAverage, 1e-9)
		assert.InDelta(t, 4.0, l.DeltaQty(domain.StagePromo), 1e-9)
		require.NoError(t, l.Reconcile())
	})

	t.Run("scope mismatch leaves line untouched", func(t *testing.T) {
		scenario := scenario
		scenario.AdjustmentRules = []domain.AdjustmentRule{
			{Label: "other region", Category: domain.RuleRegional, Regions: []string{"NE"}, Multiplier: 1.15},
			{Label: "other store", Category: domain.RuleAdhocIncrease, Stores: []int{999}, Multiplier: 1.20},
			{Label: "past window", Category: domain.RulePromo, StartDate: mustDate("2025-01-01"), EndDate: mustDate("2025-01-07"), Multiplier: 1.30},
		}
		l := testLine(t,
			[4]*float64{f(40), f(40), f(40), f(40)},
			[4]*float64{f(48), f(48), f(48), f(48)})
		EstimateBaseline(l, scenario)

		ApplyAdjustmentRules(l, scenario)

		assert.InDelta(t, 40.0, l.ForecastAverage, 1e-9)
		assert.Empty(t, l.Ledger)
	})

	t.Run("cannibalism rule reduces under adhoc_decrease", func(t *testing.T) {
		scenario := scenario
		scenario.AdjustmentRules = []domain.AdjustmentRule{{
			Label:      "platter cannibalism",
			Category:   domain.RuleAdhocDecrease,
			Regions:    []string{"BA"},
			Multiplier: 0.88,
		}}
		l := testLine(t,
			[4]*float64{f(50), f(50), f(50), f(50)},
			[4]*float64{f(60), f(60), f(60), f(60)})
		EstimateBaseline(l, scenario)

		ApplyAdjustmentRules(l, scenario)

		assert.InDelta(t, 44.0, l.ForecastAverage, 1e-9)
		assert.InDelta(t, -6.0, l.DeltaQty(domain.StageAdhocDecrease), 1e-9)
	})

	t.Run("stacked rules in one category share an entry", func(t *testing.T) {
		scenario := scenario
		scenario.AdjustmentRules = []domain.AdjustmentRule{
			{Label: "promo a", Category: domain.RulePromo, Multiplier: 1.10},
			{Label: "promo b", Category: domain.RulePromo, Multiplier: 1.05},
		}
		l := testLine(t,
			[4]*float64{f(40), f(40), f(40), f(40)},
			[4]*float64{f(48), f(48), f(48), f(48)})
		EstimateBaseline(l, scenario)

		ApplyAdjustmentRules(l, scenario)

		assert.InDelta(t, 46.2, l.ForecastAverage, 1e-9)
		assert.Len(t, l.Ledger, 1)
		entry, _ := l.Delta(domain.StagePromo)
		assert.Equal(t, 2, entry.Count)
		require.NoError(t, l.Reconcile())
	})
}

func mustDate(s string) domain.Date {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return domain.Date{Time: t}
}

func TestApplySafetyStock(t *testing.T) {
	scenario := domain.DefaultScenario()

	build := func(t *testing.T) *domain.ForecastLine {
		// declining pattern with enough volatility to warrant a buffer
		l := testLine(t,
			[4]*float64{f(20), f(36), f(40), f(44)},
			[4]*float64{f(30), f(40), f(42), f(48)})
		EstimateBaseline(l, scenario)
		ApplyCoverAndRounding(l, scenario)
		return l
	}

	t.Run("declining hero item gains one case", func(t *testing.T) {
		l := build(t)
		require.Positive(t, SafetyStock(l.SalesVolatility, scenario.KFactor))
		before := l.FinalQuantity

		ApplySafetyStock(l, scenario)

		assert.InDelta(t, before+float64(l.CasePackSize), l.FinalQuantity, 1e-9)
		assert.InDelta(t, 6.0, l.DeltaQty(domain.StageSafetyStock), 1e-9)
		require.NoError(t, l.Reconcile())
	})

	t.Run("non-hero item is excluded", func(t *testing.T) {
		excluded := scenario
		excluded.NonHeroItems = []int{1713314}
		l := build(t)
		before := l.FinalQuantity

		ApplySafetyStock(l, excluded)

		assert.Equal(t, before, l.FinalQuantity)
	})

	t.Run("growing item gets no buffer", func(t *testing.T) {
		l := testLine(t,
			[4]*float64{f(44), f(40), f(36), f(20)},
			[4]*float64{f(48), f(42), f(40), f(30)})
		EstimateBaseline(l, scenario)
		ApplyCoverAndRounding(l, scenario)
		before := l.FinalQuantity

		ApplySafetyStock(l, scenario)

		assert.Equal(t, before, l.FinalQuantity)
	})
}
