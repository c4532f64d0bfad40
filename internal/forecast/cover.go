package forecast

import (
	"fmt"
	"math"

	"github.com/harborfresh/order-forecast/internal/domain"
)

// ApplyCoverAndRounding adds the demand-variability buffer and snaps the
// quantity to a case-pack multiple. Ledger entries are written with replace
// semantics, so re-running the stage on its own output is a no-op.
func ApplyCoverAndRounding(l *domain.ForecastLine, s domain.ScenarioParameters) {
	baseCover, soldOutCover := s.CoverFor(l.RegionCode, l.DateForecast)

	soldOut := l.SoldOutLastWeek()
	coverPct := baseCover
	coverReason := "default"
	if soldOut {
		// An exact sell-through means demand outran supply, so a larger
		// buffer applies.
		coverPct = soldOutCover
		coverReason = "sold_out"
	}

	coverQty := l.ForecastAverage * coverPct
	qtyWithCover := l.ForecastAverage + coverQty

	caseSize := float64(l.CasePackSize)
	rounded := math.Ceil(qtyWithCover/caseSize) * caseSize
	roundUp := rounded - qtyWithCover

	roundFinal := roundUp
	roundReason := "up"
	w1Shrink := l.Weeks[0].ShrinkRatio
	mayRoundDown := w1Shrink != nil && !soldOut && !s.RoundUpOnly(l.StoreNo, l.RegionCode)
	if mayRoundDown {
		switch {
		case roundUp >= caseSize-1:
			// Rounding up would add almost a full case.
			roundFinal = -(caseSize - roundUp)
			roundReason = "down"
		case roundUp >= caseSize-2 && *w1Shrink >= s.RoundDownShrinkThreshold+0.03:
			roundFinal = -(caseSize - roundUp)
			roundReason = "down"
		}
	}

	// Never let rounding push the order below the pre-cover estimate.
	if qtyWithCover+roundFinal < l.ForecastAverage {
		roundFinal = roundUp
		roundReason = "up"
	}

	l.SetDelta(domain.StageBaseCover, coverQty, coverReason)
	l.SetDelta(domain.StageRounding, roundFinal, roundReason)
}

// ApplyCoverGuardrail pulls an over-covered order back toward the target
// cover level. It only fires when last week's shrink was exactly zero; any
// observed shrink means the extra cover was not wasted.
func ApplyCoverGuardrail(l *domain.ForecastLine, s domain.ScenarioParameters) {
	if l.ForecastAverage <= 0 {
		return
	}
	w1Shrink := l.Weeks[0].ShrinkRatio
	if w1Shrink == nil || *w1Shrink != 0 {
		return
	}
	if l.SoldOutLastWeek() {
		return
	}

	_, soldOutCover := s.CoverFor(l.RegionCode, l.DateForecast)
	caseSize := float64(l.CasePackSize)
	effectiveCover := l.FinalQuantity / l.ForecastAverage
	if effectiveCover <= 1+soldOutCover || l.FinalQuantity/caseSize <= 2 {
		return
	}

	target := math.Ceil(l.ForecastAverage*(1+soldOutCover)/caseSize) * caseSize
	if target >= l.FinalQuantity {
		return
	}
	l.Apply(domain.StageCoverGuardrail, target-l.FinalQuantity,
		fmt.Sprintf("effective cover %.2f above target %.2f with zero shrink", effectiveCover, 1+soldOutCover))
}
