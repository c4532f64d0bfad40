package domain

import (
	"fmt"
	"math"
)

// ReconcileEpsilon is the tolerance for the waterfall invariant. Quantities
// are float64 unit counts; anything beyond float noise is a real defect.
const ReconcileEpsilon = 1e-6

// Stage identifies a ledger-producing pipeline stage. The values double as
// export column prefixes and are frozen by the downstream schema.
type Stage string

const (
	StageDeclineAdj     Stage = "decline_adj"
	StageHighShrinkAdj  Stage = "high_shrink_adj"
	StagePromo          Stage = "promo"
	StageRegional       Stage = "regional"
	StageAdhocIncrease  Stage = "adhoc_increase"
	StageAdhocDecrease  Stage = "adhoc_decrease"
	StageBaseCover      Stage = "base_cover"
	StageRounding       Stage = "rounding"
	StageSafetyStock    Stage = "safety_stock"
	StageCoverGuardrail Stage = "cover_guardrail"
	StageStoreGrowth    Stage = "store_level_growth"
	StageStoreDecline   Stage = "store_level_decline"
	StageWeather        Stage = "weather_adjustment"
	StageInactiveStore  Stage = "inactive_store"
)

// StageDelta is one ledger entry: a signed quantity change, how many times
// the stage touched the line, and a reason code for the audit trail.
type StageDelta struct {
	Stage  Stage
	Qty    float64
	Count  int
	Reason string
}

// Apply records a stage delta and moves the running quantity by the same
// amount. This is the only sanctioned way for a stage to change a line's
// quantity; the two updates are inseparable so the waterfall always closes.
func (l *ForecastLine) Apply(stage Stage, qty float64, reason string) {
	if l.sealed {
		panic(fmt.Sprintf("ledger: stage %s applied to sealed line %d/%d", stage, l.StoreNo, l.ItemNo))
	}
	l.Ledger = append(l.Ledger, StageDelta{Stage: stage, Qty: qty, Count: 1, Reason: reason})
	l.FinalQuantity += qty
}

// Accumulate folds an additional delta into the existing entry for the
// stage, creating it on first use. The batch passes reduce one case at a
// time across many iterations but must surface a single ledger entry per
// line per direction.
func (l *ForecastLine) Accumulate(stage Stage, qty float64, reason string) {
	if l.sealed {
		panic(fmt.Sprintf("ledger: stage %s applied to sealed line %d/%d", stage, l.StoreNo, l.ItemNo))
	}
	for i := range l.Ledger {
		if l.Ledger[i].Stage == stage {
			l.Ledger[i].Qty += qty
			l.Ledger[i].Count++
			l.Ledger[i].Reason = reason
			l.FinalQuantity += qty
			return
		}
	}
	l.Apply(stage, qty, reason)
}

// SetDelta records a stage delta, replacing any prior entry for the stage
// and adjusting the running quantity by the difference. The Cover & Rounding
// Allocator uses this so re-running it on its own output is a no-op.
func (l *ForecastLine) SetDelta(stage Stage, qty float64, reason string) {
	if l.sealed {
		panic(fmt.Sprintf("ledger: stage %s applied to sealed line %d/%d", stage, l.StoreNo, l.ItemNo))
	}
	for i := range l.Ledger {
		if l.Ledger[i].Stage == stage {
			l.FinalQuantity += qty - l.Ledger[i].Qty
			l.Ledger[i].Qty = qty
			l.Ledger[i].Reason = reason
			return
		}
	}
	l.Apply(stage, qty, reason)
}

// Delta returns the entry for a stage, if any.
func (l *ForecastLine) Delta(stage Stage) (StageDelta, bool) {
	for _, d := range l.Ledger {
		if d.Stage == stage {
			return d, true
		}
	}
	return StageDelta{}, false
}

// DeltaQty returns the signed quantity recorded for a stage, zero if the
// stage never touched the line.
func (l *ForecastLine) DeltaQty(stage Stage) float64 {
	d, _ := l.Delta(stage)
	return d.Qty
}

// LedgerSum returns the sum of all recorded stage deltas.
func (l *ForecastLine) LedgerSum() float64 {
	var sum float64
	for _, d := range l.Ledger {
		sum += d.Qty
	}
	return sum
}

// Reconcile verifies the waterfall invariant for the line.
func (l *ForecastLine) Reconcile() error {
	diff := l.FinalQuantity - (l.BaselineQty + l.LedgerSum())
	if math.Abs(diff) > ReconcileEpsilon {
		return fmt.Errorf("line %d/%d %s: final %.6f != baseline %.6f + deltas %.6f (off by %.6f)",
			l.StoreNo, l.ItemNo, l.DateForecast.Format("2006-01-02"),
			l.FinalQuantity, l.BaselineQty, l.LedgerSum(), diff)
	}
	return nil
}

// Seal freezes the line after the terminal stage. Any further Apply panics.
func (l *ForecastLine) Seal() { l.sealed = true }

// Sealed reports whether the line has been frozen.
func (l *ForecastLine) Sealed() bool { return l.sealed }
