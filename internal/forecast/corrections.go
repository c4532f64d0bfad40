package forecast

import (
	"fmt"

	"github.com/harborfresh/order-forecast/internal/domain"
)

// ApplyDeclineAdjustment reverts the estimate to older-week evidence when
// a week-over-week drop is corroborated at the store level. A drop seen at
// both the item and its store is treated as a real shift rather than
// noise, so the forecast must not chase the dip.
func ApplyDeclineAdjustment(l *domain.ForecastLine, s domain.ScenarioParameters) {
	w1, w2 := l.Sold(0), l.Sold(1)
	if w1 == 0 || w2 <= 0 {
		return
	}
	itemDecline := (w2 - w1) / w2

	var storeDecline float64
	if sw2 := l.StoreSold(1); sw2 > 0 {
		storeDecline = (sw2 - l.StoreSold(0)) / sw2
	}

	if itemDecline < s.DeclineThreshold || storeDecline < s.DeclineThreshold {
		return
	}

	candidate := l.Sold(1)*0.5 + l.Sold(2)*0.4 + l.Sold(3)*0.1
	corrected := max3(l.ForecastAverage, candidate, l.EMA)
	if corrected <= l.ForecastAverage {
		return
	}

	delta := corrected - l.ForecastAverage
	l.ForecastAverage = corrected
	l.Apply(domain.StageDeclineAdj, delta,
		fmt.Sprintf("item decline %.1f%%, store decline %.1f%%", itemDecline*100, storeDecline*100))
}

// ApplyHighShrinkAdjustment forces a conservative estimate after two
// consecutive high-shrink weeks, discarding any upward correction from the
// decline adjustment. Consecutive high shrink indicates systematic
// over-ordering.
func ApplyHighShrinkAdjustment(l *domain.ForecastLine, s domain.ScenarioParameters) {
	w1Shrink, w2Shrink := l.Weeks[0].ShrinkRatio, l.Weeks[1].ShrinkRatio
	if w1Shrink == nil || w2Shrink == nil {
		return
	}
	if *w1Shrink < s.HighShrinkThreshold || *w2Shrink < s.HighShrinkThreshold {
		return
	}

	corrected := l.Sold(0)
	if l.EMA > corrected {
		corrected = l.EMA
	}
	delta := corrected - l.ForecastAverage
	l.ForecastAverage = corrected
	l.Apply(domain.StageHighShrinkAdj, delta,
		fmt.Sprintf("shrink %.1f%% and %.1f%% in consecutive weeks", *w1Shrink*100, *w2Shrink*100))
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
