package forecast

import (
	"fmt"
	"sort"

	"github.com/harborfresh/order-forecast/internal/domain"
)

// weatherTargetPct maps a severity score to the share of the store's
// pre-weather total to shed, capped by the scenario.
func weatherTargetPct(score, maxPct float64) float64 {
	var pct float64
	switch {
	case score >= 8:
		pct = 0.30
	case score >= 6:
		pct = 0.15
	case score >= 4:
		pct = 0.08
	default:
		pct = 0.03
	}
	if pct > maxPct {
		pct = maxPct
	}
	return pct
}

// ApplyWeatherReductionPass sheds store volume ahead of severe weather,
// one case at a time from the line with the most shrink headroom. The
// candidate order is recomputed after every removal because a reduction
// changes the line's own headroom. Lines never drop below their baseline.
func ApplyWeatherReductionPass(lines []*domain.ForecastLine, s domain.ScenarioParameters, obs domain.WeatherObservation) {
	if len(lines) == 0 {
		return
	}

	for _, l := range lines {
		l.WeatherSeverityScore = obs.SeverityScore
		l.WeatherSeverityCategory = obs.SeverityCategory
	}

	if obs.SeverityScore < s.WeatherSeverityThreshold {
		return
	}

	var totalForecast float64
	for _, l := range lines {
		totalForecast += l.FinalQuantity
	}
	if totalForecast <= 0 {
		return
	}

	targetPct := weatherTargetPct(obs.SeverityScore, s.WeatherMaxReductionPct)
	target := totalForecast * targetPct
	reason := fmt.Sprintf("severity %.1f (%s), target reduction %.0f%%",
		obs.SeverityScore, obs.SeverityCategory, targetPct*100)

	var removed float64
	for removed < target {
		top := pickReducible(lines)
		if top == nil {
			return
		}
		caseSize := float64(top.CasePackSize)
		top.Accumulate(domain.StageWeather, -caseSize, reason)
		top.WeatherAdjusted = true
		removed += caseSize
	}
}

// pickReducible returns the line with the highest shrink headroom that can
// still give up a full case without crossing its floor, or nil.
func pickReducible(lines []*domain.ForecastLine) *domain.ForecastLine {
	var eligible []*domain.ForecastLine
	for _, l := range lines {
		floor := l.BaselineQty
		if floor < 0 {
			floor = 0
		}
		if l.FinalQuantity-float64(l.CasePackSize) < floor {
			continue
		}
		eligible = append(eligible, l)
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.Slice(eligible, func(i, j int) bool {
		hi, hj := lineShrinkHeadroom(eligible[i]), lineShrinkHeadroom(eligible[j])
		if hi != hj {
			return hi > hj
		}
		return eligible[i].ItemNo < eligible[j].ItemNo
	})
	return eligible[0]
}
