package forecast

import (
	"fmt"
	"math"
	"sort"

	"github.com/harborfresh/order-forecast/internal/domain"
)

// storeShrinkRatio is the aggregate forecast shrink across a store's
// lines: the share of the total order not backed by last week's sales.
func storeShrinkRatio(lines []*domain.ForecastLine) float64 {
	var totalForecast, totalSold float64
	for _, l := range lines {
		totalForecast += l.FinalQuantity
		totalSold += l.Sold(0)
	}
	if totalForecast <= 0 {
		return 0
	}
	return (totalForecast - totalSold) / totalForecast
}

// storeMaxWeeklySold is the highest single-week sold total across the
// store's lines over the four-week history.
func storeMaxWeeklySold(lines []*domain.ForecastLine) float64 {
	var weekTotals [4]float64
	for _, l := range lines {
		for i := range weekTotals {
			weekTotals[i] += l.Sold(i)
		}
	}
	maxTotal := weekTotals[0]
	for _, t := range weekTotals[1:] {
		if t > maxTotal {
			maxTotal = t
		}
	}
	return maxTotal
}

// lineShrinkHeadroom is the larger of the line's forecast shrink measured
// against last week's sales and against its baseline.
func lineShrinkHeadroom(l *domain.ForecastLine) float64 {
	if l.FinalQuantity <= 0 {
		return 0
	}
	vsSold := (l.FinalQuantity - l.Sold(0)) / l.FinalQuantity
	vsBaseline := (l.FinalQuantity - l.BaselineQty) / l.FinalQuantity
	if vsSold > vsBaseline {
		return vsSold
	}
	return vsBaseline
}

// ApplyStoreConsistencyPass bounds a single store's aggregate shrink and
// repairs degenerate coverage, one store group per call. Reductions and
// top-ups are mutually exclusive per line; a reduced line is never grown
// in the same run.
func ApplyStoreConsistencyPass(lines []*domain.ForecastLine, s domain.ScenarioParameters) {
	if len(lines) == 0 {
		return
	}
	reduceStoreShrink(lines, s)
	topUpCoverage(lines, s)
}

func reduceStoreShrink(lines []*domain.ForecastLine, s domain.ScenarioParameters) {
	shrink := storeShrinkRatio(lines)
	var totalForecast float64
	for _, l := range lines {
		totalForecast += l.FinalQuantity
	}

	historicalCap := math.Inf(1)
	if maxWeek := storeMaxWeeklySold(lines); maxWeek > 0 {
		historicalCap = maxWeek * (1 + s.StoreHistoricalThreshold)
	}

	// One case per iteration from the highest-priority line, until both
	// the shrink bound and the historical cap hold or no line can give.
	const maxIterations = 200
	for iter := 0; iter < maxIterations; iter++ {
		if shrink <= s.StoreShrinkThreshold && totalForecast <= historicalCap {
			return
		}

		type candidate struct {
			line          *domain.ForecastLine
			exceedsMax    bool
			vsHistorical  float64
			coverage      float64
			shrinkMargin  float64
		}
		var candidates []candidate
		for _, l := range lines {
			caseSize := float64(l.CasePackSize)
			if l.SoldOutLastWeek() {
				continue
			}
			if l.FinalQuantity/caseSize < 2 {
				continue
			}
			if l.FinalQuantity-caseSize < l.BaselineQty {
				continue
			}
			c := candidate{line: l, shrinkMargin: lineShrinkHeadroom(l)}
			if itemMax := l.MaxSold4W(); itemMax > 0 {
				c.vsHistorical = l.FinalQuantity / itemMax
				c.exceedsMax = c.vsHistorical > 1
			} else {
				c.vsHistorical = 1
			}
			if l.BaselineQty > 0 {
				c.coverage = l.FinalQuantity / l.BaselineQty
			} else {
				c.coverage = 1
			}
			candidates = append(candidates, c)
		}
		if len(candidates) == 0 {
			return
		}

		// Lines ordered above their own history go first, then the most
		// over-covered, then the widest shrink margin.
		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if a.exceedsMax != b.exceedsMax {
				return a.exceedsMax
			}
			if a.vsHistorical != b.vsHistorical {
				return a.vsHistorical > b.vsHistorical
			}
			if a.coverage != b.coverage {
				return a.coverage > b.coverage
			}
			if a.shrinkMargin != b.shrinkMargin {
				return a.shrinkMargin > b.shrinkMargin
			}
			return a.line.ItemNo < b.line.ItemNo
		})

		top := candidates[0].line
		caseSize := float64(top.CasePackSize)
		top.Accumulate(domain.StageStoreDecline, -caseSize,
			fmt.Sprintf("store shrink %.1f%% above %.1f%% bound", shrink*100, s.StoreShrinkThreshold*100))
		top.StoreLevelAdjusted = true

		totalForecast -= caseSize
		shrink = storeShrinkRatio(lines)
	}
}

func topUpCoverage(lines []*domain.ForecastLine, s domain.ScenarioParameters) {
	for _, l := range lines {
		if l.BaselineQty <= 0 {
			continue
		}
		if l.FinalQuantity/l.BaselineQty >= s.StoreMinCoverage {
			continue
		}
		// Sold-out lines already got the larger cover buffer; no double bump.
		if l.SoldOutLastWeek() {
			continue
		}
		// Growth and decline are mutually exclusive within one run.
		if _, reduced := l.Delta(domain.StageStoreDecline); reduced {
			continue
		}
		caseSize := float64(l.CasePackSize)
		bumped := l.FinalQuantity + caseSize
		if bumped/l.BaselineQty > 1+s.StoreMaxCoverageBump {
			continue
		}
		if itemMax := l.MaxSold4W(); itemMax > 0 && bumped > itemMax {
			continue
		}
		l.Accumulate(domain.StageStoreGrowth, caseSize,
			fmt.Sprintf("coverage below %.0f%% floor", s.StoreMinCoverage*100))
		l.StoreLevelAdjusted = true
	}
}
