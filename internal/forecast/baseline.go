// Package forecast implements the pipeline stages that turn a four-week
// sales and shrink history into a final order quantity. Per-line stages are
// pure functions of the line and scenario; the store consistency and
// weather passes operate on whole store groups within a batch.
package forecast

import (
	"math"

	"github.com/harborfresh/order-forecast/internal/domain"
)

// SalesVelocity is the slope of a least-squares fit of sold quantity
// against week index (-3..0, most recent week last). Zero when fewer than
// two weeks have data.
func SalesVelocity(weeks [4]domain.Week) float64 {
	var n, sumX, sumY, sumXY, sumXX float64
	for i, w := range weeks {
		if w.Sold == nil {
			continue
		}
		// weeks[0] is W1 at x=0, weeks[3] is W4 at x=-3.
		x := float64(-i)
		y := *w.Sold
		n++
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	if n < 2 {
		return 0
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// AverageSold is the mean of weeks with positive sales. Zero-sold weeks
// are excluded so stockout weeks do not dilute the estimate.
func AverageSold(weeks [4]domain.Week) float64 {
	var sum float64
	var n int
	for _, w := range weeks {
		if s := domain.Float(w.Sold); s > 0 {
			sum += s
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// WeightedEMA is the weighted average of sold quantities, renormalized
// over non-null weeks only.
func WeightedEMA(weeks [4]domain.Week, weights [4]float64) float64 {
	var sum, weightSum float64
	for i, w := range weeks {
		if w.Sold == nil {
			continue
		}
		sum += *w.Sold * weights[i]
		weightSum += weights[i]
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

// SalesVolatility is the population standard deviation of sold
// quantities over non-null weeks. Zero when fewer than two weeks have data.
func SalesVolatility(weeks [4]domain.Week) float64 {
	var sum float64
	var n int
	for _, w := range weeks {
		if w.Sold != nil {
			sum += *w.Sold
			n++
		}
	}
	if n < 2 {
		return 0
	}
	mean := sum / float64(n)
	var sq float64
	for _, w := range weeks {
		if w.Sold != nil {
			d := *w.Sold - mean
			sq += d * d
		}
	}
	return math.Sqrt(sq / float64(n))
}

// EstimateBaseline writes the derived metrics and the baseline quantity to
// the line. The baseline is the waterfall's starting point, so no ledger
// entry is recorded here.
func EstimateBaseline(l *domain.ForecastLine, s domain.ScenarioParameters) {
	l.SalesVelocity = SalesVelocity(l.Weeks)
	l.AverageSold = AverageSold(l.Weeks)
	l.EMA = WeightedEMA(l.Weeks, s.WeekWeights)
	l.SalesVolatility = SalesVolatility(l.Weeks)

	w1Sold := l.Sold(0)

	// Last-week sales unless EMA says the recent week undershoots trend.
	if w1Sold >= l.EMA {
		l.BaselineQty = w1Sold
		l.BaselineSource = domain.BaselineLWSales
	} else {
		l.BaselineQty = l.EMA
		l.BaselineSource = domain.BaselineEMA
	}

	// No delivery last week means w1_sold is not a demand signal.
	if l.Weeks[0].Shipped == nil || *l.Weeks[0].Shipped == 0 {
		if l.AverageSold >= l.EMA {
			l.BaselineQty = l.AverageSold
			l.BaselineSource = domain.BaselineAverage
		} else {
			l.BaselineQty = l.EMA
			l.BaselineSource = domain.BaselineEMA
		}
	}

	// Two silent weeks floors the estimate at one unit.
	if w1Sold == 0 && l.Sold(1) == 0 {
		if l.EMA >= 1 {
			l.BaselineQty = l.EMA
			l.BaselineSource = domain.BaselineEMA
		} else {
			l.BaselineQty = 1
			l.BaselineSource = domain.BaselineMinimumCase
		}
	}

	l.ForecastAverage = l.BaselineQty
	l.FinalQuantity = l.BaselineQty
}
