package forecast

import (
	"fmt"
	"math"

	"github.com/harborfresh/order-forecast/internal/domain"
)

// SafetyStock converts sales volatility into a buffer quantity using the
// scenario's service-level factor.
func SafetyStock(volatility, kFactor float64) int {
	return int(math.Floor(kFactor * volatility))
}

// ApplySafetyStock adds exactly one case for a declining hero item whose
// rounding headroom does not already cover the computed safety stock.
func ApplySafetyStock(l *domain.ForecastLine, s domain.ScenarioParameters) {
	if s.IsNonHero(l.ItemNo) {
		return
	}
	stock := SafetyStock(l.SalesVolatility, s.KFactor)
	if stock <= 0 {
		return
	}
	w1, w4 := l.Sold(0), l.Sold(3)
	if w1 >= l.AverageSold || w1 >= w4 {
		return
	}
	if l.DeltaQty(domain.StageRounding) >= float64(stock) {
		return
	}
	l.Apply(domain.StageSafetyStock, float64(l.CasePackSize),
		fmt.Sprintf("declining hero item, safety stock %d above rounding headroom", stock))
}
