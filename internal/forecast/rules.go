package forecast

import (
	"github.com/harborfresh/order-forecast/internal/domain"
)

// ApplyAdjustmentRules evaluates the scenario's declarative rule table
// against the line. Each matching rule multiplies the working estimate and
// records the change under the rule's category stage; rules in the same
// category accumulate into one entry.
func ApplyAdjustmentRules(l *domain.ForecastLine, s domain.ScenarioParameters) {
	for _, r := range s.AdjustmentRules {
		if !r.Matches(l) {
			continue
		}
		adjusted := l.ForecastAverage * r.Multiplier
		delta := adjusted - l.ForecastAverage
		if delta == 0 {
			continue
		}
		l.ForecastAverage = adjusted
		l.Accumulate(r.Category.Stage(), delta, r.Label)
	}
}
