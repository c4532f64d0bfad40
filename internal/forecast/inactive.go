package forecast

import (
	"github.com/harborfresh/order-forecast/internal/domain"
)

// ApplyInactiveStoreOverride zeroes the order for stores marked inactive.
// It is terminal and wins over every prior stage. The movement is recorded
// as its own ledger entry rather than wiping the ledger, so the waterfall
// still reconciles and the audit trail survives.
func ApplyInactiveStoreOverride(l *domain.ForecastLine, s domain.ScenarioParameters) {
	if !s.IsInactive(l.StoreNo) {
		return
	}
	if l.FinalQuantity == 0 {
		return
	}
	l.Apply(domain.StageInactiveStore, -l.FinalQuantity, "store inactive")
}
