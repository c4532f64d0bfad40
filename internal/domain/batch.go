package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ForecastBatch is the unit of work: every line for one region and
// forecast date, evaluated under one scenario. Cross-line passes (store
// consistency, weather reduction) operate within a batch only.
type ForecastBatch struct {
	BatchID      uuid.UUID
	RegionCode   string
	DateForecast time.Time
	Scenario     ScenarioParameters
	Lines        []*ForecastLine
}

// NewForecastBatch stamps a fresh batch id and fills per-line defaults
// from the scenario.
func NewForecastBatch(region string, date time.Time, scenario ScenarioParameters, lines []*ForecastLine) (*ForecastBatch, error) {
	if region == "" {
		return nil, fmt.Errorf("batch: missing region code")
	}
	if date.IsZero() {
		return nil, fmt.Errorf("batch: missing forecast date")
	}
	for _, l := range lines {
		if l.RegionCode != region {
			return nil, fmt.Errorf("batch %s: line %d/%d has region %s", region, l.StoreNo, l.ItemNo, l.RegionCode)
		}
		if !l.DateForecast.Equal(date) {
			return nil, fmt.Errorf("batch %s: line %d/%d has date %s", region, l.StoreNo, l.ItemNo, l.DateForecast.Format("2006-01-02"))
		}
		if l.CasePackSize <= 0 {
			l.CasePackSize = scenario.CaseSize
		}
	}
	return &ForecastBatch{
		BatchID:      uuid.New(),
		RegionCode:   region,
		DateForecast: date,
		Scenario:     scenario,
		Lines:        lines,
	}, nil
}

// StoreGroups partitions the batch's lines by store, preserving line
// order within each store. The store consistency and weather passes each
// operate on one group at a time.
func (b *ForecastBatch) StoreGroups() map[int][]*ForecastLine {
	groups := make(map[int][]*ForecastLine)
	for _, l := range b.Lines {
		groups[l.StoreNo] = append(groups[l.StoreNo], l)
	}
	return groups
}

// TotalQuantity sums the final quantity over all lines.
func (b *ForecastBatch) TotalQuantity() float64 {
	var total float64
	for _, l := range b.Lines {
		total += l.FinalQuantity
	}
	return total
}
