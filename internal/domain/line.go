package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Week holds one week of item-level history. Nil fields mean the warehouse
// had no record for that week.
type Week struct {
	Shipped     *float64
	Sold        *float64
	ShrinkRatio *float64
}

// StoreWeek holds one week of store-level aggregates across all items.
type StoreWeek struct {
	Received    *float64
	Sold        *float64
	ShrinkRatio *float64
}

// RawRecord represents an unprocessed message from the source topic.
type RawRecord struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// InputRecord is the flat JSON shape published by the data-acquisition
// collaborator, one message per (store, item, forecast date). Weekly fields
// are nullable; W1 is the most recent completed week.
type InputRecord struct {
	StoreNo      int    `json:"store_no"`
	ItemNo       int    `json:"item_no"`
	RegionCode   string `json:"region_code"`
	DateForecast string `json:"date_forecast"` // YYYY-MM-DD
	CasePackSize int    `json:"case_pack_size"`

	W1Shipped *float64 `json:"w1_shipped"`
	W1Sold    *float64 `json:"w1_sold"`
	W1Shrink  *float64 `json:"w1_shrink_p"`
	W2Shipped *float64 `json:"w2_shipped"`
	W2Sold    *float64 `json:"w2_sold"`
	W2Shrink  *float64 `json:"w2_shrink_p"`
	W3Shipped *float64 `json:"w3_shipped"`
	W3Sold    *float64 `json:"w3_sold"`
	W3Shrink  *float64 `json:"w3_shrink_p"`
	W4Shipped *float64 `json:"w4_shipped"`
	W4Sold    *float64 `json:"w4_sold"`
	W4Shrink  *float64 `json:"w4_shrink_p"`

	StoreW1Received *float64 `json:"store_w1_received"`
	StoreW1Sold     *float64 `json:"store_w1_sold"`
	StoreW1Shrink   *float64 `json:"store_w1_shrink_p"`
	StoreW2Received *float64 `json:"store_w2_received"`
	StoreW2Sold     *float64 `json:"store_w2_sold"`
	StoreW2Shrink   *float64 `json:"store_w2_shrink_p"`
	StoreW3Received *float64 `json:"store_w3_received"`
	StoreW3Sold     *float64 `json:"store_w3_sold"`
	StoreW3Shrink   *float64 `json:"store_w3_shrink_p"`
	StoreW4Received *float64 `json:"store_w4_received"`
	StoreW4Sold     *float64 `json:"store_w4_sold"`
	StoreW4Shrink   *float64 `json:"store_w4_shrink_p"`

	UnitCost  decimal.Decimal `json:"unit_cost"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ParseRawRecord deserializes a RawRecord's value into an InputRecord.
func ParseRawRecord(raw RawRecord) (InputRecord, error) {
	var rec InputRecord
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return InputRecord{}, fmt.Errorf("parse input record: %w", err)
	}
	return rec, nil
}

// BaselineSource tags which branch of the Baseline Estimator produced the
// waterfall's starting quantity.
type BaselineSource string

const (
	BaselineLWSales     BaselineSource = "lw_sales"
	BaselineEMA         BaselineSource = "ema"
	BaselineAverage     BaselineSource = "average"
	BaselineMinimumCase BaselineSource = "minimum_case"
)

// ForecastLine is one (store, item, date) unit of work. It is created from an
// InputRecord with only identifiers and raw history populated, mutated in
// place by each pipeline stage in fixed order, and sealed once the Weather
// Reduction Pass completes.
type ForecastLine struct {
	StoreNo      int
	ItemNo       int
	RegionCode   string
	DateForecast time.Time
	CasePackSize int

	Weeks      [4]Week      // index 0 = W1 (most recent)
	StoreWeeks [4]StoreWeek // same indexing at store level

	UnitCost  decimal.Decimal
	UnitPrice decimal.Decimal

	// Derived by the Baseline Estimator.
	SalesVelocity   float64
	SalesVolatility float64
	AverageSold     float64
	EMA             float64
	BaselineSource  BaselineSource
	BaselineQty     float64

	// ForecastAverage is the working demand estimate after corrections and
	// adjustment rules, before cover. The cover guardrail measures effective
	// coverage against it.
	ForecastAverage float64

	// FinalQuantity is the running order quantity; stages move it only
	// through the ledger.
	FinalQuantity float64
	Ledger        []StageDelta

	// Reporting fields copied by batch passes.
	StoreLevelAdjusted      bool
	WeatherAdjusted         bool
	WeatherSeverityScore    float64
	WeatherSeverityCategory string

	sealed bool
}

// NewForecastLine builds a line from an input record. Only identifiers are
// validated here; scenario parameters are checked at batch construction.
func NewForecastLine(rec InputRecord) (*ForecastLine, error) {
	if rec.StoreNo <= 0 {
		return nil, fmt.Errorf("input record: invalid store_no %d", rec.StoreNo)
	}
	if rec.ItemNo <= 0 {
		return nil, fmt.Errorf("input record: invalid item_no %d", rec.ItemNo)
	}
	if rec.RegionCode == "" {
		return nil, fmt.Errorf("input record: missing region_code")
	}
	date, err := time.Parse("2006-01-02", rec.DateForecast)
	if err != nil {
		return nil, fmt.Errorf("input record: bad date_forecast %q: %w", rec.DateForecast, err)
	}

	return &ForecastLine{
		StoreNo:      rec.StoreNo,
		ItemNo:       rec.ItemNo,
		RegionCode:   rec.RegionCode,
		DateForecast: date,
		CasePackSize: rec.CasePackSize,
		Weeks: [4]Week{
			{Shipped: rec.W1Shipped, Sold: rec.W1Sold, ShrinkRatio: rec.W1Shrink},
			{Shipped: rec.W2Shipped, Sold: rec.W2Sold, ShrinkRatio: rec.W2Shrink},
			{Shipped: rec.W3Shipped, Sold: rec.W3Sold, ShrinkRatio: rec.W3Shrink},
			{Shipped: rec.W4Shipped, Sold: rec.W4Sold, ShrinkRatio: rec.W4Shrink},
		},
		StoreWeeks: [4]StoreWeek{
			{Received: rec.StoreW1Received, Sold: rec.StoreW1Sold, ShrinkRatio: rec.StoreW1Shrink},
			{Received: rec.StoreW2Received, Sold: rec.StoreW2Sold, ShrinkRatio: rec.StoreW2Shrink},
			{Received: rec.StoreW3Received, Sold: rec.StoreW3Sold, ShrinkRatio: rec.StoreW3Shrink},
			{Received: rec.StoreW4Received, Sold: rec.StoreW4Sold, ShrinkRatio: rec.StoreW4Shrink},
		},
		UnitCost:  rec.UnitCost,
		UnitPrice: rec.UnitPrice,
	}, nil
}

// Float returns a nullable value defaulted to zero. Stages use it so nulls
// never reach arithmetic.
func Float(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Sold returns the sold quantity for week i (0 = W1), defaulted to zero.
func (l *ForecastLine) Sold(i int) float64 { return Float(l.Weeks[i].Sold) }

// Shipped returns the shipped quantity for week i, defaulted to zero.
func (l *ForecastLine) Shipped(i int) float64 { return Float(l.Weeks[i].Shipped) }

// StoreSold returns the store-level sold total for week i, defaulted to zero.
func (l *ForecastLine) StoreSold(i int) float64 { return Float(l.StoreWeeks[i].Sold) }

// SoldOutLastWeek reports whether W1 shipped exactly equals W1 sold. A
// partial sell-through does not count, and either value missing means the
// signal is unusable.
func (l *ForecastLine) SoldOutLastWeek() bool {
	w := l.Weeks[0]
	return w.Shipped != nil && w.Sold != nil && *w.Shipped == *w.Sold
}

// MaxSold4W returns the highest weekly sold quantity in the window.
func (l *ForecastLine) MaxSold4W() float64 {
	var m float64
	for i := range l.Weeks {
		if s := l.Sold(i); s > m {
			m = s
		}
	}
	return m
}

// Clone deep-copies the line, including its ledger. Scenario fan-out runs
// each scenario against an independent copy of the same source lines.
func (l *ForecastLine) Clone() *ForecastLine {
	c := *l
	c.Ledger = make([]StageDelta, len(l.Ledger))
	copy(c.Ledger, l.Ledger)
	return &c
}
