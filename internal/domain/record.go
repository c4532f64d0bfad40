package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OutputRecord is one exported forecast line with the stage ledger
// flattened into per-stage columns. The column names are a contract with
// downstream reporting; renaming any of them requires a schema migration.
type OutputRecord struct {
	BatchID      uuid.UUID `json:"batch_id"`
	Scenario     string    `json:"scenario"`
	StoreNo      int       `json:"store_no"`
	ItemNo       int       `json:"item_no"`
	RegionCode   string    `json:"region_code"`
	DateForecast time.Time `json:"date_forecast"`
	CasePackSize int       `json:"case_pack_size"`

	BaselineQty     float64 `json:"baseline_qty"`
	BaselineSource  string  `json:"baseline_source"`
	EMA             float64 `json:"ema"`
	SalesVelocity   float64 `json:"sales_velocity"`
	SalesVolatility float64 `json:"sales_volatility"`

	DeclineAdjQty    float64 `json:"decline_adj_qty"`
	HighShrinkAdjQty float64 `json:"high_shrink_adj_qty"`
	PromoAdjQty      float64 `json:"promo_adj_qty"`
	RegionalAdjQty   float64 `json:"regional_adj_qty"`
	AdhocIncreaseQty float64 `json:"adhoc_increase_qty"`
	AdhocDecreaseQty float64 `json:"adhoc_decrease_qty"`

	BaseCoverQty    float64 `json:"base_cover_qty"`
	BaseCoverReason string  `json:"base_cover_reason"`
	RoundingUpQty   float64 `json:"rounding_up_qty"`
	RoundingDownQty float64 `json:"rounding_down_qty"`
	RoundingNetQty  float64 `json:"rounding_net_qty"`

	SafetyStockQty    float64 `json:"safety_stock_qty"`
	CoverGuardrailQty float64 `json:"cover_guardrail_qty"`

	StoreLevelGrowthQty  float64 `json:"store_level_growth_qty"`
	StoreLevelDeclineQty float64 `json:"store_level_decline_qty"`
	StoreLevelAdjusted   bool    `json:"store_level_adjusted"`
	StoreLevelReason     string  `json:"store_level_reason,omitempty"`

	WeatherAdjustmentQty    float64 `json:"weather_adjustment_qty"`
	WeatherAdjusted         bool    `json:"weather_adjusted"`
	WeatherReason           string  `json:"weather_reason,omitempty"`
	WeatherSeverityScore    float64 `json:"weather_severity_score"`
	WeatherSeverityCategory string  `json:"weather_severity_category,omitempty"`

	InactiveStoreQty float64 `json:"inactive_store_qty"`

	FinalQuantity float64 `json:"final_quantity"`

	// Result metrics, derived at export time only.
	ForecastShrinkLastWeek float64         `json:"forecast_shrink_last_week"`
	ForecastShrinkBaseline float64         `json:"forecast_shrink_baseline"`
	DeltaFromLastWeek      float64         `json:"delta_from_last_week"`
	ProjectedSalesAmount   decimal.Decimal `json:"projected_sales_amount"`
	ProjectedShrinkCost    decimal.Decimal `json:"projected_shrink_cost"`

	ProcessedAt time.Time `json:"processed_at"`
}

// FlattenLine converts a sealed line into its export row. It refuses
// unsealed lines so a half-run batch can never leak to a sink.
func FlattenLine(b *ForecastBatch, l *ForecastLine) (OutputRecord, error) {
	if !l.Sealed() {
		return OutputRecord{}, fmt.Errorf("flatten %d/%d: line not sealed", l.StoreNo, l.ItemNo)
	}
	rec := OutputRecord{
		BatchID:      b.BatchID,
		Scenario:     b.Scenario.Name,
		StoreNo:      l.StoreNo,
		ItemNo:       l.ItemNo,
		RegionCode:   l.RegionCode,
		DateForecast: l.DateForecast,
		CasePackSize: l.CasePackSize,

		BaselineQty:     l.BaselineQty,
		BaselineSource:  string(l.BaselineSource),
		EMA:             l.EMA,
		SalesVelocity:   l.SalesVelocity,
		SalesVolatility: l.SalesVolatility,

		DeclineAdjQty:    l.DeltaQty(StageDeclineAdj),
		HighShrinkAdjQty: l.DeltaQty(StageHighShrinkAdj),
		PromoAdjQty:      l.DeltaQty(StagePromo),
		RegionalAdjQty:   l.DeltaQty(StageRegional),
		AdhocIncreaseQty: l.DeltaQty(StageAdhocIncrease),
		AdhocDecreaseQty: l.DeltaQty(StageAdhocDecrease),

		BaseCoverQty: l.DeltaQty(StageBaseCover),

		SafetyStockQty:    l.DeltaQty(StageSafetyStock),
		CoverGuardrailQty: l.DeltaQty(StageCoverGuardrail),

		StoreLevelGrowthQty:  l.DeltaQty(StageStoreGrowth),
		StoreLevelDeclineQty: l.DeltaQty(StageStoreDecline),
		StoreLevelAdjusted:   l.StoreLevelAdjusted,

		WeatherAdjustmentQty:    l.DeltaQty(StageWeather),
		WeatherAdjusted:         l.WeatherAdjusted,
		WeatherSeverityScore:    l.WeatherSeverityScore,
		WeatherSeverityCategory: l.WeatherSeverityCategory,

		InactiveStoreQty: l.DeltaQty(StageInactiveStore),

		FinalQuantity: l.FinalQuantity,

		ProcessedAt: clock.Now().UTC(),
	}

	if d, ok := l.Delta(StageBaseCover); ok {
		rec.BaseCoverReason = d.Reason
	}
	if d, ok := l.Delta(StageRounding); ok {
		rec.RoundingNetQty = d.Qty
		if d.Qty >= 0 {
			rec.RoundingUpQty = d.Qty
		} else {
			rec.RoundingDownQty = d.Qty
		}
	}
	if d, ok := l.Delta(StageStoreGrowth); ok {
		rec.StoreLevelReason = d.Reason
	} else if d, ok := l.Delta(StageStoreDecline); ok {
		rec.StoreLevelReason = d.Reason
	}
	if d, ok := l.Delta(StageWeather); ok {
		rec.WeatherReason = d.Reason
	}

	if l.FinalQuantity > 0 {
		if w1 := l.Sold(0); w1 > 0 {
			rec.ForecastShrinkLastWeek = (l.FinalQuantity - w1) / l.FinalQuantity
		}
		if l.BaselineQty > 0 {
			rec.ForecastShrinkBaseline = (l.FinalQuantity - l.BaselineQty) / l.FinalQuantity
		}
	}
	rec.DeltaFromLastWeek = l.FinalQuantity - l.Shipped(0)

	qty := decimal.NewFromFloat(l.FinalQuantity)
	rec.ProjectedSalesAmount = l.UnitPrice.Mul(qty).Round(2)
	if rec.ForecastShrinkLastWeek > 0 {
		shrinkUnits := decimal.NewFromFloat(rec.ForecastShrinkLastWeek).Mul(qty)
		rec.ProjectedShrinkCost = l.UnitCost.Mul(shrinkUnits).Round(2)
	}
	return rec, nil
}

// FlattenBatch converts every line of a sealed batch.
func FlattenBatch(b *ForecastBatch) ([]OutputRecord, error) {
	records := make([]OutputRecord, 0, len(b.Lines))
	for _, l := range b.Lines {
		rec, err := FlattenLine(b, l)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
