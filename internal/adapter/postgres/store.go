package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/harborfresh/order-forecast/internal/config"
	"github.com/harborfresh/order-forecast/internal/domain"
)

// Store persists flattened order records. It implements pipeline.RecordSink.
// Reprocessing a (store, item, date, scenario) key overwrites the previous
// row, so the table always holds the latest run.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to Postgres with a bounded connection pool and verifies the
// connection.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const createResultsTable = `
CREATE TABLE IF NOT EXISTS order_forecast_results (
	batch_id                  UUID             NOT NULL,
	scenario                  TEXT             NOT NULL,
	store_no                  INTEGER          NOT NULL,
	item_no                   INTEGER          NOT NULL,
	region_code               TEXT             NOT NULL,
	date_forecast             DATE             NOT NULL,
	case_pack_size            INTEGER          NOT NULL,
	baseline_qty              DOUBLE PRECISION NOT NULL,
	baseline_source           TEXT             NOT NULL,
	ema                       DOUBLE PRECISION NOT NULL,
	sales_velocity            DOUBLE PRECISION NOT NULL,
	sales_volatility          DOUBLE PRECISION NOT NULL,
	decline_adj_qty           DOUBLE PRECISION NOT NULL,
	high_shrink_adj_qty       DOUBLE PRECISION NOT NULL,
	promo_adj_qty             DOUBLE PRECISION NOT NULL,
	regional_adj_qty          DOUBLE PRECISION NOT NULL,
	adhoc_increase_qty        DOUBLE PRECISION NOT NULL,
	adhoc_decrease_qty        DOUBLE PRECISION NOT NULL,
	base_cover_qty            DOUBLE PRECISION NOT NULL,
	base_cover_reason         TEXT             NOT NULL,
	rounding_up_qty           DOUBLE PRECISION NOT NULL,
	rounding_down_qty         DOUBLE PRECISION NOT NULL,
	rounding_net_qty          DOUBLE PRECISION NOT NULL,
	safety_stock_qty          DOUBLE PRECISION NOT NULL,
	cover_guardrail_qty       DOUBLE PRECISION NOT NULL,
	store_level_growth_qty    DOUBLE PRECISION NOT NULL,
	store_level_decline_qty   DOUBLE PRECISION NOT NULL,
	store_level_adjusted      BOOLEAN          NOT NULL,
	store_level_reason        TEXT             NOT NULL DEFAULT '',
	weather_adjustment_qty    DOUBLE PRECISION NOT NULL,
	weather_adjusted          BOOLEAN          NOT NULL,
	weather_reason            TEXT             NOT NULL DEFAULT '',
	weather_severity_score    DOUBLE PRECISION NOT NULL,
	weather_severity_category TEXT             NOT NULL DEFAULT '',
	inactive_store_qty        DOUBLE PRECISION NOT NULL,
	final_quantity            DOUBLE PRECISION NOT NULL,
	forecast_shrink_last_week DOUBLE PRECISION NOT NULL,
	forecast_shrink_baseline  DOUBLE PRECISION NOT NULL,
	delta_from_last_week      DOUBLE PRECISION NOT NULL,
	projected_sales_amount    NUMERIC(12,2)    NOT NULL,
	projected_shrink_cost     NUMERIC(12,2)    NOT NULL,
	processed_at              TIMESTAMPTZ      NOT NULL,
	PRIMARY KEY (store_no, item_no, date_forecast, scenario)
)`

// EnsureSchema creates the results table when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createResultsTable); err != nil {
		return fmt.Errorf("ensure order_forecast_results schema: %w", err)
	}
	return nil
}

const upsertResult = `
INSERT INTO order_forecast_results (
	batch_id, scenario, store_no, item_no, region_code, date_forecast,
	case_pack_size, baseline_qty, baseline_source, ema, sales_velocity,
	sales_volatility, decline_adj_qty, high_shrink_adj_qty, promo_adj_qty,
	regional_adj_qty, adhoc_increase_qty, adhoc_decrease_qty, base_cover_qty,
	base_cover_reason, rounding_up_qty, rounding_down_qty, rounding_net_qty,
	safety_stock_qty, cover_guardrail_qty, store_level_growth_qty,
	store_level_decline_qty, store_level_adjusted, store_level_reason,
	weather_adjustment_qty, weather_adjusted, weather_reason,
	weather_severity_score, weather_severity_category, inactive_store_qty,
	final_quantity, forecast_shrink_last_week, forecast_shrink_baseline,
	delta_from_last_week, projected_sales_amount, projected_shrink_cost,
	processed_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
	$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
	$31, $32, $33, $34, $35, $36, $37, $38, $39, $40, $41, $42
)
ON CONFLICT (store_no, item_no, date_forecast, scenario) DO UPDATE SET
	batch_id = EXCLUDED.batch_id,
	region_code = EXCLUDED.region_code,
	case_pack_size = EXCLUDED.case_pack_size,
	baseline_qty = EXCLUDED.baseline_qty,
	baseline_source = EXCLUDED.baseline_source,
	ema = EXCLUDED.ema,
	sales_velocity = EXCLUDED.sales_velocity,
	sales_volatility = EXCLUDED.sales_volatility,
	decline_adj_qty = EXCLUDED.decline_adj_qty,
	high_shrink_adj_qty = EXCLUDED.high_shrink_adj_qty,
	promo_adj_qty = EXCLUDED.promo_adj_qty,
	regional_adj_qty = EXCLUDED.regional_adj_qty,
	adhoc_increase_qty = EXCLUDED.adhoc_increase_qty,
	adhoc_decrease_qty = EXCLUDED.adhoc_decrease_qty,
	base_cover_qty = EXCLUDED.base_cover_qty,
	base_cover_reason = EXCLUDED.base_cover_reason,
	rounding_up_qty = EXCLUDED.rounding_up_qty,
	rounding_down_qty = EXCLUDED.rounding_down_qty,
	rounding_net_qty = EXCLUDED.rounding_net_qty,
	safety_stock_qty = EXCLUDED.safety_stock_qty,
	cover_guardrail_qty = EXCLUDED.cover_guardrail_qty,
	store_level_growth_qty = EXCLUDED.store_level_growth_qty,
	store_level_decline_qty = EXCLUDED.store_level_decline_qty,
	store_level_adjusted = EXCLUDED.store_level_adjusted,
	store_level_reason = EXCLUDED.store_level_reason,
	weather_adjustment_qty = EXCLUDED.weather_adjustment_qty,
	weather_adjusted = EXCLUDED.weather_adjusted,
	weather_reason = EXCLUDED.weather_reason,
	weather_severity_score = EXCLUDED.weather_severity_score,
	weather_severity_category = EXCLUDED.weather_severity_category,
	inactive_store_qty = EXCLUDED.inactive_store_qty,
	final_quantity = EXCLUDED.final_quantity,
	forecast_shrink_last_week = EXCLUDED.forecast_shrink_last_week,
	forecast_shrink_baseline = EXCLUDED.forecast_shrink_baseline,
	delta_from_last_week = EXCLUDED.delta_from_last_week,
	projected_sales_amount = EXCLUDED.projected_sales_amount,
	projected_shrink_cost = EXCLUDED.projected_shrink_cost,
	processed_at = EXCLUDED.processed_at`

// WriteRecords upserts the records in one transaction so a batch lands
// atomically or not at all.
func (s *Store) WriteRecords(ctx context.Context, records []domain.OutputRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, upsertResult)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.BatchID, r.Scenario, r.StoreNo, r.ItemNo, r.RegionCode,
			r.DateForecast, r.CasePackSize, r.BaselineQty, r.BaselineSource,
			r.EMA, r.SalesVelocity, r.SalesVolatility, r.DeclineAdjQty,
			r.HighShrinkAdjQty, r.PromoAdjQty, r.RegionalAdjQty,
			r.AdhocIncreaseQty, r.AdhocDecreaseQty, r.BaseCoverQty,
			r.BaseCoverReason, r.RoundingUpQty, r.RoundingDownQty,
			r.RoundingNetQty, r.SafetyStockQty, r.CoverGuardrailQty,
			r.StoreLevelGrowthQty, r.StoreLevelDeclineQty, r.StoreLevelAdjusted,
			r.StoreLevelReason, r.WeatherAdjustmentQty, r.WeatherAdjusted,
			r.WeatherReason, r.WeatherSeverityScore, r.WeatherSeverityCategory,
			r.InactiveStoreQty, r.FinalQuantity, r.ForecastShrinkLastWeek,
			r.ForecastShrinkBaseline, r.DeltaFromLastWeek,
			r.ProjectedSalesAmount, r.ProjectedShrinkCost, r.ProcessedAt,
		); err != nil {
			return fmt.Errorf("upsert record (%d, %d, %s, %s): %w",
				r.StoreNo, r.ItemNo, r.DateForecast.Format("2006-01-02"), r.Scenario, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}
