package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harborfresh/order-forecast/internal/domain"
)

// WeatherSource resolves store-day severity observations from the table the
// weather scoring job maintains. It implements domain.WeatherLookup.
type WeatherSource struct {
	db *sql.DB
}

// NewWeatherSource creates a lookup over the store's database handle.
func NewWeatherSource(store *Store) *WeatherSource {
	return &WeatherSource{db: store.db}
}

const selectObservation = `
SELECT store_no, date, severity_score, severity_category,
       wind_severity, precip_severity, temp_severity, condition
FROM store_weather_observations
WHERE store_no = $1 AND date = $2`

// Lookup returns the observation for a store and date. A missing row is a
// miss, not an error; the weather pass simply does not run for that store.
func (w *WeatherSource) Lookup(ctx context.Context, storeNo int, date time.Time) (domain.WeatherObservation, bool, error) {
	var obs domain.WeatherObservation
	err := w.db.QueryRowContext(ctx, selectObservation, storeNo, date).Scan(
		&obs.StoreNo,
		&obs.Date,
		&obs.SeverityScore,
		&obs.SeverityCategory,
		&obs.WindSeverity,
		&obs.PrecipSeverity,
		&obs.TempSeverity,
		&obs.Condition,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WeatherObservation{}, false, nil
	}
	if err != nil {
		return domain.WeatherObservation{}, false, fmt.Errorf("weather lookup (%d, %s): %w",
			storeNo, date.Format("2006-01-02"), err)
	}
	return obs, true, nil
}
