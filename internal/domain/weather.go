package domain

import (
	"context"
	"time"
)

// WeatherObservation is one store-day severity reading from the weather
// feed. SeverityScore is on a 0..10 scale composed from the component
// severities by the upstream scoring job.
type WeatherObservation struct {
	StoreNo          int       `json:"store_no"`
	Date             time.Time `json:"date"`
	SeverityScore    float64   `json:"severity_score"`
	SeverityCategory string    `json:"severity_category"`
	WindSeverity     float64   `json:"wind_severity"`
	PrecipSeverity   float64   `json:"precip_severity"`
	TempSeverity     float64   `json:"temp_severity"`
	Condition        string    `json:"condition"`
}

// SeverityCategory bands a severity score for reporting.
func SeverityCategory(score float64) string {
	switch {
	case score >= 8:
		return "extreme"
	case score >= 6:
		return "severe"
	case score >= 4:
		return "moderate"
	default:
		return "mild"
	}
}

// WeatherLookup resolves the severity observation for a store on a date.
// The second return is false when no observation exists; that is not an
// error and the caller skips the reduction for that store.
type WeatherLookup interface {
	Lookup(ctx context.Context, storeNo int, date time.Time) (WeatherObservation, bool, error)
}
