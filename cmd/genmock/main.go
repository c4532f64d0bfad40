// Command genmock generates deterministic mock input fixtures and, by
// running the real pipeline stages over them, the matching expected output
// fixtures. Both test suites and local Kafka smoke setups consume these
// files, so the transformed side must track actual pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/forecast_input_lines.json \
//	  -records-out data/mock/order_forecast_records.json \
//	  -stores 8 -items 40 -date 2026-03-02 -seed 1
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/harborfresh/order-forecast/internal/domain"
	"github.com/harborfresh/order-forecast/internal/observability"
	"github.com/harborfresh/order-forecast/internal/pipeline"
)

var regions = []string{"BA", "SE", "NW", "MW"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the raw input line fixture")
	recordsOut := flag.String("records-out", "", "output path for the expected order record fixture")
	stores := flag.Int("stores", 8, "number of stores")
	items := flag.Int("items", 40, "number of items per store")
	dateStr := flag.String("date", "2026-03-02", "forecast date (YYYY-MM-DD)")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" || *recordsOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out, -records-out")
	}

	date, err := time.Parse("2006-01-02", *dateStr)
	if err != nil {
		return fmt.Errorf("parse -date: %w", err)
	}

	// Fixed clock for reproducible processed_at stamps.
	domain.SetClock(clockwork.NewFakeClockAt(date.Add(6 * time.Hour)))
	defer domain.SetClock(nil)

	rng := rand.New(rand.NewSource(*seed))
	records := generate(rng, *stores, *items, *dateStr)
	log.Printf("generated %d input lines", len(records))

	if err := writeJSON(*out, records); err != nil {
		return fmt.Errorf("writing input fixture: %w", err)
	}
	log.Printf("wrote input fixture: %s", *out)

	outputs, err := process(records, date)
	if err != nil {
		return fmt.Errorf("processing fixture through pipeline: %w", err)
	}

	if err := writeJSON(*recordsOut, outputs); err != nil {
		return fmt.Errorf("writing record fixture: %w", err)
	}
	log.Printf("wrote record fixture: %s (%d records)", *recordsOut, len(outputs))
	return nil
}

// generate builds input lines spanning the interesting stage paths: steady
// sellers, decliners, sold-out lines, and quiet items with silent weeks.
func generate(rng *rand.Rand, stores, items int, date string) []domain.InputRecord {
	records := make([]domain.InputRecord, 0, stores*items)
	for s := 0; s < stores; s++ {
		storeNo := 100 + s
		region := regions[s%len(regions)]
		for i := 0; i < items; i++ {
			itemNo := 1700000 + i
			records = append(records, makeRecord(rng, storeNo, itemNo, region, date))
		}
	}
	return records
}

func makeRecord(rng *rand.Rand, storeNo, itemNo int, region, date string) domain.InputRecord {
	base := 10 + rng.Float64()*80
	trend := 0.8 + rng.Float64()*0.4 // <1 declines, >1 grows

	rec := domain.InputRecord{
		StoreNo:      storeNo,
		ItemNo:       itemNo,
		RegionCode:   region,
		DateForecast: date,
		CasePackSize: []int{4, 6, 12}[rng.Intn(3)],
	}

	week := base
	sold := make([]float64, 4)
	shipped := make([]float64, 4)
	for w := 3; w >= 0; w-- {
		shipped[w] = round1(week * (1 + rng.Float64()*0.15))
		sold[w] = round1(week * (0.85 + rng.Float64()*0.15))
		if sold[w] > shipped[w] {
			sold[w] = shipped[w]
		}
		week *= trend
	}

	// One line in ten sold out last week.
	if rng.Intn(10) == 0 {
		sold[0] = shipped[0]
	}
	// One line in twelve has a silent recent fortnight.
	if rng.Intn(12) == 0 {
		sold[0], sold[1] = 0, 0
	}

	shrink := make([]float64, 4)
	for w := range shrink {
		if shipped[w] > 0 {
			shrink[w] = round3((shipped[w] - sold[w]) / shipped[w])
		}
	}

	rec.W1Shipped, rec.W1Sold, rec.W1Shrink = ptr(shipped[0]), ptr(sold[0]), ptr(shrink[0])
	rec.W2Shipped, rec.W2Sold, rec.W2Shrink = ptr(shipped[1]), ptr(sold[1]), ptr(shrink[1])
	rec.W3Shipped, rec.W3Sold, rec.W3Shrink = ptr(shipped[2]), ptr(sold[2]), ptr(shrink[2])
	rec.W4Shipped, rec.W4Sold, rec.W4Shrink = ptr(shipped[3]), ptr(sold[3]), ptr(shrink[3])

	storeScale := 40 + rng.Float64()*20
	rec.StoreW1Received, rec.StoreW1Sold = ptr(round1(shipped[0]*storeScale)), ptr(round1(sold[0]*storeScale))
	rec.StoreW2Received, rec.StoreW2Sold = ptr(round1(shipped[1]*storeScale)), ptr(round1(sold[1]*storeScale))
	rec.StoreW3Received, rec.StoreW3Sold = ptr(round1(shipped[2]*storeScale)), ptr(round1(sold[2]*storeScale))
	rec.StoreW4Received, rec.StoreW4Sold = ptr(round1(shipped[3]*storeScale)), ptr(round1(sold[3]*storeScale))

	return rec
}

// process runs the default scenario over the generated lines, one batch per
// (region, date), and returns the flattened records.
func process(records []domain.InputRecord, date time.Time) ([]domain.OutputRecord, error) {
	byRegion := map[string][]*domain.ForecastLine{}
	for _, rec := range records {
		line, err := domain.NewForecastLine(rec)
		if err != nil {
			return nil, err
		}
		byRegion[line.RegionCode] = append(byRegion[line.RegionCode], line)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	engine := pipeline.NewEngine(nil, logger, observability.NewMetricsForTesting())

	var outputs []domain.OutputRecord
	for region, lines := range byRegion {
		batch, err := domain.NewForecastBatch(region, date, domain.DefaultScenario(), lines)
		if err != nil {
			return nil, err
		}
		if err := engine.ProcessBatch(context.Background(), batch); err != nil {
			return nil, err
		}
		flat, err := domain.FlattenBatch(batch)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, flat...)
	}
	return outputs, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func ptr(v float64) *float64 { return &v }

func round1(v float64) float64 { return float64(int(v*10+0.5)) / 10 }

func round3(v float64) float64 { return float64(int(v*1000+0.5)) / 1000 }
