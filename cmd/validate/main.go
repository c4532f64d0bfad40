// Command validate performs offline integrity checks over exported order
// record JSON: the stage-delta waterfall must close to the final quantity,
// quantities must be non-negative and case-aligned where the stages promise
// alignment, and reported weather severity must match its category band.
//
// Usage:
//
//	go run ./cmd/validate -records data/mock/order_forecast_records.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/harborfresh/order-forecast/internal/domain"
)

// phase tracks pass/fail for one validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	recordsPath := flag.String("records", "", "path to exported order record JSON")
	flag.Parse()

	if *recordsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*recordsPath); code != 0 {
		os.Exit(code)
	}
}

func run(recordsPath string) int {
	fmt.Println("=== Order Forecast Export Validation ===")
	fmt.Println()

	data, err := os.ReadFile(recordsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read records: %v\n", err)
		return 1
	}
	var records []domain.OutputRecord
	if err := json.Unmarshal(data, &records); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse records: %v\n", err)
		return 1
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "FATAL: no records to validate")
		return 1
	}
	fmt.Printf("loaded %d records\n", len(records))

	phases := []*phase{
		validateWaterfall(records),
		validateQuantities(records),
		validateWeather(records),
		validateIdentity(records),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		if p.passed() {
			fmt.Printf("PASS  %s\n", p.name)
			continue
		}
		allPassed = false
		fmt.Printf("FAIL  %s (%d errors)\n", p.name, len(p.errors))
		for i, e := range p.errors {
			if i == 10 {
				fmt.Printf("      ... and %d more\n", len(p.errors)-10)
				break
			}
			fmt.Printf("      %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	fmt.Println()
	fmt.Println("all checks passed")
	return 0
}

// validateWaterfall asserts final_quantity equals baseline_qty plus every
// flattened stage column.
func validateWaterfall(records []domain.OutputRecord) *phase {
	p := &phase{name: "waterfall closes to final quantity"}
	for _, r := range records {
		sum := r.BaselineQty +
			r.DeclineAdjQty + r.HighShrinkAdjQty +
			r.PromoAdjQty + r.RegionalAdjQty + r.AdhocIncreaseQty + r.AdhocDecreaseQty +
			r.BaseCoverQty + r.RoundingNetQty +
			r.SafetyStockQty + r.CoverGuardrailQty +
			r.StoreLevelGrowthQty + r.StoreLevelDeclineQty +
			r.WeatherAdjustmentQty + r.InactiveStoreQty
		if math.Abs(sum-r.FinalQuantity) > domain.ReconcileEpsilon {
			p.errorf("(%d, %d, %s): waterfall sums to %.6f, final is %.6f",
				r.StoreNo, r.ItemNo, r.Scenario, sum, r.FinalQuantity)
		}
		if math.Abs(r.RoundingNetQty-(r.RoundingUpQty+r.RoundingDownQty)) > domain.ReconcileEpsilon {
			p.errorf("(%d, %d, %s): rounding split %.4f + %.4f != net %.4f",
				r.StoreNo, r.ItemNo, r.Scenario, r.RoundingUpQty, r.RoundingDownQty, r.RoundingNetQty)
		}
	}
	return p
}

func validateQuantities(records []domain.OutputRecord) *phase {
	p := &phase{name: "quantities sane"}
	for _, r := range records {
		if r.FinalQuantity < 0 {
			p.errorf("(%d, %d, %s): negative final quantity %.4f", r.StoreNo, r.ItemNo, r.Scenario, r.FinalQuantity)
		}
		if r.CasePackSize < 1 {
			p.errorf("(%d, %d, %s): case pack size %d", r.StoreNo, r.ItemNo, r.Scenario, r.CasePackSize)
		}
		if r.RoundingUpQty < 0 {
			p.errorf("(%d, %d, %s): negative rounding_up_qty %.4f", r.StoreNo, r.ItemNo, r.Scenario, r.RoundingUpQty)
		}
		if r.RoundingDownQty > 0 {
			p.errorf("(%d, %d, %s): positive rounding_down_qty %.4f", r.StoreNo, r.ItemNo, r.Scenario, r.RoundingDownQty)
		}
		if r.StoreLevelGrowthQty != 0 && r.StoreLevelDeclineQty != 0 {
			p.errorf("(%d, %d, %s): both store growth %.2f and decline %.2f set",
				r.StoreNo, r.ItemNo, r.Scenario, r.StoreLevelGrowthQty, r.StoreLevelDeclineQty)
		}
		// Rounding leaves the pre-safety order case-aligned; verify where no
		// later stage has perturbed it.
		if r.RoundingNetQty != 0 && r.SafetyStockQty == 0 && r.CoverGuardrailQty == 0 &&
			r.StoreLevelGrowthQty == 0 && r.StoreLevelDeclineQty == 0 &&
			r.WeatherAdjustmentQty == 0 && r.InactiveStoreQty == 0 {
			if rem := math.Mod(r.FinalQuantity, float64(r.CasePackSize)); math.Abs(rem) > domain.ReconcileEpsilon {
				p.errorf("(%d, %d, %s): rounded final %.4f not aligned to case %d",
					r.StoreNo, r.ItemNo, r.Scenario, r.FinalQuantity, r.CasePackSize)
			}
		}
	}
	return p
}

func validateWeather(records []domain.OutputRecord) *phase {
	p := &phase{name: "weather severity consistent"}
	for _, r := range records {
		if r.WeatherSeverityCategory == "" {
			if r.WeatherAdjustmentQty != 0 {
				p.errorf("(%d, %d, %s): weather delta %.2f without a severity category",
					r.StoreNo, r.ItemNo, r.Scenario, r.WeatherAdjustmentQty)
			}
			continue
		}
		if want := domain.SeverityCategory(r.WeatherSeverityScore); r.WeatherSeverityCategory != want {
			p.errorf("(%d, %d, %s): severity %.2f banded %q, want %q",
				r.StoreNo, r.ItemNo, r.Scenario, r.WeatherSeverityScore, r.WeatherSeverityCategory, want)
		}
		if r.WeatherAdjustmentQty > 0 {
			p.errorf("(%d, %d, %s): weather adjustment %.2f must never increase an order",
				r.StoreNo, r.ItemNo, r.Scenario, r.WeatherAdjustmentQty)
		}
	}
	return p
}

func validateIdentity(records []domain.OutputRecord) *phase {
	p := &phase{name: "identity fields populated and unique"}
	seen := map[string]bool{}
	for _, r := range records {
		if r.StoreNo <= 0 || r.ItemNo <= 0 || r.RegionCode == "" || r.Scenario == "" {
			p.errorf("record missing identity: store=%d item=%d region=%q scenario=%q",
				r.StoreNo, r.ItemNo, r.RegionCode, r.Scenario)
			continue
		}
		key := fmt.Sprintf("%d|%d|%s|%s", r.StoreNo, r.ItemNo, r.DateForecast.Format("2006-01-02"), r.Scenario)
		if seen[key] {
			p.errorf("duplicate record for %s", key)
		}
		seen[key] = true
		if r.ProcessedAt.IsZero() {
			p.errorf("(%d, %d, %s): zero processed_at", r.StoreNo, r.ItemNo, r.Scenario)
		}
	}
	return p
}
