package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Date is a calendar day (YYYY-MM-DD) as written in scenario files.
type Date struct{ time.Time }

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

// RuleCategory classifies a tagged adjustment rule. The category picks the
// ledger stage (and so the export column) the rule's delta lands in.
type RuleCategory string

const (
	RulePromo         RuleCategory = "promo"
	RuleRegional      RuleCategory = "regional"
	RuleAdhocIncrease RuleCategory = "adhoc_increase"
	RuleAdhocDecrease RuleCategory = "adhoc_decrease"
)

// Stage maps the category to its ledger stage tag.
func (c RuleCategory) Stage() Stage {
	switch c {
	case RulePromo:
		return StagePromo
	case RuleRegional:
		return StageRegional
	case RuleAdhocDecrease:
		return StageAdhocDecrease
	default:
		return StageAdhocIncrease
	}
}

func (c RuleCategory) valid() bool {
	switch c {
	case RulePromo, RuleRegional, RuleAdhocIncrease, RuleAdhocDecrease:
		return true
	}
	return false
}

// AdjustmentRule is one declarative scope-tagged multiplier: promotions,
// holiday cannibalism, regional boosts, and one-off store or item
// adjustments all share this shape instead of living as inline branches.
// An empty scope slice matches everything; all populated scopes must match.
type AdjustmentRule struct {
	Label      string       `json:"label"`
	Category   RuleCategory `json:"category"`
	Regions    []string     `json:"regions,omitempty"`
	Stores     []int        `json:"stores,omitempty"`
	Items      []int        `json:"items,omitempty"`
	StartDate  Date         `json:"start_date"`
	EndDate    Date         `json:"end_date"`
	Multiplier float64      `json:"multiplier"`
}

// Matches reports whether the rule's scope covers the line.
func (r AdjustmentRule) Matches(l *ForecastLine) bool {
	if len(r.Regions) > 0 && !containsString(r.Regions, l.RegionCode) {
		return false
	}
	if len(r.Stores) > 0 && !containsInt(r.Stores, l.StoreNo) {
		return false
	}
	if len(r.Items) > 0 && !containsInt(r.Items, l.ItemNo) {
		return false
	}
	if !r.StartDate.IsZero() && l.DateForecast.Before(r.StartDate.Time) {
		return false
	}
	if !r.EndDate.IsZero() && l.DateForecast.After(r.EndDate.Time) {
		return false
	}
	return true
}

// CoverOverride tunes the cover percentages for a region/date window. It
// adjusts a stage parameter rather than a quantity, so it is not a
// ledger-producing rule. Nil fields leave the scenario default in place.
type CoverOverride struct {
	Label             string   `json:"label"`
	Regions           []string `json:"regions,omitempty"`
	StartDate         Date     `json:"start_date"`
	EndDate           Date     `json:"end_date"`
	BaseCover         *float64 `json:"base_cover,omitempty"`
	BaseCoverSoldOut  *float64 `json:"base_cover_sold_out,omitempty"`
}

func (o CoverOverride) matches(region string, date time.Time) bool {
	if len(o.Regions) > 0 && !containsString(o.Regions, region) {
		return false
	}
	if !o.StartDate.IsZero() && date.Before(o.StartDate.Time) {
		return false
	}
	if !o.EndDate.IsZero() && date.After(o.EndDate.Time) {
		return false
	}
	return true
}

// ScenarioParameters is an immutable named parameter set. Multiple scenarios
// may run against the same source lines for comparison; each produces an
// independent batch.
type ScenarioParameters struct {
	Name string `json:"name"`

	BaseCover        float64    `json:"base_cover"`
	BaseCoverSoldOut float64    `json:"base_cover_sold_out"`
	KFactor          float64    `json:"k_factor"`
	CaseSize         int        `json:"case_size"`
	WeekWeights      [4]float64 `json:"week_weights"`

	DeclineThreshold         float64 `json:"decline_threshold"`
	HighShrinkThreshold      float64 `json:"high_shrink_threshold"`
	RoundDownShrinkThreshold float64 `json:"round_down_shrink_threshold"`

	NonHeroItems       []int    `json:"non_hero_items,omitempty"`
	InactiveStores     []int    `json:"inactive_stores,omitempty"`
	RoundUpOnlyStores  []int    `json:"round_up_only_stores,omitempty"`
	RoundUpOnlyRegions []string `json:"round_up_only_regions,omitempty"`

	StoreShrinkThreshold     float64 `json:"store_shrink_threshold"`
	StoreHistoricalThreshold float64 `json:"store_historical_threshold"`
	StoreMinCoverage         float64 `json:"store_min_coverage"`
	StoreMaxCoverageBump     float64 `json:"store_max_coverage_bump"`

	WeatherSeverityThreshold float64 `json:"weather_severity_threshold"`
	WeatherMaxReductionPct   float64 `json:"weather_max_reduction_pct"`

	AdjustmentRules []AdjustmentRule `json:"adjustment_rules,omitempty"`
	CoverOverrides  []CoverOverride  `json:"cover_overrides,omitempty"`
}

// DefaultScenario returns the production parameter set.
func DefaultScenario() ScenarioParameters {
	return ScenarioParameters{
		Name:                     "default",
		BaseCover:                0.05,
		BaseCoverSoldOut:         0.06,
		KFactor:                  0.25,
		CaseSize:                 6,
		WeekWeights:              [4]float64{0.6, 0.2, 0.1, 0.1},
		DeclineThreshold:         0.15,
		HighShrinkThreshold:      0.15,
		RoundDownShrinkThreshold: 0.00,
		StoreShrinkThreshold:     0.15,
		StoreHistoricalThreshold: 0.10,
		StoreMinCoverage:         0.01,
		StoreMaxCoverageBump:     0.20,
		WeatherSeverityThreshold: 4.0,
		WeatherMaxReductionPct:   0.40,
	}
}

// Validate rejects malformed parameter sets before any line is mutated. A
// failure here fails the whole batch; partial states never escape.
func (s ScenarioParameters) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario: missing name")
	}
	var weightSum float64
	for i, w := range s.WeekWeights {
		if w < 0 {
			return fmt.Errorf("scenario %s: week_weights[%d] is negative", s.Name, i)
		}
		weightSum += w
	}
	if math.Abs(weightSum-1.0) > 1e-6 {
		return fmt.Errorf("scenario %s: week_weights sum to %.4f, want 1.0", s.Name, weightSum)
	}
	if s.CaseSize < 1 {
		return fmt.Errorf("scenario %s: case_size %d must be positive", s.Name, s.CaseSize)
	}
	if s.BaseCover < 0 || s.BaseCover >= 1 {
		return fmt.Errorf("scenario %s: base_cover %.4f out of range [0,1)", s.Name, s.BaseCover)
	}
	if s.BaseCoverSoldOut < 0 || s.BaseCoverSoldOut >= 1 {
		return fmt.Errorf("scenario %s: base_cover_sold_out %.4f out of range [0,1)", s.Name, s.BaseCoverSoldOut)
	}
	if s.KFactor < 0 {
		return fmt.Errorf("scenario %s: k_factor %.4f is negative", s.Name, s.KFactor)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"decline_threshold", s.DeclineThreshold},
		{"high_shrink_threshold", s.HighShrinkThreshold},
		{"round_down_shrink_threshold", s.RoundDownShrinkThreshold},
		{"store_shrink_threshold", s.StoreShrinkThreshold},
		{"store_historical_threshold", s.StoreHistoricalThreshold},
		{"store_min_coverage", s.StoreMinCoverage},
		{"store_max_coverage_bump", s.StoreMaxCoverageBump},
		{"weather_max_reduction_pct", s.WeatherMaxReductionPct},
	} {
		if f.v < 0 || f.v > 1 {
			return fmt.Errorf("scenario %s: %s %.4f out of range [0,1]", s.Name, f.name, f.v)
		}
	}
	if s.WeatherSeverityThreshold < 0 || s.WeatherSeverityThreshold > 10 {
		return fmt.Errorf("scenario %s: weather_severity_threshold %.2f out of range [0,10]", s.Name, s.WeatherSeverityThreshold)
	}
	for _, r := range s.AdjustmentRules {
		if r.Label == "" {
			return fmt.Errorf("scenario %s: adjustment rule with empty label", s.Name)
		}
		if !r.Category.valid() {
			return fmt.Errorf("scenario %s: rule %s: unknown category %q", s.Name, r.Label, r.Category)
		}
		if r.Multiplier <= 0 {
			return fmt.Errorf("scenario %s: rule %s: multiplier %.4f must be positive", s.Name, r.Label, r.Multiplier)
		}
		if !r.StartDate.IsZero() && !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate.Time) {
			return fmt.Errorf("scenario %s: rule %s: end_date before start_date", s.Name, r.Label)
		}
	}
	for _, o := range s.CoverOverrides {
		for _, v := range []*float64{o.BaseCover, o.BaseCoverSoldOut} {
			if v != nil && (*v < 0 || *v >= 1) {
				return fmt.Errorf("scenario %s: cover override %s: cover %.4f out of range [0,1)", s.Name, o.Label, *v)
			}
		}
		if !o.StartDate.IsZero() && !o.EndDate.IsZero() && o.EndDate.Before(o.StartDate.Time) {
			return fmt.Errorf("scenario %s: cover override %s: end_date before start_date", s.Name, o.Label)
		}
	}
	return nil
}

// CoverFor resolves the effective cover percentages for a region and date,
// applying the last matching override in declaration order.
func (s ScenarioParameters) CoverFor(region string, date time.Time) (baseCover, soldOutCover float64) {
	baseCover, soldOutCover = s.BaseCover, s.BaseCoverSoldOut
	for _, o := range s.CoverOverrides {
		if !o.matches(region, date) {
			continue
		}
		if o.BaseCover != nil {
			baseCover = *o.BaseCover
		}
		if o.BaseCoverSoldOut != nil {
			soldOutCover = *o.BaseCoverSoldOut
		}
	}
	return baseCover, soldOutCover
}

// IsNonHero reports whether the item is excluded from safety stock.
func (s ScenarioParameters) IsNonHero(itemNo int) bool { return containsInt(s.NonHeroItems, itemNo) }

// IsInactive reports whether the store is marked inactive.
func (s ScenarioParameters) IsInactive(storeNo int) bool {
	return containsInt(s.InactiveStores, storeNo)
}

// RoundUpOnly reports whether round-down is never applied for the line's
// store or region.
func (s ScenarioParameters) RoundUpOnly(storeNo int, region string) bool {
	return containsInt(s.RoundUpOnlyStores, storeNo) || containsString(s.RoundUpOnlyRegions, region)
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsString(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
