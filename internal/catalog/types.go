// Package catalog holds the pricing catalog: immutable versioned snapshots
// synced from the spreadsheet source and published atomically to the cache.
package catalog

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Product categories.
const (
	CategoryRestroomTrailer  = "restroom_trailer"
	CategoryShowerTrailer    = "shower_trailer"
	CategoryComboTrailer     = "combo_trailer"
	CategorySpecialtyTrailer = "specialty_trailer"
	CategoryPortableToilet   = "portable_toilet"
)

var validCategories = map[string]bool{
	CategoryRestroomTrailer:  true,
	CategoryShowerTrailer:    true,
	CategoryComboTrailer:     true,
	CategorySpecialtyTrailer: true,
	CategoryPortableToilet:   true,
}

// DurationTier is one rental-length bracket of a product. MaxDays == 0 means
// the bracket is open-ended.
type DurationTier struct {
	MinDays          int             `json:"min_days"`
	MaxDays          int             `json:"max_days"`
	EventRate        decimal.Decimal `json:"event_rate"`
	Rate28Day        decimal.Decimal `json:"rate_28_day"`
	Rate2To5Month    decimal.Decimal `json:"rate_2_5_month"`
	Rate6PlusMonth   decimal.Decimal `json:"rate_6_plus_month"`
	FeaturesIncluded []string        `json:"features_included,omitempty"`
}

// Contains reports whether days falls inside this bracket.
func (t DurationTier) Contains(days int) bool {
	if days < t.MinDays {
		return false
	}
	return t.MaxDays == 0 || days <= t.MaxDays
}

// ProductRule is one rentable product with its duration brackets, kept
// sorted by MinDays ascending.
type ProductRule struct {
	ID              string         `json:"id"`
	Category        string         `json:"category"`
	RatesByDuration []DurationTier `json:"rates_by_duration"`
}

// TierForDays selects the bracket containing days. Overlaps resolve to the
// bracket with the smaller MinDays.
func (p *ProductRule) TierForDays(days int) (DurationTier, bool) {
	for _, t := range p.RatesByDuration {
		if t.Contains(days) {
			return t, true
		}
	}
	return DurationTier{}, false
}

func (p *ProductRule) sortTiers() {
	sort.SliceStable(p.RatesByDuration, func(i, j int) bool {
		return p.RatesByDuration[i].MinDays < p.RatesByDuration[j].MinDays
	})
}

// GeneratorRule is one rentable generator.
type GeneratorRule struct {
	ID        string          `json:"id"`
	KW        float64         `json:"kw"`
	EventRate decimal.Decimal `json:"event_rate"`
	Rate7Day  decimal.Decimal `json:"rate_7_day"`
	Rate28Day decimal.Decimal `json:"rate_28_day"`
}

// Branch is a physical dispatch origin.
type Branch struct {
	ID                string `json:"id"`
	Label             string `json:"label"`
	Address           string `json:"address"`
	NormalizedAddress string `json:"normalized_address"`
}

// ExtraItem is an add-on line item. SeasonalExempt extras are not scaled by
// the seasonal multiplier.
type ExtraItem struct {
	ID             string          `json:"id"`
	Label          string          `json:"label"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	SeasonalExempt bool            `json:"seasonal_exempt"`
}

// SeasonalWindow is a calendar window (month-day bounds, inclusive) with a
// pricing factor.
type SeasonalWindow struct {
	Label         string          `json:"label"`
	StartMonthDay string          `json:"start_month_day"` // "06-01"
	EndMonthDay   string          `json:"end_month_day"`   // "08-31"
	Factor        decimal.Decimal `json:"factor"`
}

// Contains reports whether the month-day of t falls inside the window,
// inclusive of both endpoints.
func (w SeasonalWindow) Contains(t time.Time) bool {
	md := t.Format("01-02")
	return md >= w.StartMonthDay && md <= w.EndMonthDay
}

// DistanceTier is a miles bracket with its delivery pricing. Unbounded marks
// the final catch-all bracket.
type DistanceTier struct {
	Name       string          `json:"name"`
	UpperBound decimal.Decimal `json:"upper_bound_miles"`
	Unbounded  bool            `json:"unbounded"`
	BaseFee    decimal.Decimal `json:"base_fee"`
	PerMile    decimal.Decimal `json:"per_mile"`
}

// DeliveryConfig holds the delivery pricing brackets and seasonal windows.
type DeliveryConfig struct {
	DistanceTiers   []DistanceTier   `json:"distance_tiers"`
	SeasonalWindows []SeasonalWindow `json:"seasonal_multipliers"`
}

// TierForMiles selects the distance bracket for miles. Boundary miles equal
// to an upper bound select that bracket.
func (c *DeliveryConfig) TierForMiles(miles decimal.Decimal) (DistanceTier, bool) {
	for _, t := range c.DistanceTiers {
		if t.Unbounded || miles.LessThanOrEqual(t.UpperBound) {
			return t, true
		}
	}
	return DistanceTier{}, false
}

// SeasonalFactorFor returns the factor and window label for a date. Dates
// outside every window get factor 1.0 and an empty label.
func (c *DeliveryConfig) SeasonalFactorFor(t time.Time) (decimal.Decimal, string) {
	for _, w := range c.SeasonalWindows {
		if w.Contains(t) {
			return w.Factor, w.Label
		}
	}
	return decimal.NewFromInt(1), ""
}

// Snapshot is the immutable unit of atomic catalog swap.
type Snapshot struct {
	Products    map[string]ProductRule   `json:"products"`
	Generators  map[string]GeneratorRule `json:"generators"`
	Branches    []Branch                 `json:"branches"`
	Extras      map[string]ExtraItem     `json:"extras"`
	Config      DeliveryConfig           `json:"config"`
	Version     int64                    `json:"version"`
	InstalledAt time.Time                `json:"installed_at"`
}
