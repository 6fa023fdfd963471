package catalog

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseProductsHeaderDriven(t *testing.T) {
	// Columns deliberately shuffled: binding is by header name.
	rows := [][]string{
		{"category", "event_rate", "id", "min_days", "max_days", "rate_28_day"},
		{"combo_trailer", "$1,200", "3Stall_Combo", "1", "28", "950"},
		{"combo_trailer", "1100", "3stall_combo", "29", "75", "900"},
	}
	products, err := ParseProducts(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := products["3stall_combo"]
	if !ok {
		t.Fatalf("product id not normalized: %v", products)
	}
	if len(p.RatesByDuration) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(p.RatesByDuration))
	}
	if !p.RatesByDuration[0].EventRate.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("currency formatting not stripped: %v", p.RatesByDuration[0].EventRate)
	}
}

func TestParseProductsRejectsBadRows(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want string
	}{
		{
			"unknown category",
			[][]string{{"id", "category", "min_days"}, {"x", "houseboat", "1"}},
			"unknown category",
		},
		{
			"missing column",
			[][]string{{"id", "category"}, {"x", "combo_trailer"}},
			"missing required column",
		},
		{
			"inverted bracket",
			[][]string{{"id", "category", "min_days", "max_days"}, {"x", "combo_trailer", "10", "5"}},
			"below min_days",
		},
		{
			"zero min_days",
			[][]string{{"id", "category", "min_days"}, {"x", "combo_trailer", "0"}},
			"min_days must be",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProducts(tt.rows)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseBranchesNormalizesAddresses(t *testing.T) {
	rows := [][]string{
		{"id", "label", "address"},
		{"OMAHA", "Omaha", "  3035  Whitmore Street,   OMAHA, NE "},
	}
	branches, err := ParseBranches(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if branches[0].ID != "omaha" {
		t.Fatalf("id not normalized: %q", branches[0].ID)
	}
	if branches[0].NormalizedAddress != "3035 whitmore street, omaha, ne" {
		t.Fatalf("address not normalized: %q", branches[0].NormalizedAddress)
	}
}

func TestParseConfigTab(t *testing.T) {
	rows := [][]string{
		{"kind", "id", "label", "upper_bound_miles", "base_fee", "per_mile", "start", "end", "factor", "unit_price", "seasonal_exempt"},
		{"distance_tier", "tier_0", "", "25", "150", "0", "", "", "", "", ""},
		{"distance_tier", "tier_3", "", "inf", "500", "2.50", "", "", "", "", ""},
		{"seasonal", "summer", "summer peak", "", "", "", "06-01", "08-31", "1.15", "", ""},
		{"extra", "handwash", "Hand Wash Station", "", "", "", "", "", "", "75", "true"},
	}
	cfg, extras, err := ParseConfig(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.DistanceTiers) != 2 || !cfg.DistanceTiers[1].Unbounded {
		t.Fatalf("unexpected tiers: %+v", cfg.DistanceTiers)
	}
	if len(cfg.SeasonalWindows) != 1 || cfg.SeasonalWindows[0].Label != "summer peak" {
		t.Fatalf("unexpected seasonal windows: %+v", cfg.SeasonalWindows)
	}
	e := extras["handwash"]
	if !e.SeasonalExempt || !e.UnitPrice.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("unexpected extra: %+v", e)
	}
}

func TestParseConfigRejectsUnknownKind(t *testing.T) {
	rows := [][]string{
		{"kind", "id"},
		{"discount", "loyalty"},
	}
	if _, _, err := ParseConfig(rows); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestSeasonalWindowContains(t *testing.T) {
	w := SeasonalWindow{StartMonthDay: "06-01", EndMonthDay: "08-31", Factor: decimal.NewFromFloat(1.15)}
	tests := []struct {
		date string
		want bool
	}{
		{"2025-06-01", true}, // start boundary
		{"2025-08-31", true}, // end boundary
		{"2025-07-04", true},
		{"2025-05-31", false},
		{"2025-09-01", false},
		{"2026-07-04", true}, // windows repeat every year
	}
	for _, tt := range tests {
		d, err := time.Parse("2006-01-02", tt.date)
		if err != nil {
			t.Fatal(err)
		}
		if got := w.Contains(d); got != tt.want {
			t.Errorf("Contains(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}
}

func TestTierForDaysBoundaries(t *testing.T) {
	p := ProductRule{
		ID: "x",
		RatesByDuration: []DurationTier{
			{MinDays: 1, MaxDays: 28},
			{MinDays: 29, MaxDays: 75},
			{MinDays: 76},
		},
	}
	tests := []struct {
		days    int
		wantMin int
	}{
		{1, 1},
		{28, 1},
		{29, 29},
		{75, 29},
		{76, 76},
		{365, 76},
	}
	for _, tt := range tests {
		tier, ok := p.TierForDays(tt.days)
		if !ok {
			t.Fatalf("no tier for %d days", tt.days)
		}
		if tier.MinDays != tt.wantMin {
			t.Errorf("days %d: got tier min %d, want %d", tt.days, tier.MinDays, tt.wantMin)
		}
	}
}

func TestTierForDaysOverlapPrefersSmallerMin(t *testing.T) {
	p := ProductRule{
		ID: "x",
		RatesByDuration: []DurationTier{
			{MinDays: 5, MaxDays: 40},
			{MinDays: 1, MaxDays: 10},
		},
	}
	p.sortTiers()
	tier, ok := p.TierForDays(7)
	if !ok || tier.MinDays != 1 {
		t.Fatalf("expected overlap to resolve to min_days=1, got %+v ok=%v", tier, ok)
	}
}

func TestTierForMilesBoundaries(t *testing.T) {
	cfg := DeliveryConfig{DistanceTiers: []DistanceTier{
		{Name: "tier_0", UpperBound: decimal.NewFromInt(25)},
		{Name: "tier_1", UpperBound: decimal.NewFromInt(180)},
		{Name: "tier_3", Unbounded: true},
	}}
	tests := []struct {
		miles string
		want  string
	}{
		{"0", "tier_0"},
		{"25", "tier_0"}, // boundary selects the bounded tier
		{"25.1", "tier_1"},
		{"180", "tier_1"},
		{"312", "tier_3"},
	}
	for _, tt := range tests {
		m, _ := decimal.NewFromString(tt.miles)
		tier, ok := cfg.TierForMiles(m)
		if !ok || tier.Name != tt.want {
			t.Errorf("miles %s: got %q ok=%v, want %q", tt.miles, tier.Name, ok, tt.want)
		}
	}
}
