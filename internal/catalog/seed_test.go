package catalog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

const seedYAML = `
products:
  - id: 3stall_combo
    category: combo_trailer
    tiers:
      - min_days: 1
        max_days: 28
        event_rate: "1200"
        rate_28_day: "950"
      - min_days: 29
        event_rate: "1100"
        rate_2_5_month: "900"
        rate_6_plus_month: "850"
generators:
  - id: gen_20kw
    kw: 20
    event_rate: "300"
    rate_7_day: "250"
branches:
  - id: omaha
    label: Omaha
    address: "3035 Whitmore Street, Omaha, NE"
config:
  distance_tiers:
    - name: tier_0
      upper_bound_miles: "25"
      base_fee: "150"
      per_mile: "0"
    - name: tier_3
      unbounded: true
      base_fee: "500"
      per_mile: "2.50"
  seasonal:
    - label: summer peak
      start: "06-01"
      end: "08-31"
      factor: "1.15"
  extras:
    - id: handwash
      label: Hand Wash Station
      unit_price: "75"
      seasonal_exempt: true
`

func TestParseSeed(t *testing.T) {
	snap, err := parseSeed([]byte(seedYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := snap.Products["3stall_combo"]
	if !ok || len(p.RatesByDuration) != 2 {
		t.Fatalf("unexpected products: %+v", snap.Products)
	}
	if !p.RatesByDuration[0].EventRate.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("unexpected event rate: %v", p.RatesByDuration[0].EventRate)
	}
	if p.RatesByDuration[1].MaxDays != 0 {
		t.Fatalf("expected open-ended second tier, got max_days=%d", p.RatesByDuration[1].MaxDays)
	}
	if len(snap.Branches) != 1 || snap.Branches[0].NormalizedAddress != "3035 whitmore street, omaha, ne" {
		t.Fatalf("unexpected branches: %+v", snap.Branches)
	}
	if !snap.Extras["handwash"].SeasonalExempt {
		t.Fatal("expected seasonal-exempt extra")
	}
	snap.Version = 1
	if err := snap.Validate(); err != nil {
		t.Fatalf("seed snapshot should validate: %v", err)
	}
}

func TestParseSeedRejectsBadNumbers(t *testing.T) {
	bad := `
branches:
  - id: omaha
    address: "x"
config:
  distance_tiers:
    - name: tier_0
      upper_bound_miles: "twenty"
`
	if _, err := parseSeed([]byte(bad)); err == nil {
		t.Fatal("expected error for non-numeric bound")
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  3035  Whitmore Street,  Omaha, NE ", "3035 whitmore street, omaha, ne"},
		{"ASPEN,\tCO", "aspen, co"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeAddress(tt.in); got != tt.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
