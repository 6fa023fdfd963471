package catalog

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func validSnapshot() *Snapshot {
	return &Snapshot{
		Products: map[string]ProductRule{
			"3stall_combo": {
				ID:       "3stall_combo",
				Category: CategoryComboTrailer,
				RatesByDuration: []DurationTier{
					{MinDays: 1, MaxDays: 28, EventRate: decimal.NewFromInt(1200)},
				},
			},
		},
		Generators: map[string]GeneratorRule{},
		Branches: []Branch{
			{ID: "omaha", Address: "3035 Whitmore Street, Omaha, NE", NormalizedAddress: "3035 whitmore street, omaha, ne"},
		},
		Extras: map[string]ExtraItem{},
		Config: DeliveryConfig{
			DistanceTiers: []DistanceTier{
				{Name: "tier_0", UpperBound: decimal.NewFromInt(25), BaseFee: decimal.NewFromInt(150)},
				{Name: "tier_3", Unbounded: true, BaseFee: decimal.NewFromInt(500), PerMile: decimal.NewFromFloat(2.5)},
			},
			SeasonalWindows: []SeasonalWindow{
				{Label: "summer peak", StartMonthDay: "06-01", EndMonthDay: "08-31", Factor: decimal.NewFromFloat(1.15)},
			},
		},
		Version: 1,
	}
}

func TestValidateAcceptsGoodSnapshot(t *testing.T) {
	if err := validSnapshot().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot)
		want   string
	}{
		{
			"empty branches",
			func(s *Snapshot) { s.Branches = nil },
			"branches must be non-empty",
		},
		{
			"last tier bounded",
			func(s *Snapshot) { s.Config.DistanceTiers[1].Unbounded = false },
			"must be unbounded",
		},
		{
			"non-increasing bounds",
			func(s *Snapshot) {
				s.Config.DistanceTiers = []DistanceTier{
					{Name: "a", UpperBound: decimal.NewFromInt(50)},
					{Name: "b", UpperBound: decimal.NewFromInt(50)},
					{Name: "c", Unbounded: true},
				}
			},
			"strictly increasing",
		},
		{
			"inverted seasonal window",
			func(s *Snapshot) {
				s.Config.SeasonalWindows[0].StartMonthDay = "09-01"
			},
			"after end",
		},
		{
			"overlapping seasonal windows",
			func(s *Snapshot) {
				s.Config.SeasonalWindows = append(s.Config.SeasonalWindows,
					SeasonalWindow{Label: "july surge", StartMonthDay: "07-01", EndMonthDay: "07-31", Factor: decimal.NewFromFloat(1.3)})
			},
			"overlap",
		},
		{
			"product without tiers",
			func(s *Snapshot) {
				s.Products["bare"] = ProductRule{ID: "bare", Category: CategoryPortableToilet}
			},
			"no duration tiers",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := validSnapshot()
			tt.mutate(snap)
			err := snap.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSeasonalFactorDefaultsToOne(t *testing.T) {
	snap := validSnapshot()
	factor, label := snap.Config.SeasonalFactorFor(mustDate(t, "2025-01-15"))
	if !factor.Equal(decimal.NewFromInt(1)) || label != "" {
		t.Fatalf("expected factor 1.0 outside windows, got %v %q", factor, label)
	}
	factor, label = snap.Config.SeasonalFactorFor(mustDate(t, "2025-07-04"))
	if !factor.Equal(decimal.NewFromFloat(1.15)) || label != "summer peak" {
		t.Fatalf("expected summer factor, got %v %q", factor, label)
	}
}
