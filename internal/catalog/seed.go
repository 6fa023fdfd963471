package catalog

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/fescii/Stahla-sub005/internal/cache"
)

// Seed file shape. Rates are strings so money survives YAML untouched.
type seedFile struct {
	Products []struct {
		ID       string `yaml:"id"`
		Category string `yaml:"category"`
		Tiers    []struct {
			MinDays        int      `yaml:"min_days"`
			MaxDays        int      `yaml:"max_days"`
			EventRate      string   `yaml:"event_rate"`
			Rate28Day      string   `yaml:"rate_28_day"`
			Rate2To5Month  string   `yaml:"rate_2_5_month"`
			Rate6PlusMonth string   `yaml:"rate_6_plus_month"`
			Features       []string `yaml:"features"`
		} `yaml:"tiers"`
	} `yaml:"products"`
	Generators []struct {
		ID        string  `yaml:"id"`
		KW        float64 `yaml:"kw"`
		EventRate string  `yaml:"event_rate"`
		Rate7Day  string  `yaml:"rate_7_day"`
		Rate28Day string  `yaml:"rate_28_day"`
	} `yaml:"generators"`
	Branches []struct {
		ID      string `yaml:"id"`
		Label   string `yaml:"label"`
		Address string `yaml:"address"`
	} `yaml:"branches"`
	Config struct {
		DistanceTiers []struct {
			Name            string `yaml:"name"`
			UpperBoundMiles string `yaml:"upper_bound_miles"`
			Unbounded       bool   `yaml:"unbounded"`
			BaseFee         string `yaml:"base_fee"`
			PerMile         string `yaml:"per_mile"`
		} `yaml:"distance_tiers"`
		Seasonal []struct {
			Label  string `yaml:"label"`
			Start  string `yaml:"start"`
			End    string `yaml:"end"`
			Factor string `yaml:"factor"`
		} `yaml:"seasonal"`
		Extras []struct {
			ID             string `yaml:"id"`
			Label          string `yaml:"label"`
			UnitPrice      string `yaml:"unit_price"`
			SeasonalExempt bool   `yaml:"seasonal_exempt"`
		} `yaml:"extras"`
	} `yaml:"config"`
}

func seedDecimal(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("seed: %s: invalid number %q", field, raw)
	}
	return d, nil
}

// LoadSeed parses a YAML seed file into an unversioned snapshot.
func LoadSeed(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return parseSeed(raw)
}

func parseSeed(raw []byte) (*Snapshot, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	snap := &Snapshot{
		Products:   map[string]ProductRule{},
		Generators: map[string]GeneratorRule{},
		Extras:     map[string]ExtraItem{},
	}
	var err error
	for _, sp := range f.Products {
		id := NormalizeID(sp.ID)
		p := ProductRule{ID: id, Category: NormalizeID(sp.Category)}
		if !validCategories[p.Category] {
			return nil, fmt.Errorf("seed: product %q: unknown category %q", id, sp.Category)
		}
		for _, st := range sp.Tiers {
			t := DurationTier{MinDays: st.MinDays, MaxDays: st.MaxDays, FeaturesIncluded: st.Features}
			if t.EventRate, err = seedDecimal("event_rate", st.EventRate); err != nil {
				return nil, err
			}
			if t.Rate28Day, err = seedDecimal("rate_28_day", st.Rate28Day); err != nil {
				return nil, err
			}
			if t.Rate2To5Month, err = seedDecimal("rate_2_5_month", st.Rate2To5Month); err != nil {
				return nil, err
			}
			if t.Rate6PlusMonth, err = seedDecimal("rate_6_plus_month", st.Rate6PlusMonth); err != nil {
				return nil, err
			}
			p.RatesByDuration = append(p.RatesByDuration, t)
		}
		p.sortTiers()
		snap.Products[id] = p
	}
	for _, sg := range f.Generators {
		g := GeneratorRule{ID: NormalizeID(sg.ID), KW: sg.KW}
		if g.EventRate, err = seedDecimal("event_rate", sg.EventRate); err != nil {
			return nil, err
		}
		if g.Rate7Day, err = seedDecimal("rate_7_day", sg.Rate7Day); err != nil {
			return nil, err
		}
		if g.Rate28Day, err = seedDecimal("rate_28_day", sg.Rate28Day); err != nil {
			return nil, err
		}
		snap.Generators[g.ID] = g
	}
	for _, sb := range f.Branches {
		snap.Branches = append(snap.Branches, Branch{
			ID:                NormalizeID(sb.ID),
			Label:             sb.Label,
			Address:           sb.Address,
			NormalizedAddress: NormalizeAddress(sb.Address),
		})
	}
	for _, st := range f.Config.DistanceTiers {
		tier := DistanceTier{Name: NormalizeID(st.Name), Unbounded: st.Unbounded}
		if !tier.Unbounded {
			if tier.UpperBound, err = seedDecimal("upper_bound_miles", st.UpperBoundMiles); err != nil {
				return nil, err
			}
		}
		if tier.BaseFee, err = seedDecimal("base_fee", st.BaseFee); err != nil {
			return nil, err
		}
		if tier.PerMile, err = seedDecimal("per_mile", st.PerMile); err != nil {
			return nil, err
		}
		snap.Config.DistanceTiers = append(snap.Config.DistanceTiers, tier)
	}
	for _, sw := range f.Config.Seasonal {
		w := SeasonalWindow{Label: sw.Label, StartMonthDay: sw.Start, EndMonthDay: sw.End}
		if !validMonthDay(w.StartMonthDay) || !validMonthDay(w.EndMonthDay) {
			return nil, fmt.Errorf("seed: seasonal %q: bounds must be MM-DD", w.Label)
		}
		if w.Factor, err = seedDecimal("factor", sw.Factor); err != nil {
			return nil, err
		}
		snap.Config.SeasonalWindows = append(snap.Config.SeasonalWindows, w)
	}
	for _, se := range f.Config.Extras {
		e := ExtraItem{ID: NormalizeID(se.ID), Label: se.Label, SeasonalExempt: se.SeasonalExempt}
		if e.UnitPrice, err = seedDecimal("unit_price", se.UnitPrice); err != nil {
			return nil, err
		}
		snap.Extras[e.ID] = e
	}
	return snap, nil
}

// InstallSeed publishes the seed file as version 1 if no snapshot exists.
// Returns (nil, nil) when a snapshot is already installed.
func InstallSeed(ctx context.Context, store *Store, c *cache.Store, path string) (*Snapshot, error) {
	if _, found, err := store.CurrentVersion(ctx); err != nil {
		return nil, err
	} else if found {
		return nil, nil
	}
	snap, err := LoadSeed(path)
	if err != nil {
		return nil, err
	}
	snap.Version = 1
	snap.InstalledAt = time.Now().UTC()
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	lease, acquired, err := c.AcquireLease(ctx, SyncLockKey, syncLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrAlreadyRunning
	}
	defer lease.Release(ctx)

	if err := store.WriteSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	if err := store.PublishVersion(ctx, snap.Version); err != nil {
		return nil, err
	}
	return snap, nil
}
