package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Tab names used in sync error reporting.
const (
	TabProducts   = "products"
	TabGenerators = "generators"
	TabBranches   = "branches"
	TabConfig     = "config"
)

// RowError reports a validation failure at a specific row of a tab. Row
// numbers are 1-based and include the header row.
type RowError struct {
	Tab string
	Row int
	Msg string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %s", e.Tab, e.Row, e.Msg)
}

func rowErrf(tab string, row int, format string, args ...any) *RowError {
	return &RowError{Tab: tab, Row: row, Msg: fmt.Sprintf(format, args...)}
}

// header maps lowercased column names to indices. Column order in the sheet
// is not assumed; only the header row binds names to positions.
type header map[string]int

func parseHeader(tab string, rows [][]string, required ...string) (header, error) {
	if len(rows) == 0 {
		return nil, rowErrf(tab, 1, "missing header row")
	}
	h := header{}
	for i, name := range rows[0] {
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := h[name]; !ok {
			return nil, rowErrf(tab, 1, "missing required column %q", name)
		}
	}
	return h, nil
}

// cell returns the named column of a (possibly ragged) row, trimmed.
func (h header) cell(row []string, name string) string {
	idx, ok := h[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (h header) decimalCell(tab string, rowNum int, row []string, name string) (decimal.Decimal, error) {
	raw := h.cell(row, name)
	if raw == "" {
		return decimal.Zero, nil
	}
	raw = strings.TrimPrefix(raw, "$")
	raw = strings.ReplaceAll(raw, ",", "")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, rowErrf(tab, rowNum, "column %q: invalid number %q", name, raw)
	}
	return d, nil
}

func (h header) intCell(tab string, rowNum int, row []string, name string) (int, error) {
	raw := h.cell(row, name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, rowErrf(tab, rowNum, "column %q: invalid integer %q", name, raw)
	}
	return n, nil
}

func (h header) boolCell(row []string, name string) bool {
	switch strings.ToLower(h.cell(row, name)) {
	case "true", "yes", "1", "y":
		return true
	}
	return false
}

// ParseProducts parses the products tab. Each row is one duration bracket;
// rows sharing an id accumulate into one product.
func ParseProducts(rows [][]string) (map[string]ProductRule, error) {
	h, err := parseHeader(TabProducts, rows, "id", "category", "min_days")
	if err != nil {
		return nil, err
	}
	products := map[string]ProductRule{}
	for i, row := range rows[1:] {
		rowNum := i + 2
		id := NormalizeID(h.cell(row, "id"))
		if id == "" {
			return nil, rowErrf(TabProducts, rowNum, "empty id")
		}
		category := NormalizeID(h.cell(row, "category"))
		if !validCategories[category] {
			return nil, rowErrf(TabProducts, rowNum, "unknown category %q", category)
		}
		tier := DurationTier{}
		if tier.MinDays, err = h.intCell(TabProducts, rowNum, row, "min_days"); err != nil {
			return nil, err
		}
		if tier.MaxDays, err = h.intCell(TabProducts, rowNum, row, "max_days"); err != nil {
			return nil, err
		}
		if tier.MinDays < 1 {
			return nil, rowErrf(TabProducts, rowNum, "min_days must be >= 1")
		}
		if tier.MaxDays != 0 && tier.MaxDays < tier.MinDays {
			return nil, rowErrf(TabProducts, rowNum, "max_days %d below min_days %d", tier.MaxDays, tier.MinDays)
		}
		if tier.EventRate, err = h.decimalCell(TabProducts, rowNum, row, "event_rate"); err != nil {
			return nil, err
		}
		if tier.Rate28Day, err = h.decimalCell(TabProducts, rowNum, row, "rate_28_day"); err != nil {
			return nil, err
		}
		if tier.Rate2To5Month, err = h.decimalCell(TabProducts, rowNum, row, "rate_2_5_month"); err != nil {
			return nil, err
		}
		if tier.Rate6PlusMonth, err = h.decimalCell(TabProducts, rowNum, row, "rate_6_plus_month"); err != nil {
			return nil, err
		}
		if features := h.cell(row, "features"); features != "" {
			for _, f := range strings.Split(features, ";") {
				if f = strings.TrimSpace(f); f != "" {
					tier.FeaturesIncluded = append(tier.FeaturesIncluded, f)
				}
			}
		}
		p, ok := products[id]
		if !ok {
			p = ProductRule{ID: id, Category: category}
		} else if p.Category != category {
			return nil, rowErrf(TabProducts, rowNum, "conflicting category %q for product %q", category, id)
		}
		p.RatesByDuration = append(p.RatesByDuration, tier)
		products[id] = p
	}
	for id, p := range products {
		p.sortTiers()
		products[id] = p
	}
	return products, nil
}

// ParseGenerators parses the generators tab.
func ParseGenerators(rows [][]string) (map[string]GeneratorRule, error) {
	h, err := parseHeader(TabGenerators, rows, "id", "kw")
	if err != nil {
		return nil, err
	}
	generators := map[string]GeneratorRule{}
	for i, row := range rows[1:] {
		rowNum := i + 2
		id := NormalizeID(h.cell(row, "id"))
		if id == "" {
			return nil, rowErrf(TabGenerators, rowNum, "empty id")
		}
		if _, dup := generators[id]; dup {
			return nil, rowErrf(TabGenerators, rowNum, "duplicate id %q", id)
		}
		g := GeneratorRule{ID: id}
		kw, err := h.decimalCell(TabGenerators, rowNum, row, "kw")
		if err != nil {
			return nil, err
		}
		g.KW, _ = kw.Float64()
		if g.EventRate, err = h.decimalCell(TabGenerators, rowNum, row, "event_rate"); err != nil {
			return nil, err
		}
		if g.Rate7Day, err = h.decimalCell(TabGenerators, rowNum, row, "rate_7_day"); err != nil {
			return nil, err
		}
		if g.Rate28Day, err = h.decimalCell(TabGenerators, rowNum, row, "rate_28_day"); err != nil {
			return nil, err
		}
		generators[id] = g
	}
	return generators, nil
}

// ParseBranches parses the branches tab, normalizing each address.
func ParseBranches(rows [][]string) ([]Branch, error) {
	h, err := parseHeader(TabBranches, rows, "id", "address")
	if err != nil {
		return nil, err
	}
	var branches []Branch
	seen := map[string]bool{}
	for i, row := range rows[1:] {
		rowNum := i + 2
		id := NormalizeID(h.cell(row, "id"))
		if id == "" {
			return nil, rowErrf(TabBranches, rowNum, "empty id")
		}
		if seen[id] {
			return nil, rowErrf(TabBranches, rowNum, "duplicate id %q", id)
		}
		seen[id] = true
		addr := h.cell(row, "address")
		if addr == "" {
			return nil, rowErrf(TabBranches, rowNum, "empty address")
		}
		branches = append(branches, Branch{
			ID:                id,
			Label:             h.cell(row, "label"),
			Address:           addr,
			NormalizedAddress: NormalizeAddress(addr),
		})
	}
	return branches, nil
}

// Config tab row kinds.
const (
	kindDistanceTier = "distance_tier"
	kindSeasonal     = "seasonal"
	kindExtra        = "extra"
)

// ParseConfig parses the config tab: distance tiers, seasonal windows, and
// extras, discriminated by a kind column.
func ParseConfig(rows [][]string) (DeliveryConfig, map[string]ExtraItem, error) {
	var cfg DeliveryConfig
	h, err := parseHeader(TabConfig, rows, "kind", "id")
	if err != nil {
		return cfg, nil, err
	}
	extras := map[string]ExtraItem{}
	for i, row := range rows[1:] {
		rowNum := i + 2
		kind := NormalizeID(h.cell(row, "kind"))
		id := NormalizeID(h.cell(row, "id"))
		if id == "" {
			return cfg, nil, rowErrf(TabConfig, rowNum, "empty id")
		}
		switch kind {
		case kindDistanceTier:
			tier := DistanceTier{Name: id}
			bound := strings.ToLower(h.cell(row, "upper_bound_miles"))
			if bound == "inf" || bound == "" {
				tier.Unbounded = true
			} else if tier.UpperBound, err = h.decimalCell(TabConfig, rowNum, row, "upper_bound_miles"); err != nil {
				return cfg, nil, err
			}
			if tier.BaseFee, err = h.decimalCell(TabConfig, rowNum, row, "base_fee"); err != nil {
				return cfg, nil, err
			}
			if tier.PerMile, err = h.decimalCell(TabConfig, rowNum, row, "per_mile"); err != nil {
				return cfg, nil, err
			}
			cfg.DistanceTiers = append(cfg.DistanceTiers, tier)
		case kindSeasonal:
			w := SeasonalWindow{Label: h.cell(row, "label")}
			if w.Label == "" {
				w.Label = id
			}
			w.StartMonthDay = h.cell(row, "start")
			w.EndMonthDay = h.cell(row, "end")
			if !validMonthDay(w.StartMonthDay) || !validMonthDay(w.EndMonthDay) {
				return cfg, nil, rowErrf(TabConfig, rowNum, "seasonal bounds must be MM-DD, got %q..%q", w.StartMonthDay, w.EndMonthDay)
			}
			if w.Factor, err = h.decimalCell(TabConfig, rowNum, row, "factor"); err != nil {
				return cfg, nil, err
			}
			if w.Factor.IsZero() {
				return cfg, nil, rowErrf(TabConfig, rowNum, "seasonal factor must be non-zero")
			}
			cfg.SeasonalWindows = append(cfg.SeasonalWindows, w)
		case kindExtra:
			if _, dup := extras[id]; dup {
				return cfg, nil, rowErrf(TabConfig, rowNum, "duplicate extra %q", id)
			}
			e := ExtraItem{ID: id, Label: h.cell(row, "label"), SeasonalExempt: h.boolCell(row, "seasonal_exempt")}
			if e.UnitPrice, err = h.decimalCell(TabConfig, rowNum, row, "unit_price"); err != nil {
				return cfg, nil, err
			}
			extras[id] = e
		default:
			return cfg, nil, rowErrf(TabConfig, rowNum, "unknown kind %q", kind)
		}
	}
	return cfg, extras, nil
}

func validMonthDay(s string) bool {
	if len(s) != 5 || s[2] != '-' {
		return false
	}
	month, err1 := strconv.Atoi(s[:2])
	day, err2 := strconv.Atoi(s[3:])
	return err1 == nil && err2 == nil && month >= 1 && month <= 12 && day >= 1 && day <= 31
}
