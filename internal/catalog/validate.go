package catalog

import "fmt"

// Validate enforces the cross-tab invariants before a snapshot may be
// installed: non-empty branches, strictly increasing distance-tier bounds
// ending in an unbounded catch-all, and well-ordered non-overlapping
// seasonal windows.
func (s *Snapshot) Validate() error {
	if len(s.Branches) == 0 {
		return fmt.Errorf("branches must be non-empty")
	}
	if len(s.Config.DistanceTiers) == 0 {
		return fmt.Errorf("at least one distance tier required")
	}
	for i, t := range s.Config.DistanceTiers {
		last := i == len(s.Config.DistanceTiers)-1
		if t.Unbounded != last {
			if t.Unbounded {
				return fmt.Errorf("distance tier %q: only the last tier may be unbounded", t.Name)
			}
			return fmt.Errorf("distance tier %q: last tier must be unbounded", t.Name)
		}
		if !t.Unbounded && i > 0 && !s.Config.DistanceTiers[i-1].UpperBound.LessThan(t.UpperBound) {
			return fmt.Errorf("distance tier %q: upper bounds must be strictly increasing", t.Name)
		}
		if t.BaseFee.IsNegative() || t.PerMile.IsNegative() {
			return fmt.Errorf("distance tier %q: negative pricing", t.Name)
		}
	}
	for i, w := range s.Config.SeasonalWindows {
		if w.StartMonthDay > w.EndMonthDay {
			return fmt.Errorf("seasonal window %q: start %s after end %s", w.Label, w.StartMonthDay, w.EndMonthDay)
		}
		for _, other := range s.Config.SeasonalWindows[i+1:] {
			if w.StartMonthDay <= other.EndMonthDay && other.StartMonthDay <= w.EndMonthDay {
				return fmt.Errorf("seasonal windows %q and %q overlap", w.Label, other.Label)
			}
		}
	}
	for id, p := range s.Products {
		if len(p.RatesByDuration) == 0 {
			return fmt.Errorf("product %q: no duration tiers", id)
		}
	}
	return nil
}
