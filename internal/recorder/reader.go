package recorder

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/fescii/Stahla-sub005/internal/cache"
)

// Reader is the query surface over recorded latency data.
type Reader struct {
	store      *cache.Store
	minSamples func() int
}

// NewReader builds a reader. minSamples is the staleness threshold, read per
// query so it can be hot-updated.
func NewReader(store *cache.Store, minSamples func() int) *Reader {
	return &Reader{store: store, minSamples: minSamples}
}

// PercentileResult is one percentile readback.
type PercentileResult struct {
	Service     string    `json:"service"`
	P           int       `json:"p"`
	ValueMs     float64   `json:"value_ms"`
	SampleCount int64     `json:"sample_count"`
	Stale       bool      `json:"stale"`
	ComputedAt  time.Time `json:"computed_at"`
}

// AverageResult is the running mean for one service.
type AverageResult struct {
	Service     string    `json:"service"`
	AverageMs   float64   `json:"average_ms"`
	SampleCount int64     `json:"sample_count"`
	Stale       bool      `json:"stale"`
	ComputedAt  time.Time `json:"computed_at"`
}

// RecentSample is one trend-stream entry.
type RecentSample struct {
	Operation string `json:"operation"`
	Status    string `json:"status"`
	Ms        int64  `json:"ms"`
	TS        string `json:"ts"`
}

// Percentile computes the pth percentile from the bounded sorted set.
func (rd *Reader) Percentile(ctx context.Context, service string, p int) (*PercentileResult, error) {
	if !ValidService(service) {
		return nil, fmt.Errorf("unknown service %q", service)
	}
	if !ValidPercentile(p) {
		return nil, fmt.Errorf("unsupported percentile %d", p)
	}
	members, err := rd.store.SortedMembers(ctx, sortedKey(service), 0)
	if err != nil {
		return nil, err
	}
	count, _, err := rd.store.GetInt(ctx, countKey(service))
	if err != nil {
		return nil, err
	}
	res := &PercentileResult{
		Service:     service,
		P:           p,
		SampleCount: count,
		Stale:       count < int64(rd.minSamples()),
		ComputedAt:  time.Now().UTC(),
	}
	if len(members) == 0 {
		res.Stale = true
		return res, nil
	}
	scores := make([]float64, len(members))
	for i, m := range members {
		scores[i] = m.Score
	}
	// The set comes back score-ordered already; re-sort defensively.
	sort.Float64s(scores)
	res.ValueMs = scores[percentileIndex(p, len(scores))]
	return res, nil
}

// percentileIndex returns the index of the pth percentile in an ascending
// slice of n samples, rounding up.
func percentileIndex(p, n int) int {
	idx := int(math.Ceil(float64(p)/100*float64(n))) - 1
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

// Average returns sum/count for a service.
func (rd *Reader) Average(ctx context.Context, service string) (*AverageResult, error) {
	if !ValidService(service) {
		return nil, fmt.Errorf("unknown service %q", service)
	}
	sum, _, err := rd.store.GetInt(ctx, sumKey(service))
	if err != nil {
		return nil, err
	}
	count, _, err := rd.store.GetInt(ctx, countKey(service))
	if err != nil {
		return nil, err
	}
	res := &AverageResult{
		Service:     service,
		SampleCount: count,
		Stale:       count < int64(rd.minSamples()),
		ComputedAt:  time.Now().UTC(),
	}
	if count > 0 {
		res.AverageMs = float64(sum) / float64(count)
	}
	return res, nil
}

// Recent returns up to n most-recent samples from the trend stream.
func (rd *Reader) Recent(ctx context.Context, service string, n int) ([]RecentSample, error) {
	if !ValidService(service) {
		return nil, fmt.Errorf("unknown service %q", service)
	}
	if n <= 0 {
		n = 20
	}
	entries, err := rd.store.StreamRecent(ctx, streamKey(service), int64(n))
	if err != nil {
		return nil, err
	}
	out := make([]RecentSample, 0, len(entries))
	for _, e := range entries {
		ms, _ := strconv.ParseInt(e.Fields["ms"], 10, 64)
		out = append(out, RecentSample{
			Operation: e.Fields["operation"],
			Status:    e.Fields["status"],
			Ms:        ms,
			TS:        e.Fields["ts"],
		})
	}
	return out, nil
}

// AllServicesSummary returns the running mean for every known service.
func (rd *Reader) AllServicesSummary(ctx context.Context) ([]AverageResult, error) {
	out := make([]AverageResult, 0, len(knownServices))
	for _, svc := range knownServices {
		avg, err := rd.Average(ctx, svc)
		if err != nil {
			return nil, err
		}
		out = append(out, *avg)
	}
	return out, nil
}
