package recorder

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fescii/Stahla-sub005/internal/cache"
)

// CacheSink persists samples into the latency key families of the cache
// store. It is fed only by the recorder's drain worker; it must be built on
// the RAW store, never on a recorder-wrapped one, or every persist would
// generate fresh samples.
type CacheSink struct {
	store     *cache.Store
	sortedCap func() int
}

// NewCacheSink builds a sink. sortedCap is read per persist so the bound can
// be hot-updated.
func NewCacheSink(store *cache.Store, sortedCap func() int) *CacheSink {
	return &CacheSink{store: store, sortedCap: sortedCap}
}

// Persist fans one sample to the sorted set, the sum and count counters, and
// the trend stream.
func (cs *CacheSink) Persist(ctx context.Context, s Sample) error {
	member := fmt.Sprintf("%d:%s", s.Ms, uuid.NewString())
	if err := cs.store.AddSorted(ctx, sortedKey(s.Service), float64(s.Ms), member); err != nil {
		return err
	}
	cap := cs.sortedCap()
	if err := cs.store.TrimSorted(ctx, sortedKey(s.Service), cap); err != nil {
		return err
	}
	if _, err := cs.store.IncrBy(ctx, sumKey(s.Service), s.Ms); err != nil {
		return err
	}
	if _, err := cs.store.Incr(ctx, countKey(s.Service)); err != nil {
		return err
	}
	return cs.store.StreamAppend(ctx, streamKey(s.Service), map[string]any{
		"operation": s.Operation,
		"status":    s.Status,
		"ms":        s.Ms,
		"ts":        s.TS.Format("2006-01-02T15:04:05.000Z07:00"),
	}, int64(cap))
}
