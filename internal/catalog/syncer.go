package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fescii/Stahla-sub005/internal/cache"
	"github.com/fescii/Stahla-sub005/internal/sheets"
)

// syncLockTTL bounds how long a crashed syncer can block its successors.
const syncLockTTL = 5 * time.Minute

// ErrAlreadyRunning indicates another sync currently holds the lock.
// Triggers coalesce: callers report the conflict instead of waiting.
var ErrAlreadyRunning = errors.New("catalog: sync already running")

// SyncError reports which step of a sync failed. The previous snapshot stays
// current on any failure.
type SyncError struct {
	Step  string
	Cause error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("catalog sync: step %s: %v", e.Step, e.Cause)
}

func (e *SyncError) Unwrap() error { return e.Cause }

// Ranges names the four source tabs.
type Ranges struct {
	Products   string
	Generators string
	Branches   string
	Config     string
}

// SnapshotWriter is the store slice a sync publishes through. Snapshot
// writes must land before PublishVersion flips the pointer.
type SnapshotWriter interface {
	CurrentVersion(ctx context.Context) (int64, bool, error)
	WriteSnapshot(ctx context.Context, snap *Snapshot) error
	PublishVersion(ctx context.Context, version int64) error
}

// Lease is the held sync lock. Ownership is re-checked before the version
// pointer flips.
type Lease interface {
	StillHeld(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// AcquireLeaseFunc attempts to take the sync lock. acquired=false means
// another holder owns it.
type AcquireLeaseFunc func(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)

// CacheLeaser adapts the cache store's lease to AcquireLeaseFunc.
func CacheLeaser(c *cache.Store) AcquireLeaseFunc {
	return func(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
		lease, acquired, err := c.AcquireLease(ctx, key, ttl)
		if lease == nil {
			return nil, acquired, err
		}
		return lease, acquired, err
	}
}

// Syncer pulls the four catalog tabs, validates them as a unit, and
// publishes a new snapshot under the distributed sync lock.
type Syncer struct {
	fetcher      sheets.RangeFetcher
	store        SnapshotWriter
	acquire      AcquireLeaseFunc
	ranges       Ranges
	fetchTimeout time.Duration
}

// NewSyncer builds a syncer.
func NewSyncer(fetcher sheets.RangeFetcher, store SnapshotWriter, acquire AcquireLeaseFunc, ranges Ranges, fetchTimeout time.Duration) *Syncer {
	return &Syncer{
		fetcher:      fetcher,
		store:        store,
		acquire:      acquire,
		ranges:       ranges,
		fetchTimeout: fetchTimeout,
	}
}

// Sync performs one full catalog sync. Returns ErrAlreadyRunning when a
// concurrent sync holds the lock, or a SyncError naming the failed step.
func (s *Syncer) Sync(ctx context.Context) (*Snapshot, error) {
	lease, acquired, err := s.acquire(ctx, SyncLockKey, syncLockTTL)
	if err != nil {
		return nil, &SyncError{Step: "lock", Cause: err}
	}
	if !acquired {
		return nil, ErrAlreadyRunning
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			log.Printf("[catalog] lock release failed: %v", err)
		}
	}()

	snap, err := s.buildSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.store.WriteSnapshot(ctx, snap); err != nil {
		return nil, &SyncError{Step: "write", Cause: err}
	}

	// The lease may have expired mid-sync and been taken by another writer.
	// Re-check ownership before the pointer flip; losing the lease aborts.
	held, err := lease.StillHeld(ctx)
	if err != nil {
		return nil, &SyncError{Step: "publish", Cause: err}
	}
	if !held {
		return nil, &SyncError{Step: "publish", Cause: errors.New("sync lock lost before publish")}
	}
	if err := s.store.PublishVersion(ctx, snap.Version); err != nil {
		return nil, &SyncError{Step: "publish", Cause: err}
	}
	log.Printf("[catalog] installed snapshot version=%d products=%d branches=%d",
		snap.Version, len(snap.Products), len(snap.Branches))
	return snap, nil
}

func (s *Syncer) buildSnapshot(ctx context.Context) (*Snapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	names := []string{s.ranges.Products, s.ranges.Generators, s.ranges.Branches, s.ranges.Config}
	tabs := make([][][]string, len(names))
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			tabs[i], errs[i] = s.fetcher.FetchRange(fetchCtx, name)
		}(i, name)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, &SyncError{Step: "fetch_" + tabName(i), Cause: err}
		}
	}

	products, err := ParseProducts(tabs[0])
	if err != nil {
		return nil, &SyncError{Step: "parse_products", Cause: err}
	}
	generators, err := ParseGenerators(tabs[1])
	if err != nil {
		return nil, &SyncError{Step: "parse_generators", Cause: err}
	}
	branches, err := ParseBranches(tabs[2])
	if err != nil {
		return nil, &SyncError{Step: "parse_branches", Cause: err}
	}
	cfg, extras, err := ParseConfig(tabs[3])
	if err != nil {
		return nil, &SyncError{Step: "parse_config", Cause: err}
	}

	prevVersion, _, err := s.store.CurrentVersion(ctx)
	if err != nil {
		return nil, &SyncError{Step: "version", Cause: err}
	}

	snap := &Snapshot{
		Products:    products,
		Generators:  generators,
		Branches:    branches,
		Extras:      extras,
		Config:      cfg,
		Version:     prevVersion + 1,
		InstalledAt: time.Now().UTC(),
	}
	if err := snap.Validate(); err != nil {
		return nil, &SyncError{Step: "validate", Cause: err}
	}
	return snap, nil
}

func tabName(i int) string {
	switch i {
	case 0:
		return TabProducts
	case 1:
		return TabGenerators
	case 2:
		return TabBranches
	default:
		return TabConfig
	}
}
