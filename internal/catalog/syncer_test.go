package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeFetcher struct {
	mu    sync.Mutex
	tabs  map[string][][]string
	errs  map[string]error
	calls int
}

func (f *fakeFetcher) FetchRange(_ context.Context, rangeName string) ([][]string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err, ok := f.errs[rangeName]; ok {
		return nil, err
	}
	return f.tabs[rangeName], nil
}

// journalStore records the order of store calls so tests can assert that the
// version pointer flips only after the snapshot blobs are written.
type journalStore struct {
	calls   []string
	version int64
	found   bool
}

func (j *journalStore) CurrentVersion(context.Context) (int64, bool, error) {
	j.calls = append(j.calls, "current_version")
	return j.version, j.found, nil
}

func (j *journalStore) WriteSnapshot(_ context.Context, snap *Snapshot) error {
	j.calls = append(j.calls, "write")
	return nil
}

func (j *journalStore) PublishVersion(_ context.Context, version int64) error {
	j.calls = append(j.calls, "publish")
	j.version = version
	j.found = true
	return nil
}

type fakeLease struct {
	held     bool
	released bool
}

func (l *fakeLease) StillHeld(context.Context) (bool, error) { return l.held, nil }

func (l *fakeLease) Release(context.Context) error {
	l.released = true
	return nil
}

func heldLeaseFunc(lease *fakeLease) AcquireLeaseFunc {
	return func(context.Context, string, time.Duration) (Lease, bool, error) {
		return lease, true, nil
	}
}

func conflictLeaseFunc() AcquireLeaseFunc {
	return func(context.Context, string, time.Duration) (Lease, bool, error) {
		return nil, false, nil
	}
}

func syncRanges() Ranges {
	return Ranges{Products: "products", Generators: "generators", Branches: "branches", Config: "config"}
}

func syncTabs() map[string][][]string {
	return map[string][][]string{
		"products": {
			{"id", "category", "min_days", "max_days", "event_rate", "rate_28_day"},
			{"3stall_combo", "combo_trailer", "1", "28", "1200", "950"},
		},
		"generators": {
			{"id", "kw"},
		},
		"branches": {
			{"id", "label", "address"},
			{"omaha", "Omaha", "3035 Whitmore Street, Omaha, NE"},
		},
		"config": {
			{"kind", "id", "label", "upper_bound_miles", "base_fee", "per_mile", "start", "end", "factor", "unit_price", "seasonal_exempt"},
			{"distance_tier", "tier_0", "", "25", "150", "0", "", "", "", "", ""},
			{"distance_tier", "tier_3", "", "inf", "500", "2.50", "", "", "", "", ""},
		},
	}
}

func TestSyncPublishesAfterWrite(t *testing.T) {
	store := &journalStore{version: 2, found: true}
	lease := &fakeLease{held: true}
	syncer := NewSyncer(&fakeFetcher{tabs: syncTabs()}, store, heldLeaseFunc(lease), syncRanges(), time.Second)

	snap, err := syncer.Sync(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Version != 3 {
		t.Fatalf("version = %d, want 3", snap.Version)
	}
	want := []string{"current_version", "write", "publish"}
	if len(store.calls) != len(want) {
		t.Fatalf("store calls = %v, want %v", store.calls, want)
	}
	for i := range want {
		if store.calls[i] != want[i] {
			t.Fatalf("store calls = %v, want %v", store.calls, want)
		}
	}
	if !lease.released {
		t.Fatal("lease not released after sync")
	}
}

func TestSyncConflictCoalesces(t *testing.T) {
	store := &journalStore{}
	fetcher := &fakeFetcher{tabs: syncTabs()}
	syncer := NewSyncer(fetcher, store, conflictLeaseFunc(), syncRanges(), time.Second)

	_, err := syncer.Sync(context.Background())
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if fetcher.calls != 0 {
		t.Fatalf("conflicting sync must not fetch, got %d calls", fetcher.calls)
	}
	if len(store.calls) != 0 {
		t.Fatalf("conflicting sync must not touch the store, got %v", store.calls)
	}
}

func TestSyncAbortsWhenLeaseLost(t *testing.T) {
	store := &journalStore{}
	lease := &fakeLease{held: false}
	syncer := NewSyncer(&fakeFetcher{tabs: syncTabs()}, store, heldLeaseFunc(lease), syncRanges(), time.Second)

	_, err := syncer.Sync(context.Background())
	var serr *SyncError
	if !errors.As(err, &serr) || serr.Step != "publish" {
		t.Fatalf("expected publish-step error, got %v", err)
	}
	for _, call := range store.calls {
		if call == "publish" {
			t.Fatalf("pointer flipped after lease loss: %v", store.calls)
		}
	}
}

func TestSyncFetchFailureLeavesStoreUntouched(t *testing.T) {
	store := &journalStore{}
	lease := &fakeLease{held: true}
	fetcher := &fakeFetcher{
		tabs: syncTabs(),
		errs: map[string]error{"branches": errors.New("upstream 500")},
	}
	syncer := NewSyncer(fetcher, store, heldLeaseFunc(lease), syncRanges(), time.Second)

	_, err := syncer.Sync(context.Background())
	var serr *SyncError
	if !errors.As(err, &serr) || !strings.HasPrefix(serr.Step, "fetch_") {
		t.Fatalf("expected fetch-step error, got %v", err)
	}
	for _, call := range store.calls {
		if call == "write" || call == "publish" {
			t.Fatalf("failed fetch must not write: %v", store.calls)
		}
	}
	if !lease.released {
		t.Fatal("lease not released after failed sync")
	}
}
