package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fescii/Stahla-sub005/internal/cache"
)

// Cache key layout.
const (
	KeyPrefix         = "catalog:"
	KeyCurrentVersion = "catalog:current_version"
	SyncLockKey       = "catalog:sync:lock"
)

// ErrNotInstalled indicates no snapshot has ever been published.
var ErrNotInstalled = errors.New("catalog: no snapshot installed")

func versionKey(version int64, part string) string {
	return fmt.Sprintf("catalog:v%d:%s", version, part)
}

// configBlob is the persisted shape of the config part; extras and the
// install timestamp ride along with the delivery config.
type configBlob struct {
	Config      DeliveryConfig       `json:"config"`
	Extras      map[string]ExtraItem `json:"extras"`
	InstalledAt time.Time            `json:"installed_at"`
}

// Store reads and writes snapshots in the cache. Reads dereference the
// current_version pointer once, then load the immutable version-suffixed
// blobs; the assembled snapshot is memoized per version.
type Store struct {
	cache   *cache.Store
	current atomic.Pointer[Snapshot]
}

// NewStore builds a snapshot store over the cache.
func NewStore(c *cache.Store) *Store {
	return &Store{cache: c}
}

// CurrentVersion reads the published version pointer.
func (s *Store) CurrentVersion(ctx context.Context) (int64, bool, error) {
	raw, found, err := s.cache.GetString(ctx, KeyCurrentVersion)
	if err != nil || !found {
		return 0, false, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("catalog: malformed version pointer %q", raw)
	}
	return v, true, nil
}

// Current returns the published snapshot. Returns ErrNotInstalled when the
// version pointer is absent.
func (s *Store) Current(ctx context.Context) (*Snapshot, error) {
	version, found, err := s.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotInstalled
	}
	if cached := s.current.Load(); cached != nil && cached.Version == version {
		return cached, nil
	}
	snap, err := s.loadVersion(ctx, version)
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	return snap, nil
}

func (s *Store) loadVersion(ctx context.Context, version int64) (*Snapshot, error) {
	products, found, err := cache.GetJSON[map[string]ProductRule](ctx, s.cache, versionKey(version, "products"))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("catalog: version %d products blob missing", version)
	}
	generators, found, err := cache.GetJSON[map[string]GeneratorRule](ctx, s.cache, versionKey(version, "generators"))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("catalog: version %d generators blob missing", version)
	}
	branches, found, err := cache.GetJSON[[]Branch](ctx, s.cache, versionKey(version, "branches"))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("catalog: version %d branches blob missing", version)
	}
	cfg, found, err := cache.GetJSON[configBlob](ctx, s.cache, versionKey(version, "config"))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("catalog: version %d config blob missing", version)
	}
	return &Snapshot{
		Products:    products,
		Generators:  generators,
		Branches:    branches,
		Extras:      cfg.Extras,
		Config:      cfg.Config,
		Version:     version,
		InstalledAt: cfg.InstalledAt,
	}, nil
}

// WriteSnapshot persists every part of a snapshot under its version prefix.
// The snapshot is not visible to readers until PublishVersion flips the
// pointer.
func (s *Store) WriteSnapshot(ctx context.Context, snap *Snapshot) error {
	if err := cache.SetJSON(ctx, s.cache, versionKey(snap.Version, "products"), snap.Products, 0); err != nil {
		return err
	}
	if err := cache.SetJSON(ctx, s.cache, versionKey(snap.Version, "generators"), snap.Generators, 0); err != nil {
		return err
	}
	if err := cache.SetJSON(ctx, s.cache, versionKey(snap.Version, "branches"), snap.Branches, 0); err != nil {
		return err
	}
	blob := configBlob{Config: snap.Config, Extras: snap.Extras, InstalledAt: snap.InstalledAt}
	return cache.SetJSON(ctx, s.cache, versionKey(snap.Version, "config"), blob, 0)
}

// PublishVersion flips the current_version pointer. This is the single
// publish step readers observe.
func (s *Store) PublishVersion(ctx context.Context, version int64) error {
	return s.cache.SetBytes(ctx, KeyCurrentVersion, []byte(strconv.FormatInt(version, 10)), 0)
}
