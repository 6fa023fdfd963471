// Package locator runs asynchronous location lookups: given an address it
// resolves the nearest catalog branch in the background and writes an audit
// trail to the cache and the audit store.
package locator

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/shopspring/decimal"

	"github.com/fescii/Stahla-sub005/internal/audit"
	"github.com/fescii/Stahla-sub005/internal/catalog"
	"github.com/fescii/Stahla-sub005/internal/distance"
	"github.com/fescii/Stahla-sub005/internal/recorder"
)

const (
	dedupeTTL      = 30 * time.Second
	dedupeCapacity = 4096
	auditCacheTTL  = 24 * time.Hour
)

// Cache is the slice of the cache store the locator needs for audit records.
type Cache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Resolver resolves distances between an address and a branch.
type Resolver interface {
	Cached(ctx context.Context, origin, destination string) (*distance.Record, bool, error)
	Resolve(ctx context.Context, origin, destination string) (*distance.Record, error)
}

// CatalogSource yields the current snapshot.
type CatalogSource interface {
	Current(ctx context.Context) (*catalog.Snapshot, error)
}

// Emitter receives finished audit records for durable storage.
type Emitter interface {
	Emit(audit.Record)
}

// resolution is the shared outcome of one address resolution, reused by
// deduplicated lookups.
type resolution struct {
	BranchID string
	Miles    decimal.Decimal
	Seconds  int64
	Method   string
	APICalls int
	CacheHit bool
	Status   string
	ErrMsg   string
}

// call tracks an in-flight resolution so concurrent lookups for one address
// share a single fan-out.
type call struct {
	done chan struct{}
	res  resolution
}

// Service schedules background lookups. Client disconnects never cancel
// them; each background task runs on a context derived from the process
// root, bounded by bgTimeout.
type Service struct {
	catalog   CatalogSource
	resolver  Resolver
	cache     Cache
	emitter   Emitter
	rec       *recorder.Recorder
	bgTimeout time.Duration

	rootCtx  context.Context
	dedupe   otter.Cache[string, resolution]
	inflight *xsync.Map[string, *call]
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewService builds the locator. rootCtx is the process-wide root that
// outlives individual HTTP requests.
func NewService(rootCtx context.Context, cs CatalogSource, resolver Resolver, c Cache, emitter Emitter, rec *recorder.Recorder, bgTimeout time.Duration) *Service {
	dedupe, err := otter.MustBuilder[string, resolution](dedupeCapacity).
		WithTTL(dedupeTTL).
		Build()
	if err != nil {
		panic("locator: failed to create dedupe cache: " + err.Error())
	}
	return &Service{
		catalog:   cs,
		resolver:  resolver,
		cache:     c,
		emitter:   emitter,
		rec:       rec,
		bgTimeout: bgTimeout,
		rootCtx:   rootCtx,
		dedupe:    dedupe,
		inflight:  xsync.NewMap[string, *call](),
	}
}

// Lookup registers a pending audit record and schedules the background
// resolution. The audit id returns immediately.
func (s *Service) Lookup(ctx context.Context, address string) (string, error) {
	rec := audit.Record{
		ID:              uuid.NewString(),
		QueryRaw:        address,
		QueryNormalized: catalog.NormalizeAddress(address),
		Status:          audit.StatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.writeRecord(ctx, rec); err != nil {
		return "", err
	}
	s.emitter.Emit(rec)

	s.wg.Add(1)
	go s.run(rec)
	return rec.ID, nil
}

// Get returns the cached audit record for an id.
func (s *Service) Get(ctx context.Context, id string) (*audit.Record, bool, error) {
	raw, found, err := s.cache.GetBytes(ctx, audit.CacheKey(id))
	if err != nil || !found {
		return nil, false, err
	}
	var rec audit.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

// Stop waits for in-flight background lookups to finish.
func (s *Service) Stop() {
	s.wg.Wait()
	s.stopOnce.Do(s.dedupe.Close)
}

func (s *Service) run(rec audit.Record) {
	defer s.wg.Done()
	start := time.Now()

	ctx, cancel := context.WithTimeout(s.rootCtx, s.bgTimeout)
	defer cancel()

	rec.Status = audit.StatusProcessing
	s.persist(ctx, rec)

	res := s.resolveShared(ctx, rec.QueryNormalized, rec.QueryRaw)

	now := time.Now().UTC()
	rec.Status = res.Status
	rec.NearestBranchID = res.BranchID
	rec.Miles = res.Miles
	rec.Seconds = res.Seconds
	rec.APICallsMade = res.APICalls
	rec.CacheHit = res.CacheHit
	rec.ProcessingMs = time.Since(start).Milliseconds()
	rec.CompletedAt = &now
	rec.ErrorMessage = res.ErrMsg
	s.persist(ctx, rec)
	s.emitter.Emit(rec)

	status := recorder.StatusError
	switch {
	case rec.Status == audit.StatusSuccess || rec.Status == audit.StatusFallbackUsed:
		status = recorder.StatusOK
	case ctx.Err() != nil:
		status = recorder.StatusCancelled
	}
	s.rec.Record(recorder.ServiceLocation, "lookup", status, time.Since(start))
}

// resolveShared deduplicates concurrent and recently-completed resolutions
// of the same normalized address.
func (s *Service) resolveShared(ctx context.Context, normalized, raw string) resolution {
	if res, found := s.dedupe.Get(normalized); found {
		res.CacheHit = true
		res.APICalls = 0
		return res
	}

	c := &call{done: make(chan struct{})}
	existing, loaded := s.inflight.LoadOrStore(normalized, c)
	if loaded {
		select {
		case <-existing.done:
			res := existing.res
			res.CacheHit = true
			res.APICalls = 0
			return res
		case <-ctx.Done():
			return resolution{Status: audit.StatusFailed, ErrMsg: "lookup deadline exceeded"}
		}
	}

	c.res = s.resolve(ctx, raw)
	if audit.Terminal(c.res.Status) && c.res.Status != audit.StatusFailed {
		s.dedupe.Set(normalized, c.res)
	}
	s.inflight.Delete(normalized)
	close(c.done)
	return c.res
}

// resolve fans out over every branch and keeps the nearest.
func (s *Service) resolve(ctx context.Context, address string) resolution {
	snap, err := s.catalog.Current(ctx)
	if err != nil {
		return resolution{Status: audit.StatusFailed, ErrMsg: "catalog unavailable: " + err.Error()}
	}

	type branchResult struct {
		branchID string
		rec      *distance.Record
		err      error
	}
	results := make([]branchResult, len(snap.Branches))
	var wg sync.WaitGroup
	for i, b := range snap.Branches {
		wg.Add(1)
		go func(i int, b catalog.Branch) {
			defer wg.Done()
			rec, err := s.resolver.Resolve(ctx, address, b.Address)
			results[i] = branchResult{branchID: b.ID, rec: rec, err: err}
		}(i, b)
	}
	wg.Wait()

	var (
		best         *branchResult
		apiCalls     int
		cacheHit     bool
		allGeocoding = true
		lastErr      error
	)
	for i := range results {
		r := &results[i]
		if r.err != nil {
			lastErr = r.err
			if !distance.IsGeocodingFailed(r.err) {
				allGeocoding = false
			}
			continue
		}
		allGeocoding = false
		switch r.rec.Method {
		case distance.MethodCached:
			cacheHit = true
		default:
			apiCalls++
		}
		if best == nil || r.rec.Miles.LessThan(best.rec.Miles) {
			best = r
		}
	}

	if best == nil {
		res := resolution{APICalls: apiCalls, CacheHit: cacheHit}
		switch {
		case allGeocoding && lastErr != nil:
			res.Status = audit.StatusGeocodingFailed
		case lastErr != nil:
			res.Status = audit.StatusDistanceCalcFailed
		default:
			res.Status = audit.StatusFailed
		}
		if lastErr != nil {
			res.ErrMsg = lastErr.Error()
		}
		return res
	}

	status := audit.StatusSuccess
	if best.rec.Method == distance.MethodFallbackGeocoded {
		status = audit.StatusFallbackUsed
	}
	return resolution{
		BranchID: best.branchID,
		Miles:    best.rec.Miles,
		Seconds:  best.rec.Seconds,
		Method:   best.rec.Method,
		APICalls: apiCalls,
		CacheHit: cacheHit,
		Status:   status,
	}
}

func (s *Service) persist(ctx context.Context, rec audit.Record) {
	if err := s.writeRecord(ctx, rec); err != nil {
		log.Printf("[locator] write audit %s failed: %v", rec.ID, err)
	}
}

func (s *Service) writeRecord(ctx context.Context, rec audit.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.cache.SetBytes(ctx, audit.CacheKey(rec.ID), raw, auditCacheTTL)
}
