package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fescii/Stahla-sub005/internal/maps"
)

// Resolution methods.
const (
	MethodDirect           = "direct"
	MethodFallbackGeocoded = "fallback_geocoded"
	MethodCached           = "cached"
)

// Error kinds.
const (
	KindGeocodingFailed = "geocoding_failed"
	KindProviderFailed  = "provider_failed"
)

// Record is one cached distance resolution. Miles carry one decimal digit.
type Record struct {
	Miles      decimal.Decimal `json:"miles"`
	Seconds    int64           `json:"seconds"`
	Provider   string          `json:"provider"`
	ResolvedAt time.Time       `json:"resolved_at"`
	Method     string          `json:"method"`
}

// Error is a distance-resolution failure.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "distance: " + e.Kind
	}
	return fmt.Sprintf("distance: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsGeocodingFailed reports whether err is a geocoding failure.
func IsGeocodingFailed(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindGeocodingFailed
}

// Cache is the slice of the cache store the resolver needs.
type Cache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Resolver answers (origin, destination) distance queries: cache first, then
// the maps provider, then a geocoded great-circle fallback.
type Resolver struct {
	cache       Cache
	provider    maps.Provider
	providerTag string
	ttl         time.Duration
	fallbackTTL time.Duration
	roadFactor  decimal.Decimal
}

// NewResolver builds a resolver. roadFactor scales great-circle miles into a
// road estimate on the fallback path.
func NewResolver(c Cache, provider maps.Provider, providerTag string, ttl, fallbackTTL time.Duration, roadFactor float64) *Resolver {
	return &Resolver{
		cache:       c,
		provider:    provider,
		providerTag: providerTag,
		ttl:         ttl,
		fallbackTTL: fallbackTTL,
		roadFactor:  decimal.NewFromFloat(roadFactor),
	}
}

// Cached returns the cached record for a pair without touching the provider.
func (r *Resolver) Cached(ctx context.Context, origin, destination string) (*Record, bool, error) {
	raw, found, err := r.cache.GetBytes(ctx, Key(origin, destination))
	if err != nil || !found {
		return nil, false, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("distance: decode cached record: %w", err)
	}
	rec.Method = MethodCached
	return &rec, true, nil
}

// Resolve returns the distance record for a pair, consulting the cache, the
// provider's distance matrix, and the geocoded fallback in that order.
func (r *Resolver) Resolve(ctx context.Context, origin, destination string) (*Record, error) {
	if rec, found, err := r.Cached(ctx, origin, destination); err == nil && found {
		return rec, nil
	} else if err != nil {
		// A degraded cache must not block resolution; fall through to the
		// provider.
	}

	miles, seconds, err := r.provider.DistanceMatrix(ctx, origin, destination)
	if err == nil {
		rec := r.newRecord(miles, seconds, MethodDirect)
		r.persist(ctx, origin, destination, rec, r.ttl)
		return rec, nil
	}
	if !errors.Is(err, maps.ErrNotRoutable) {
		return nil, &Error{Kind: KindProviderFailed, Err: err}
	}

	return r.resolveFallback(ctx, origin, destination)
}

func (r *Resolver) resolveFallback(ctx context.Context, origin, destination string) (*Record, error) {
	oLat, oLng, err := r.provider.Geocode(ctx, origin)
	if err != nil {
		return nil, &Error{Kind: KindGeocodingFailed, Err: err}
	}
	dLat, dLng, err := r.provider.Geocode(ctx, destination)
	if err != nil {
		return nil, &Error{Kind: KindGeocodingFailed, Err: err}
	}
	circle := decimal.NewFromFloat(haversineMiles(oLat, oLng, dLat, dLng))
	miles, _ := circle.Mul(r.roadFactor).Float64()
	rec := r.newRecord(miles, 0, MethodFallbackGeocoded)
	r.persist(ctx, origin, destination, rec, r.fallbackTTL)
	return rec, nil
}

func (r *Resolver) newRecord(miles float64, seconds int64, method string) *Record {
	return &Record{
		Miles:      decimal.NewFromFloat(miles).Round(1),
		Seconds:    seconds,
		Provider:   r.providerTag,
		ResolvedAt: time.Now().UTC(),
		Method:     method,
	}
}

func (r *Resolver) persist(ctx context.Context, origin, destination string, rec *Record, ttl time.Duration) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	// Best effort: a write failure degrades to a cache miss next time.
	_ = r.cache.SetBytes(ctx, Key(origin, destination), raw, ttl)
}
