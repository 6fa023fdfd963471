package distance

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fescii/Stahla-sub005/internal/maps"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memCache) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

type fakeProvider struct {
	matrixCalls  int
	geocodeCalls int
	matrixErr    error
	miles        float64
	seconds      int64
	geocodeErr   map[string]error
	coords       map[string][2]float64
}

func (f *fakeProvider) DistanceMatrix(_ context.Context, origin, destination string) (float64, int64, error) {
	f.matrixCalls++
	if f.matrixErr != nil {
		return 0, 0, f.matrixErr
	}
	return f.miles, f.seconds, nil
}

func (f *fakeProvider) Geocode(_ context.Context, address string) (float64, float64, error) {
	f.geocodeCalls++
	if err := f.geocodeErr[address]; err != nil {
		return 0, 0, err
	}
	c := f.coords[address]
	return c[0], c[1], nil
}

func TestKeyNormalizesAndOrders(t *testing.T) {
	a := Key("  Omaha,  NE ", "Lincoln, NE")
	b := Key("omaha, ne", "LINCOLN, NE")
	if a != b {
		t.Fatalf("normalized pairs should share a key: %q vs %q", a, b)
	}
	if Key("omaha, ne", "lincoln, ne") == Key("lincoln, ne", "omaha, ne") {
		t.Fatal("key must be order-sensitive")
	}
	if !strings.HasPrefix(a, "distance:") {
		t.Fatalf("missing key prefix: %q", a)
	}
}

func TestResolveDirectThenCached(t *testing.T) {
	c := newMemCache()
	p := &fakeProvider{miles: 57.26, seconds: 3600}
	r := NewResolver(c, p, "testmaps", 24*time.Hour, time.Hour, 1.3)

	rec, err := r.Resolve(context.Background(), "Omaha, NE", "Lincoln, NE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Method != MethodDirect {
		t.Fatalf("expected direct, got %q", rec.Method)
	}
	if rec.Miles.String() != "57.3" {
		t.Fatalf("expected miles rounded to 1 digit, got %s", rec.Miles)
	}

	rec2, err := r.Resolve(context.Background(), "omaha, ne", "lincoln, NE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec2.Method != MethodCached {
		t.Fatalf("expected cached, got %q", rec2.Method)
	}
	if !rec2.Miles.Equal(rec.Miles) {
		t.Fatalf("cached miles mismatch: %s vs %s", rec2.Miles, rec.Miles)
	}
	if p.matrixCalls != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", p.matrixCalls)
	}
}

func TestResolveFallbackGeocoded(t *testing.T) {
	c := newMemCache()
	p := &fakeProvider{
		matrixErr: maps.ErrNotRoutable,
		coords: map[string][2]float64{
			"Aspen, CO": {39.1911, -106.8175},
			"Omaha, NE": {41.2565, -95.9345},
		},
	}
	r := NewResolver(c, p, "testmaps", 24*time.Hour, time.Hour, 1.3)

	rec, err := r.Resolve(context.Background(), "Aspen, CO", "Omaha, NE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Method != MethodFallbackGeocoded {
		t.Fatalf("expected fallback, got %q", rec.Method)
	}
	// Great-circle Aspen->Omaha is ~570 miles; the road factor scales it.
	if rec.Miles.IntPart() < 600 || rec.Miles.IntPart() > 900 {
		t.Fatalf("implausible fallback miles: %s", rec.Miles)
	}
	if ttl := c.ttls[Key("Aspen, CO", "Omaha, NE")]; ttl != time.Hour {
		t.Fatalf("fallback record must use the shorter TTL, got %v", ttl)
	}
}

func TestResolveGeocodingFailed(t *testing.T) {
	c := newMemCache()
	p := &fakeProvider{
		matrixErr:  maps.ErrNotRoutable,
		geocodeErr: map[string]error{"nowhere": errors.New("zero results")},
		coords:     map[string][2]float64{"Omaha, NE": {41.2565, -95.9345}},
	}
	r := NewResolver(c, p, "testmaps", 24*time.Hour, time.Hour, 1.3)

	_, err := r.Resolve(context.Background(), "nowhere", "Omaha, NE")
	if !IsGeocodingFailed(err) {
		t.Fatalf("expected geocoding_failed, got %v", err)
	}
}

func TestResolveProviderTransportFailure(t *testing.T) {
	c := newMemCache()
	p := &fakeProvider{matrixErr: errors.New("connection reset")}
	r := NewResolver(c, p, "testmaps", 24*time.Hour, time.Hour, 1.3)

	_, err := r.Resolve(context.Background(), "a", "b")
	var de *Error
	if !errors.As(err, &de) || de.Kind != KindProviderFailed {
		t.Fatalf("expected provider_failed, got %v", err)
	}
	if p.geocodeCalls != 0 {
		t.Fatal("transport failure must not trigger geocode fallback")
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Omaha to Lincoln is roughly 50 miles great-circle.
	miles := haversineMiles(41.2565, -95.9345, 40.8136, -96.7026)
	if miles < 45 || miles > 55 {
		t.Fatalf("implausible haversine result: %v", miles)
	}
	if haversineMiles(41.0, -95.0, 41.0, -95.0) != 0 {
		t.Fatal("identical points must be zero miles")
	}
}
