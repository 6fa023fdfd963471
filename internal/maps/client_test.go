package maps

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fescii/Stahla-sub005/internal/netutil"
	"github.com/fescii/Stahla-sub005/internal/recorder"
)

type discardSink struct{}

func (discardSink) Persist(context.Context, recorder.Sample) error { return nil }

func newTestClient(baseURL string) *Client {
	fetcher := netutil.NewClient(func() time.Duration { return time.Second }, 0)
	rec := recorder.New(discardSink{}, 16, time.Minute)
	return NewClient(fetcher, baseURL, "test-key", rec)
}

func TestDistanceMatrixOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mode") != "driving" {
			t.Errorf("expected driving mode, got %q", r.URL.Query().Get("mode"))
		}
		if r.URL.Query().Get("origins") == "" || r.URL.Query().Get("destinations") == "" {
			t.Error("missing origins/destinations")
		}
		w.Write([]byte(`{"status":"OK","rows":[{"elements":[{"status":"OK","distance":{"value":160934},"duration":{"value":5400}}]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	miles, seconds, err := c.DistanceMatrix(context.Background(), "Omaha, NE", "Lincoln, NE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if miles < 99.9 || miles > 100.1 {
		t.Fatalf("expected ~100 miles, got %v", miles)
	}
	if seconds != 5400 {
		t.Fatalf("expected 5400 seconds, got %d", seconds)
	}
}

func TestDistanceMatrixNotRoutable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","rows":[{"elements":[{"status":"ZERO_RESULTS"}]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.DistanceMatrix(context.Background(), "Omaha, NE", "Honolulu, HI")
	if !errors.Is(err, ErrNotRoutable) {
		t.Fatalf("expected ErrNotRoutable, got %v", err)
	}
}

func TestDistanceMatrixProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OVER_QUERY_LIMIT","rows":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.DistanceMatrix(context.Background(), "a", "b")
	if err == nil || errors.Is(err, ErrNotRoutable) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestGeocodeOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","results":[{"geometry":{"location":{"lat":41.2565,"lng":-95.9345}}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	lat, lng, err := c.Geocode(context.Background(), "Omaha, NE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lat != 41.2565 || lng != -95.9345 {
		t.Fatalf("unexpected coordinates: %v, %v", lat, lng)
	}
}

func TestGeocodeZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, _, err := c.Geocode(context.Background(), "nowhere at all"); err == nil {
		t.Fatal("expected error for zero results")
	}
}
