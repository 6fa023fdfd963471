package netutil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fixedTimeout(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(fixedTimeout(time.Second), 0)
	body, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestFetchStatusErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(fixedTimeout(time.Second), time.Millisecond)
	_, err := c.Fetch(context.Background(), srv.URL)
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 404 {
		t.Fatalf("expected 404 status error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls.Load())
	}
}

func TestFetchTransportErrorRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Kill the connection to simulate a transport failure.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("hijacking unsupported")
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	c := NewClient(fixedTimeout(time.Second), time.Millisecond)
	body, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if string(body) != "recovered" {
		t.Fatalf("unexpected body: %s", body)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestFetchCancelledContextNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(fixedTimeout(time.Second), time.Millisecond)
	if _, err := c.Fetch(ctx, srv.URL); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if calls.Load() > 1 {
		t.Fatalf("expected at most 1 attempt, got %d", calls.Load())
	}
}

func TestFetchMalformedURL(t *testing.T) {
	c := NewClient(fixedTimeout(time.Second), 0)
	_, err := c.Fetch(context.Background(), "http://bad url with spaces")
	var nonRetryable *NonRetryableError
	if !errors.As(err, &nonRetryable) {
		t.Fatalf("expected NonRetryableError, got %v", err)
	}
}

func TestFetchJSONDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"range":"a1:b2","values":[["x"]]}`))
	}))
	defer srv.Close()

	var out struct {
		Range  string     `json:"range"`
		Values [][]string `json:"values"`
	}
	c := NewClient(fixedTimeout(time.Second), 0)
	if err := FetchJSON(context.Background(), c, srv.URL, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Range != "a1:b2" || len(out.Values) != 1 {
		t.Fatalf("unexpected decode: %+v", out)
	}
}
