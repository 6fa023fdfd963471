package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu      sync.Mutex
	samples []Sample
}

func (cs *captureSink) Persist(_ context.Context, s Sample) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.samples = append(cs.samples, s)
	return nil
}

func (cs *captureSink) snapshot() []Sample {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]Sample, len(cs.samples))
	copy(out, cs.samples)
	return out
}

func TestRecorderDrainsToSink(t *testing.T) {
	sink := &captureSink{}
	r := New(sink, 16, time.Minute)
	r.Start()

	r.Record(ServiceQuote, "build", StatusOK, 42*time.Millisecond)
	r.Record(ServiceMaps, "distance_matrix", StatusError, 900*time.Millisecond)
	r.Stop()

	got := sink.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0].Service != ServiceQuote || got[0].Ms != 42 {
		t.Fatalf("unexpected first sample: %+v", got[0])
	}
	if got[1].Status != StatusError {
		t.Fatalf("expected error status, got %q", got[1].Status)
	}
}

func TestRecorderDropsOldestWhenFull(t *testing.T) {
	sink := &captureSink{}
	r := New(sink, 2, time.Minute)
	// Worker not started: the channel fills up.
	r.Record(ServiceCache, "get", StatusOK, 1*time.Millisecond)
	r.Record(ServiceCache, "get", StatusOK, 2*time.Millisecond)
	r.Record(ServiceCache, "get", StatusOK, 3*time.Millisecond)

	if r.Dropped() != 1 {
		t.Fatalf("expected 1 dropped sample, got %d", r.Dropped())
	}

	r.Start()
	r.Stop()
	got := sink.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 surviving samples, got %d", len(got))
	}
	// Oldest was evicted.
	if got[0].Ms != 2 || got[1].Ms != 3 {
		t.Fatalf("expected samples 2ms and 3ms to survive, got %+v", got)
	}
}

func TestRecorderDropsStaleSamples(t *testing.T) {
	sink := &captureSink{}
	r := New(sink, 16, time.Nanosecond)
	r.Record(ServiceQuote, "build", StatusOK, 5*time.Millisecond)
	time.Sleep(time.Millisecond)
	r.Start()
	r.Stop()
	if len(sink.snapshot()) != 0 {
		t.Fatal("expected stale sample to be discarded")
	}
	if r.Dropped() != 1 {
		t.Fatalf("expected drop counter 1, got %d", r.Dropped())
	}
}

func TestScopeStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, StatusOK},
		{"cancelled", context.Canceled, StatusCancelled},
		{"deadline", context.DeadlineExceeded, StatusCancelled},
		{"wrapped cancel", errors.Join(errors.New("op"), context.Canceled), StatusCancelled},
		{"other", errors.New("boom"), StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &captureSink{}
			r := New(sink, 4, time.Minute)
			done := r.Scope(ServiceMaps, "geocode")
			done(tt.err)
			r.Start()
			r.Stop()
			got := sink.snapshot()
			if len(got) != 1 {
				t.Fatalf("expected 1 sample, got %d", len(got))
			}
			if got[0].Status != tt.want {
				t.Fatalf("expected status %q, got %q", tt.want, got[0].Status)
			}
		})
	}
}

func TestTrackPassesErrorThrough(t *testing.T) {
	sink := &captureSink{}
	r := New(sink, 4, time.Minute)
	want := errors.New("boom")
	got := r.Track(ServiceCache, "set", func() error { return want })
	if got != want {
		t.Fatalf("expected error passthrough, got %v", got)
	}
}

func TestValidServiceAndPercentile(t *testing.T) {
	for _, svc := range KnownServices() {
		if !ValidService(svc) {
			t.Fatalf("known service %q rejected", svc)
		}
	}
	if ValidService("billing") {
		t.Fatal("unknown service accepted")
	}
	for _, p := range []int{50, 90, 95, 99} {
		if !ValidPercentile(p) {
			t.Fatalf("percentile %d rejected", p)
		}
	}
	if ValidPercentile(42) {
		t.Fatal("percentile 42 accepted")
	}
}
