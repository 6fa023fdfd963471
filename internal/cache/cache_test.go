package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestErrorFormatting(t *testing.T) {
	inner := errors.New("connection refused")
	err := unavailable("get", inner)
	if got := err.Error(); got != "cache get: unavailable: connection refused" {
		t.Fatalf("unexpected message: %q", got)
	}
	if !errors.Is(err, inner) {
		t.Fatal("expected Unwrap to reach the inner error")
	}
	if !IsUnavailable(err) {
		t.Fatal("expected IsUnavailable to match")
	}
	if IsUnavailable(codecErr("get_json", inner)) {
		t.Fatal("codec error must not match IsUnavailable")
	}
}

func TestErrorWithoutCause(t *testing.T) {
	err := &Error{Kind: KindNotFound, Op: "get"}
	if got := err.Error(); got != "cache get: not_found" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestNewStoreRejectsBadURL(t *testing.T) {
	if _, err := NewStore("://not-a-url", 0); err == nil {
		t.Fatal("expected error for malformed URL")
	}
}

func TestWithObserverReportsOperations(t *testing.T) {
	// Port 1 refuses connections, so every operation fails fast; the
	// observer must still see each op with its error.
	s, err := NewStore("redis://127.0.0.1:1/0", 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var ops []string
	var lastErr error
	m := s.WithObserver(func(op string, opErr error, elapsed time.Duration) {
		ops = append(ops, op)
		lastErr = opErr
	})

	ctx := context.Background()
	m.GetBytes(ctx, "k")
	m.SetBytes(ctx, "k", []byte("v"), 0)
	m.SetNX(ctx, "lock", "tok", time.Minute)

	if want := []string{"get", "set", "setnx"}; len(ops) != len(want) || ops[0] != want[0] || ops[1] != want[1] || ops[2] != want[2] {
		t.Fatalf("observed ops = %v, want %v", ops, want)
	}
	if lastErr == nil {
		t.Fatal("expected operation errors against an unreachable backend")
	}

	// The unobserved receiver keeps running silently.
	s.GetBytes(ctx, "k")
	if len(ops) != 3 {
		t.Fatalf("raw store must not report, got %d ops", len(ops))
	}
}
