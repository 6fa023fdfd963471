package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lease is a best-effort distributed lock acquired via SETNX with a TTL.
// The holder must re-check ownership before any irreversible step; a lease
// that expired mid-work may have been taken by another process.
type Lease struct {
	store *Store
	key   string
	token string
}

// AcquireLease attempts to take the lock at key. Returns (nil, false, nil)
// when another holder owns it.
func (s *Store) AcquireLease(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	token := uuid.NewString()
	ok, err := s.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{store: s, key: key, token: token}, true, nil
}

// StillHeld reports whether this process still owns the lease.
func (l *Lease) StillHeld(ctx context.Context) (bool, error) {
	v, found, err := l.store.GetString(ctx, l.key)
	if err != nil {
		return false, err
	}
	return found && v == l.token, nil
}

// Release drops the lease if still owned. Releasing an expired or stolen
// lease is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	held, err := l.StillHeld(ctx)
	if err != nil || !held {
		return err
	}
	return l.store.Delete(ctx, l.key)
}
