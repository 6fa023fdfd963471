package cache

import (
	"context"
	"encoding/json"
	"time"
)

// GetJSON reads and decodes a JSON value. A missing key returns the zero
// value and found=false with a nil error.
func GetJSON[T any](ctx context.Context, s *Store, key string) (T, bool, error) {
	var zero T
	b, found, err := s.GetBytes(ctx, key)
	if err != nil || !found {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return zero, false, codecErr("get_json", err)
	}
	return v, true, nil
}

// SetJSON encodes and writes a JSON value. ttl <= 0 means no expiry.
func SetJSON[T any](ctx context.Context, s *Store, key string, value T, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return codecErr("set_json", err)
	}
	return s.SetBytes(ctx, key, b, ttl)
}
