// Package cache is a typed façade over Redis: JSON blobs, counters, sorted
// sets, capped streams, key scans, and a best-effort distributed lock.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ObserveFunc receives the outcome of one completed store operation.
type ObserveFunc func(op string, err error, elapsed time.Duration)

// Store wraps a Redis client and bounds every operation with a short
// per-operation timeout so a slow store cannot stall the quote path.
type Store struct {
	rdb       *redis.Client
	opTimeout time.Duration
	observe   ObserveFunc
}

// NewStore parses a redis:// URL and returns a connected store. The
// connection itself is verified lazily; call Ping for an explicit check.
func NewStore(rawURL string, opTimeout time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse cache URL: %w", err)
	}
	return &Store{rdb: redis.NewClient(opts), opTimeout: opTimeout}, nil
}

// WithObserver returns a view of the store that reports the outcome of every
// operation to obs. The underlying client and timeout are shared with the
// receiver. The latency sink must keep writing through an unobserved view so
// its own persistence is not re-reported.
func (s *Store) WithObserver(obs ObserveFunc) *Store {
	cp := *s
	cp.observe = obs
	return &cp
}

func (s *Store) track(op string, start time.Time, err *error) {
	if s.observe != nil {
		s.observe(op, *err, time.Since(start))
	}
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.rdb.Close() }

// Ping verifies store reachability.
func (s *Store) Ping(ctx context.Context) (err error) {
	defer s.track("ping", time.Now(), &err)
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// GetBytes returns the raw value at key. A missing key returns found=false
// with a nil error.
func (s *Store) GetBytes(ctx context.Context, key string) (val []byte, found bool, err error) {
	defer s.track("get", time.Now(), &err)
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("get", err)
	}
	return b, true, nil
}

// SetBytes writes a raw value. ttl <= 0 means no expiry.
func (s *Store) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) (err error) {
	defer s.track("set", time.Now(), &err)
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

// Delete removes keys. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, keys ...string) (err error) {
	if len(keys) == 0 {
		return nil
	}
	defer s.track("delete", time.Now(), &err)
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Incr increments an integer counter by one and returns the new value.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	return s.IncrBy(ctx, key, 1)
}

// IncrBy increments an integer counter and returns the new value.
func (s *Store) IncrBy(ctx context.Context, key string, delta int64) (n int64, err error) {
	defer s.track("incrby", time.Now(), &err)
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err = s.rdb.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, unavailable("incrby", err)
	}
	return n, nil
}

// GetInt reads an integer counter. A missing key returns 0, found=false.
func (s *Store) GetInt(ctx context.Context, key string) (n int64, found bool, err error) {
	defer s.track("get", time.Now(), &err)
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("get", err)
	}
	n, err = strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, codecErr("get", err)
	}
	return n, true, nil
}

// ScoredMember is a sorted-set member with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// AddSorted inserts a member into a sorted set.
func (s *Store) AddSorted(ctx context.Context, key string, score float64, member string) (err error) {
	defer s.track("zadd", time.Now(), &err)
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return unavailable("zadd", err)
	}
	return nil
}

// SortedMembers returns up to limit members of a sorted set in ascending
// score order. limit <= 0 returns all members.
func (s *Store) SortedMembers(ctx context.Context, key string, limit int) (members []ScoredMember, err error) {
	defer s.track("zrange", time.Now(), &err)
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	zs, err := s.rdb.ZRangeWithScores(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, unavailable("zrange", err)
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		m, _ := z.Member.(string)
		out = append(out, ScoredMember{Member: m, Score: z.Score})
	}
	return out, nil
}

// TrimSorted keeps at most maxLen members with the highest scores.
func (s *Store) TrimSorted(ctx context.Context, key string, maxLen int) (err error) {
	if maxLen <= 0 {
		return nil
	}
	defer s.track("zremrangebyrank", time.Now(), &err)
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.rdb.ZRemRangeByRank(ctx, key, 0, int64(-maxLen-1)).Err(); err != nil {
		return unavailable("zremrangebyrank", err)
	}
	return nil
}

// StreamEntry is one entry of a capped stream.
type StreamEntry struct {
	ID     string
	Fields map[string]string
}

// StreamAppend appends fields to a stream, capping it at approximately
// maxLen entries.
func (s *Store) StreamAppend(ctx context.Context, key string, fields map[string]any, maxLen int64) (err error) {
	defer s.track("xadd", time.Now(), &err)
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	args := &redis.XAddArgs{Stream: key, Values: fields}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return unavailable("xadd", err)
	}
	return nil
}

// StreamRecent returns up to n most-recent entries of a stream, newest first.
func (s *Store) StreamRecent(ctx context.Context, key string, n int64) (entries []StreamEntry, err error) {
	defer s.track("xrevrange", time.Now(), &err)
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	msgs, err := s.rdb.XRevRangeN(ctx, key, "+", "-", n).Result()
	if err != nil {
		return nil, unavailable("xrevrange", err)
	}
	out := make([]StreamEntry, 0, len(msgs))
	for _, m := range msgs {
		fields := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			if sv, ok := v.(string); ok {
				fields[k] = sv
			}
		}
		out = append(out, StreamEntry{ID: m.ID, Fields: fields})
	}
	return out, nil
}

// ScanKeys collects every key matching prefix. Intended for admin cache
// clears, not hot paths; it iterates the keyspace in batches.
func (s *Store) ScanKeys(ctx context.Context, prefix string) (keys []string, err error) {
	defer s.track("scan", time.Now(), &err)
	var cursor uint64
	for {
		opCtx, cancel := s.opCtx(ctx)
		batch, next, err := s.rdb.Scan(opCtx, cursor, prefix+"*", 512).Result()
		cancel()
		if err != nil {
			return nil, unavailable("scan", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// DeleteByPrefix removes every key matching prefix and returns the count.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.ScanKeys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for i := 0; i < len(keys); i += 512 {
		end := i + 512
		if end > len(keys) {
			end = len(keys)
		}
		if err := s.Delete(ctx, keys[i:end]...); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}

// SetNX writes key only if absent. Returns whether the write happened.
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (ok bool, err error) {
	defer s.track("setnx", time.Now(), &err)
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	ok, err = s.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", err)
	}
	return ok, nil
}

// GetString reads a string value. A missing key returns found=false.
func (s *Store) GetString(ctx context.Context, key string) (val string, found bool, err error) {
	defer s.track("get", time.Now(), &err)
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", err)
	}
	return v, true, nil
}
