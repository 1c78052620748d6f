// Package redisstore implements the window counter store on Redis hashes.
//
// Buckets are plain Redis hashes: HINCRBY records an event, HVALS and HGETALL
// read a bucket back, EXISTS and EXPIRE manage the bucket lifetime. Any
// redis.UniversalClient works, including cluster and sentinel clients.
package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	cctx "github.com/vnykmshr/turbocharger/pkg/common/context"
	cerrors "github.com/vnykmshr/turbocharger/pkg/common/errors"
	"github.com/vnykmshr/turbocharger/pkg/ratelimit/window"
)

// DefaultTimeout bounds every Redis round trip when Options.Timeout is zero.
const DefaultTimeout = 500 * time.Millisecond

// Options holds configuration for the Redis store.
type Options struct {
	// Timeout is the timeout for a single Redis operation. Negative disables it.
	Timeout time.Duration
}

// Store is a window.Store backed by Redis.
type Store struct {
	client  redis.UniversalClient
	timeout time.Duration
}

var _ window.Store = (*Store)(nil)

// New creates a Redis counter store. The caller keeps ownership of client.
func New(client redis.UniversalClient, opts Options) *Store {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Store{client: client, timeout: opts.Timeout}
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := cctx.WithTimeoutOrCancel(ctx, s.timeout)
	defer cancel()

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, opError(ctx, "EXISTS", key, err)
	}
	return n > 0, nil
}

// IncrementField runs HINCRBY key field delta.
func (s *Store) IncrementField(ctx context.Context, key, field string, delta int64) (int64, error) {
	ctx, cancel := cctx.WithTimeoutOrCancel(ctx, s.timeout)
	defer cancel()

	n, err := s.client.HIncrBy(ctx, key, field, delta).Result()
	if err != nil {
		return 0, opError(ctx, "HINCRBY", key, err)
	}
	return n, nil
}

// Expire runs EXPIRE key ttl. Redis ignores absent keys.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := cctx.WithTimeoutOrCancel(ctx, s.timeout)
	defer cancel()

	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return opError(ctx, "EXPIRE", key, err)
	}
	return nil
}

// ReadFieldValues runs HVALS key.
func (s *Store) ReadFieldValues(ctx context.Context, key string) ([]int64, error) {
	ctx, cancel := cctx.WithTimeoutOrCancel(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.HVals(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, opError(ctx, "HVALS", key, err)
	}

	values := make([]int64, 0, len(raw))
	for _, r := range raw {
		v, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			return nil, opError(ctx, "HVALS", key, errors.Join(window.ErrMalformedBucket, err))
		}
		values = append(values, v)
	}
	return values, nil
}

// ReadAllFields runs HGETALL key.
func (s *Store) ReadAllFields(ctx context.Context, key string) (map[string]int64, error) {
	ctx, cancel := cctx.WithTimeoutOrCancel(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.HGetAll(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, opError(ctx, "HGETALL", key, err)
	}

	fields := make(map[string]int64, len(raw))
	for field, r := range raw {
		v, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			return nil, opError(ctx, "HGETALL", key, errors.Join(window.ErrMalformedBucket, err))
		}
		fields[field] = v
	}
	return fields, nil
}

// Ping checks connectivity to Redis.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := cctx.WithTimeoutOrCancel(ctx, s.timeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return opError(ctx, "PING", "", err)
	}
	return nil
}

func opError(ctx context.Context, op, key string, err error) error {
	if cctx.IsTimedOut(ctx) {
		err = errors.Join(cerrors.ErrTimeout, err)
	}
	opErr := cerrors.NewOperationError("redisstore", op, err)
	if key != "" {
		opErr = opErr.WithContext("key=" + key)
	}
	return opErr
}
