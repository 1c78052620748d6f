// Package memstore provides an in-process counter store with key expiry.
//
// It implements the same operations as the Redis store and is meant for tests
// and single-process use. Expired keys are dropped lazily on access.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Clock provides the current time for expiry.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time { return time.Now() }

// Config holds configuration for a memory store.
type Config struct {
	// Clock drives key expiry. Defaults to SystemClock.
	Clock Clock
}

type entry struct {
	fields    map[string]int64
	expiresAt time.Time
}

// Store is a concurrency-safe map of hash keys.
type Store struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]*entry
	reads   int
	writes  int
	failure error
}

// New creates an empty memory store.
func New(config Config) *Store {
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	return &Store{
		clock:   config.Clock,
		entries: make(map[string]*entry),
	}
}

// Exists reports whether key is present and not expired.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return false, err
	}
	s.reads++
	return s.lookup(key) != nil, nil
}

// IncrementField adds delta to field of key, creating both when absent.
func (s *Store) IncrementField(ctx context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return 0, err
	}
	s.writes++

	e := s.lookup(key)
	if e == nil {
		e = &entry{fields: make(map[string]int64)}
		s.entries[key] = e
	}
	e.fields[field] += delta
	return e.fields[field], nil
}

// Expire sets the time to live of key. Absent keys are left alone.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	s.writes++

	e := s.lookup(key)
	if e == nil {
		return nil
	}
	if ttl <= 0 {
		delete(s.entries, key)
		return nil
	}
	e.expiresAt = s.clock.Now().Add(ttl)
	return nil
}

// ReadFieldValues returns all field values of key.
func (s *Store) ReadFieldValues(ctx context.Context, key string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.reads++

	e := s.lookup(key)
	if e == nil {
		return nil, nil
	}
	values := make([]int64, 0, len(e.fields))
	for _, v := range e.fields {
		values = append(values, v)
	}
	return values, nil
}

// ReadAllFields returns a copy of all field/value pairs of key.
func (s *Store) ReadAllFields(ctx context.Context, key string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.reads++

	return s.copyFields(key), nil
}

// Fields returns a copy of the fields of key without counting a read.
func (s *Store) Fields(key string) map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyFields(key)
}

// TTL returns the remaining time to live of key. The second result is false
// when the key is absent or has no expiry.
func (s *Store) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil || e.expiresAt.IsZero() {
		return 0, false
	}
	return e.expiresAt.Sub(s.clock.Now()), true
}

// Keys returns the live keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		if s.lookup(key) != nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Reads returns the number of read operations served.
func (s *Store) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Writes returns the number of increment and expire operations served.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// SetFailure makes every following operation fail with err. Nil restores service.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// Flush removes all keys and resets the counters.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	s.reads = 0
	s.writes = 0
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.failure
}

// lookup returns the live entry for key, purging it when expired.
// Callers must hold s.mu.
func (s *Store) lookup(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *Store) copyFields(key string) map[string]int64 {
	e := s.lookup(key)
	if e == nil {
		return map[string]int64{}
	}
	fields := make(map[string]int64, len(e.fields))
	for k, v := range e.fields {
		fields[k] = v
	}
	return fields
}
