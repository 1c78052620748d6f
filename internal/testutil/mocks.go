package testutil

import (
	"context"
	"sync"
	"time"
)

// MockClock implements a Clock with controllable time.
// Rate limiter tests use it to avoid real delays.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock starting at the given time.
// If zero time is provided, uses current time.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

// NewMockClockAt creates a MockClock frozen at a Unix timestamp.
func NewMockClockAt(unix int64) *MockClock {
	return NewMockClock(time.Unix(unix, 0))
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock clock to a specific time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// MockSleeper records requested sleeps and advances an optional clock
// instead of blocking.
type MockSleeper struct {
	mu     sync.Mutex
	clock  *MockClock
	sleeps []time.Duration
	hook   func(n int)
}

// NewMockSleeper creates a sleeper that advances clock by every slept
// duration. A nil clock only records.
func NewMockSleeper(clock *MockClock) *MockSleeper {
	return &MockSleeper{clock: clock}
}

// OnSleep registers fn to run after the n-th sleep (1-based) was recorded.
func (s *MockSleeper) OnSleep(fn func(n int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// Sleep records d, advances the clock and returns early only if ctx is done.
func (s *MockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	n := len(s.sleeps)
	hook := s.hook
	s.mu.Unlock()

	if s.clock != nil {
		s.clock.Advance(d)
	}
	if hook != nil {
		hook(n)
	}
	return nil
}

// Sleeps returns a copy of all recorded durations.
func (s *MockSleeper) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

// Count returns the number of recorded sleeps.
func (s *MockSleeper) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sleeps)
}
