package invoker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tutil "github.com/vnykmshr/turbocharger/internal/testutil"
	cerrors "github.com/vnykmshr/turbocharger/pkg/common/errors"
	"github.com/vnykmshr/turbocharger/pkg/metrics"
	"github.com/vnykmshr/turbocharger/pkg/ratelimit/invoker"
	"github.com/vnykmshr/turbocharger/pkg/ratelimit/window"
	"github.com/vnykmshr/turbocharger/pkg/store/memstore"
)

func dummyService() window.Service {
	return window.Service{Name: "dummy_service", Limit: 3, Period: 4, BatchTime: 1}.WithRetryLimit(60)
}

type fixture struct {
	clock   *tutil.MockClock
	sleeper *tutil.MockSleeper
	store   *memstore.Store
	inv     *invoker.Invoker
	trace   []invoker.Transition
}

// newFixture builds an invoker over a fresh memstore. When advance is false
// the sleeper leaves the clock frozen.
func newFixture(t *testing.T, service window.Service, ts int64, advance bool) *fixture {
	t.Helper()

	f := &fixture{clock: tutil.NewMockClockAt(ts)}
	if advance {
		f.sleeper = tutil.NewMockSleeper(f.clock)
	} else {
		f.sleeper = tutil.NewMockSleeper(nil)
	}
	f.store = memstore.New(memstore.Config{Clock: f.clock})

	inv, err := invoker.New(invoker.Config{
		Service:  service,
		Store:    f.store,
		Clock:    f.clock,
		Sleeper:  f.sleeper,
		Observer: func(tr invoker.Transition) { f.trace = append(f.trace, tr) },
	})
	require.NoError(t, err)
	f.inv = inv
	return f
}

func (f *fixture) fill(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.inv.Do(context.Background(), func(context.Context) error { return nil }))
	}
	f.trace = nil
}

func TestNew_Validation(t *testing.T) {
	_, err := invoker.New(invoker.Config{Service: dummyService()})
	require.Error(t, err)
	assert.True(t, cerrors.IsValidationError(err))

	_, err = invoker.New(invoker.Config{
		Service: window.Service{Name: "bad", Limit: 1, Period: 1, BatchTime: 2},
		Store:   memstore.New(memstore.Config{}),
	})
	assert.ErrorIs(t, err, cerrors.ErrInvalidConfiguration)
}

func TestDo_EmptyWindowRunsImmediately(t *testing.T) {
	f := newFixture(t, dummyService(), 1386374420, true)

	calls := 0
	err := f.inv.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, f.sleeper.Count())
	assert.Equal(t, map[string]int64{"0": 1}, f.store.Fields("dummy_service:346593605"))

	require.Len(t, f.trace, 1)
	assert.Equal(t, invoker.Done, f.trace[0].To)
	assert.Equal(t, invoker.Completed, f.trace[0].Outcome)
	assert.Equal(t, int64(1386374420), f.trace[0].Timestamp)
}

func TestRun_ReturnsWorkResult(t *testing.T) {
	f := newFixture(t, dummyService(), 1386374420, true)

	result, err := invoker.Run(context.Background(), f.inv, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestDo_FullWindowEmptiesBeforeRetryLimit(t *testing.T) {
	const ts = 1386374820
	f := newFixture(t, dummyService(), ts, false)
	f.fill(t, 3)

	f.clock.Set(time.Unix(ts+4, 0))

	calls := 0
	err := f.inv.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, f.sleeper.Count())
}

func TestDo_FullWindowWaitsForRoom(t *testing.T) {
	const ts = 1386374820
	f := newFixture(t, dummyService(), ts, true)
	f.fill(t, 3)

	require.NoError(t, f.inv.Do(context.Background(), func(context.Context) error { return nil }))

	sleeps := f.sleeper.Sleeps()
	require.Len(t, sleeps, 4)
	for _, d := range sleeps {
		assert.Equal(t, time.Second, d)
	}
	assert.Equal(t, time.Unix(ts+4, 0), f.clock.Now())

	last := f.trace[len(f.trace)-1]
	assert.Equal(t, invoker.Completed, last.Outcome)
	assert.Equal(t, 4, last.Retries)
	assert.Equal(t, int64(ts+4), last.Timestamp)
}

func TestDo_FullWindowExhaustsRetryLimit(t *testing.T) {
	f := newFixture(t, dummyService(), 1386374120, false)
	f.fill(t, 3)

	called := false
	err := f.inv.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)

	assert.EqualError(t, err, "Rate exceeded, could not perform another request within given retries limit.")
	assert.ErrorIs(t, err, invoker.ErrRateExhausted)
	assert.ErrorIs(t, err, cerrors.ErrRateLimited)
	assert.True(t, cerrors.IsRetryable(err))

	var rte *invoker.RateTimeoutError
	require.ErrorAs(t, err, &rte)
	assert.Equal(t, "dummy_service", rte.Service)
	assert.Equal(t, 60, rte.Retries)
	assert.Equal(t, 60, f.sleeper.Count())

	last := f.trace[len(f.trace)-1]
	assert.Equal(t, invoker.Exhausted, last.Outcome)
	assert.Equal(t, invoker.Done, last.To)
}

func TestDo_DeniedOnceThenAdmitted(t *testing.T) {
	service := window.Service{Name: "facebook", Limit: 1, Period: 600, BatchTime: 1}.WithRetryLimit(2)
	f := newFixture(t, service, 1386374420, false)
	f.fill(t, 1)

	// Admission opens as soon as the first sleep happened.
	f.sleeper.OnSleep(func(int) { f.store.Flush() })

	require.NoError(t, f.inv.Do(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, []time.Duration{time.Second}, f.sleeper.Sleeps())

	var states []string
	for _, tr := range f.trace {
		states = append(states, tr.From.String()+">"+tr.To.String())
	}
	assert.Equal(t, []string{"checking>waiting", "waiting>checking", "checking>done"}, states)
}

func TestDo_RetryLimitOne(t *testing.T) {
	service := window.Service{Name: "facebook", Limit: 1, Period: 600, BatchTime: 1}.WithRetryLimit(1)
	f := newFixture(t, service, 1386374420, false)
	f.fill(t, 1)

	err := f.inv.Do(context.Background(), func(context.Context) error { return nil })
	assert.EqualError(t, err, invoker.RateTimeoutMessage)
	assert.Equal(t, 1, f.sleeper.Count())
}

func TestDo_RetryLimitZeroFailsWithoutSleeping(t *testing.T) {
	service := window.Service{Name: "facebook", Limit: 1, Period: 600, BatchTime: 1}.WithRetryLimit(0)
	f := newFixture(t, service, 1386374420, false)
	f.fill(t, 1)

	err := f.inv.Do(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, invoker.ErrRateExhausted)
	assert.Equal(t, 0, f.sleeper.Count())
}

func TestDo_SleepsBatchTime(t *testing.T) {
	service := window.Service{Name: "batched", Limit: 1, Period: 600, BatchTime: 5}.WithRetryLimit(3)
	f := newFixture(t, service, 1386374420, false)
	f.fill(t, 1)

	err := f.inv.Do(context.Background(), func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, f.sleeper.Sleeps())
}

func TestDo_UnlimitedRetriesEndsOnCancel(t *testing.T) {
	service := window.Service{Name: "facebook", Limit: 1, Period: 600, BatchTime: 1}.WithUnlimitedRetries()
	f := newFixture(t, service, 1386374420, false)
	f.fill(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.sleeper.OnSleep(func(n int) {
		if n == 100 {
			cancel()
		}
	})

	err := f.inv.Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 100, f.sleeper.Count())

	last := f.trace[len(f.trace)-1]
	assert.Equal(t, invoker.Aborted, last.Outcome)
}

func TestDo_WorkErrorIsReturnedVerbatim(t *testing.T) {
	f := newFixture(t, dummyService(), 1386374420, true)
	workErr := errors.New("upstream exploded")

	err := f.inv.Do(context.Background(), func(context.Context) error { return workErr })
	assert.Same(t, workErr, err)

	// the event was still recorded
	assert.Equal(t, map[string]int64{"0": 1}, f.store.Fields("dummy_service:346593605"))

	last := f.trace[len(f.trace)-1]
	assert.Equal(t, invoker.Completed, last.Outcome)
	assert.Same(t, workErr, last.Err)
}

func TestDo_StoreErrorPropagates(t *testing.T) {
	f := newFixture(t, dummyService(), 1386374420, true)
	f.store.SetFailure(cerrors.ErrStoreUnavailable)

	called := false
	err := f.inv.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, 0, f.sleeper.Count())

	var serr *window.StoreError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, window.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, invoker.ErrRateExhausted)

	last := f.trace[len(f.trace)-1]
	assert.Equal(t, invoker.Aborted, last.Outcome)
	assert.Equal(t, 0, last.Retries)
}

func TestDo_StoreErrorWhileWaiting(t *testing.T) {
	service := window.Service{Name: "facebook", Limit: 1, Period: 600, BatchTime: 1}.WithRetryLimit(10)
	f := newFixture(t, service, 1386374420, false)
	f.fill(t, 1)
	f.sleeper.OnSleep(func(n int) {
		if n == 2 {
			f.store.SetFailure(errors.New("connection reset"))
		}
	})

	err := f.inv.Do(context.Background(), func(context.Context) error { return nil })
	var serr *window.StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "read_field_values", serr.Op)
	assert.Equal(t, 2, f.sleeper.Count())
}

// cancelingStore cancels the call's context as a read or write reaches it.
type cancelingStore struct {
	*memstore.Store
	cancel  context.CancelFunc
	onWrite bool
}

func (s *cancelingStore) ReadFieldValues(ctx context.Context, key string) ([]int64, error) {
	if !s.onWrite {
		s.cancel()
	}
	return s.Store.ReadFieldValues(ctx, key)
}

func (s *cancelingStore) Exists(ctx context.Context, key string) (bool, error) {
	if s.onWrite {
		s.cancel()
	}
	return s.Store.Exists(ctx, key)
}

func TestDo_CanceledDuringStoreCall(t *testing.T) {
	for _, tt := range []struct {
		name    string
		onWrite bool
	}{
		{name: "allow", onWrite: false},
		{name: "record", onWrite: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			clock := tutil.NewMockClockAt(1386374420)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			store := &cancelingStore{Store: memstore.New(memstore.Config{Clock: clock}), cancel: cancel, onWrite: tt.onWrite}

			var trace []invoker.Transition
			inv, err := invoker.New(invoker.Config{
				Service:  dummyService(),
				Store:    store,
				Clock:    clock,
				Sleeper:  tutil.NewMockSleeper(clock),
				Observer: func(tr invoker.Transition) { trace = append(trace, tr) },
			})
			require.NoError(t, err)

			called := false
			err = inv.Do(ctx, func(context.Context) error {
				called = true
				return nil
			})
			require.Error(t, err)
			assert.False(t, called)
			assert.ErrorIs(t, err, context.Canceled)
			assert.NotErrorIs(t, err, window.ErrStoreUnavailable)

			require.NotEmpty(t, trace)
			assert.Equal(t, invoker.Aborted, trace[len(trace)-1].Outcome)
		})
	}
}

func TestDo_CanceledBeforeStart(t *testing.T) {
	f := newFixture(t, dummyService(), 1386374420, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.inv.Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.store.Keys())
}

func TestDo_TimerSleeperHonorsDeadline(t *testing.T) {
	store := memstore.New(memstore.Config{})
	service := window.Service{Name: "slow", Limit: 1, Period: 3600, BatchTime: 1}.WithUnlimitedRetries()
	inv, err := invoker.New(invoker.Config{Service: service, Store: store})
	require.NoError(t, err)

	require.NoError(t, inv.Do(context.Background(), func(context.Context) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = inv.Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), tutil.TestTimeout)
}

func TestDo_NilWork(t *testing.T) {
	f := newFixture(t, dummyService(), 1386374420, true)
	err := f.inv.Do(context.Background(), nil)
	assert.True(t, cerrors.IsValidationError(err))
	assert.Empty(t, f.store.Keys())
}

func TestDo_Metrics(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	clock := tutil.NewMockClockAt(1386374420)
	sleeper := tutil.NewMockSleeper(nil)
	store := memstore.New(memstore.Config{Clock: clock})

	service := window.Service{Name: "facebook", Limit: 1, Period: 600, BatchTime: 1}.WithRetryLimit(2)
	inv, err := invoker.New(invoker.Config{
		Service: service,
		Store:   store,
		Clock:   clock,
		Sleeper: sleeper,
		Metrics: reg,
	})
	require.NoError(t, err)

	require.NoError(t, inv.Do(context.Background(), func(context.Context) error { return nil }))
	err = inv.Do(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, invoker.ErrRateExhausted)

	assert.Equal(t, 2.0, testutil.ToFloat64(reg.InvokerRetries.WithLabelValues("facebook")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.InvokerExhausted.WithLabelValues("facebook")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.WindowRecorded.WithLabelValues("facebook")))
	assert.Equal(t, 3.0, testutil.ToFloat64(reg.WindowDenied.WithLabelValues("facebook")))
	assert.Equal(t, 1, testutil.CollectAndCount(reg.InvokerWaitTime))
}

func TestAccountant(t *testing.T) {
	f := newFixture(t, dummyService(), 1386374420, true)
	assert.Equal(t, "dummy_service", f.inv.Accountant().Service().Name)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "checking", invoker.Checking.String())
	assert.Equal(t, "waiting", invoker.Waiting.String())
	assert.Equal(t, "done", invoker.Done.String())
	assert.Equal(t, "unknown", invoker.State(9).String())
	assert.Equal(t, "exhausted", invoker.Exhausted.String())
	assert.Equal(t, "aborted", invoker.Aborted.String())
	assert.Equal(t, "completed", invoker.Completed.String())
	assert.Equal(t, "pending", invoker.Pending.String())
}
