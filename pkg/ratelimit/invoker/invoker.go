package invoker

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/ssgreg/logf"

	cctx "github.com/vnykmshr/turbocharger/pkg/common/context"
	"github.com/vnykmshr/turbocharger/pkg/common/validation"
	"github.com/vnykmshr/turbocharger/pkg/metrics"
	"github.com/vnykmshr/turbocharger/pkg/ratelimit/window"
)

// Config holds configuration for an invoker.
type Config struct {
	// Service is the rate-limited resource. Its RetryLimit caps retries.
	Service window.Service

	// Store is the shared counter store.
	Store window.Store

	// Clock provides admission timestamps. Defaults to SystemClock.
	Clock Clock

	// Sleeper waits between attempts. Defaults to TimerSleeper.
	Sleeper Sleeper

	// Logger receives debug messages about waits. Defaults to a disabled logger.
	Logger *logf.Logger

	// Metrics receives accountant and invoker metrics. Nil disables metrics.
	Metrics *metrics.Registry

	// Observer, when set, is called synchronously on every state transition.
	Observer func(Transition)
}

// Invoker runs work once the service's sliding window has room for it,
// sleeping Service.BatchTime seconds between denied checks.
//
// The loop runs on the caller's goroutine. Without a retry limit it only ends
// on admission, on a store failure or when ctx is done.
type Invoker struct {
	accountant *window.Accountant
	service    window.Service
	clock      Clock
	sleeper    Sleeper
	logger     *logf.Logger
	metrics    *metrics.Registry
	observer   func(Transition)
}

// New creates an invoker for config.Service.
func New(config Config) (*Invoker, error) {
	accountant, err := window.New(window.Config{
		Service: config.Service,
		Store:   config.Store,
		Metrics: config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	if config.Sleeper == nil {
		config.Sleeper = TimerSleeper{}
	}
	if config.Logger == nil {
		config.Logger = logf.NewDisabledLogger()
	}

	return &Invoker{
		accountant: accountant,
		service:    config.Service,
		clock:      config.Clock,
		sleeper:    config.Sleeper,
		logger:     config.Logger.With(logf.String("service", config.Service.Name)),
		metrics:    config.Metrics,
		observer:   config.Observer,
	}, nil
}

// Accountant returns the accountant the invoker checks admission with.
func (inv *Invoker) Accountant() *window.Accountant {
	return inv.accountant
}

// Do waits for admission, records the event and runs work. The error of
// work is returned unchanged. A spent retry limit yields *RateTimeoutError,
// a store failure a *window.StoreError.
func (inv *Invoker) Do(ctx context.Context, work func(ctx context.Context) error) error {
	if work == nil {
		return validation.ValidateNotNil("invoker", "work", nil)
	}
	_, err := Run(ctx, inv, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, work(ctx)
	})
	return err
}

// Run is Do for work that produces a value.
func Run[T any](ctx context.Context, inv *Invoker, work func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if work == nil {
		return zero, validation.ValidateNotNil("invoker", "work", nil)
	}

	ts, retries, err := inv.admit(ctx)
	if err != nil {
		return zero, err
	}

	result, err := work(ctx)
	inv.transition(Transition{From: Checking, To: Done, Outcome: Completed, Retries: retries, Timestamp: ts, Err: err})
	return result, err
}

// admit drives the Checking/Waiting loop until the event is recorded or the
// call has to end. It returns the admission timestamp and the retry count.
func (inv *Invoker) admit(ctx context.Context) (int64, int, error) {
	policy := inv.newBackOff()
	start := inv.clock.Now()
	retries := 0

	for {
		if cctx.IsCanceled(ctx) {
			return 0, retries, inv.abort(retries, inv.clock.Now().Unix(), ctx.Err())
		}

		now := inv.clock.Now().Unix()
		allowed, err := inv.accountant.Allow(ctx, now)
		if err != nil {
			return 0, retries, inv.abort(retries, now, storeFailure(ctx, err))
		}

		if allowed {
			if err := inv.accountant.Record(ctx, now); err != nil {
				return 0, retries, inv.abort(retries, now, storeFailure(ctx, err))
			}
			if inv.metrics != nil {
				inv.metrics.InvokerWaitTime.WithLabelValues(inv.service.Name).Observe(inv.clock.Now().Sub(start).Seconds())
			}
			return now, retries, nil
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			err := &RateTimeoutError{Service: inv.service.Name, Retries: retries}
			if inv.metrics != nil {
				inv.metrics.InvokerExhausted.WithLabelValues(inv.service.Name).Inc()
			}
			inv.transition(Transition{From: Checking, To: Done, Outcome: Exhausted, Retries: retries, Timestamp: now, Err: err})
			return 0, retries, err
		}

		retries++
		if inv.metrics != nil {
			inv.metrics.InvokerRetries.WithLabelValues(inv.service.Name).Inc()
		}
		inv.transition(Transition{From: Checking, To: Waiting, Retries: retries, Timestamp: now})
		inv.logger.Debug("rate exceeded, waiting for the window to move",
			logf.Int("retries", retries),
			logf.Duration("delay", delay),
		)

		if err := inv.sleeper.Sleep(ctx, delay); err != nil {
			return 0, retries, inv.abort(retries, now, err)
		}
		inv.transition(Transition{From: Waiting, To: Checking, Retries: retries, Timestamp: now})
	}
}

// newBackOff returns the delay policy of one call: a constant
// Service.BatchTime interval, stopping after RetryLimit delays when set.
func (inv *Invoker) newBackOff() backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(inv.service.RetryInterval())
	if inv.service.RetryLimit != nil {
		b = backoff.WithMaxRetries(b, uint64(*inv.service.RetryLimit))
	}
	b.Reset()
	return b
}

// storeFailure reports ctx.Err() instead of err once ctx is done, so a call
// interrupted mid round trip surfaces as cancellation.
func storeFailure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (inv *Invoker) abort(retries int, ts int64, err error) error {
	inv.transition(Transition{From: Checking, To: Done, Outcome: Aborted, Retries: retries, Timestamp: ts, Err: err})
	return err
}

func (inv *Invoker) transition(t Transition) {
	if inv.observer != nil {
		inv.observer(t)
	}
}
