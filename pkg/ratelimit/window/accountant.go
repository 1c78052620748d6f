package window

import (
	"context"
	"strconv"

	"github.com/vnykmshr/turbocharger/pkg/common/validation"
	"github.com/vnykmshr/turbocharger/pkg/metrics"
)

// Config holds configuration for a rate accountant.
type Config struct {
	// Service is the rate-limited resource being accounted.
	Service Service

	// Store is the shared counter store.
	Store Store

	// Metrics receives admission and store failure counters. Nil disables metrics.
	Metrics *metrics.Registry
}

// Accountant owns the bucket arithmetic of one service: it records events in
// the counter store and decides whether a new event is admissible.
//
// Allow and Record are not atomic with each other. Two processes racing on the
// last free slot can both observe Allow == true and both record, so the window
// may be over-admitted under contention.
type Accountant struct {
	service Service
	store   Store
	metrics *metrics.Registry
}

// New creates an accountant for config.Service backed by config.Store.
func New(config Config) (*Accountant, error) {
	if err := config.Service.Validate(); err != nil {
		return nil, err
	}
	if config.Store == nil {
		return nil, validation.ValidateNotNil("window", "store", nil)
	}

	return &Accountant{
		service: config.Service,
		store:   config.Store,
		metrics: config.Metrics,
	}, nil
}

// Service returns the descriptor this accountant was built with.
func (a *Accountant) Service() Service {
	return a.service
}

// BucketID returns the bucket a Unix timestamp falls into.
func (a *Accountant) BucketID(ts int64) int64 {
	return floorDiv(ts, a.service.BucketWidth())
}

// BucketKey returns the store key of the bucket holding ts.
func (a *Accountant) BucketKey(ts int64) string {
	return a.service.Name + ":" + strconv.FormatInt(a.BucketID(ts), 10)
}

// SubSlot returns the hash field an event at ts is counted under.
func (a *Accountant) SubSlot(ts int64) int64 {
	return floorMod(ts, int64(a.service.BatchTime))
}

// Record counts one event at ts. A bucket created by this call gets its TTL
// set; existing buckets keep theirs. Record does not check admission.
func (a *Accountant) Record(ctx context.Context, ts int64) error {
	key := a.BucketKey(ts)
	field := strconv.FormatInt(a.SubSlot(ts), 10)

	existed, err := a.store.Exists(ctx, key)
	if err != nil {
		return a.storeError("exists", key, err)
	}

	if _, err := a.store.IncrementField(ctx, key, field, 1); err != nil {
		return a.storeError("increment_field", key, err)
	}

	if !existed {
		if err := a.store.Expire(ctx, key, a.service.TTL()); err != nil {
			return a.storeError("expire", key, err)
		}
	}

	if a.metrics != nil {
		a.metrics.WindowRecorded.WithLabelValues(a.service.Name).Inc()
	}
	return nil
}

// Count returns the number of events in the approximated sliding window
// ending at ts: the whole current bucket plus the previous bucket's sub-slots
// that lie past the boundary.
//
// The previous bucket is looked up at ts - BatchTime*Period. For BatchTime
// values other than 1 this is not the bucket adjacent to the current one.
func (a *Accountant) Count(ctx context.Context, ts int64) (int64, error) {
	key := a.BucketKey(ts)
	values, err := a.store.ReadFieldValues(ctx, key)
	if err != nil {
		return 0, a.storeError("read_field_values", key, err)
	}

	var current int64
	for _, v := range values {
		current += v
	}

	previousKey := a.BucketKey(ts - int64(a.service.BatchTime)*int64(a.service.Period))
	boundary := floorMod(ts, a.service.BucketWidth())

	fields, err := a.store.ReadAllFields(ctx, previousKey)
	if err != nil {
		return 0, a.storeError("read_all_fields", previousKey, err)
	}

	var previous int64
	for field, v := range fields {
		slot, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		if slot > boundary {
			previous += v
		}
	}

	return current + previous, nil
}

// Allow reports whether one more event at ts stays within the limit.
// It only reads from the store.
func (a *Accountant) Allow(ctx context.Context, ts int64) (bool, error) {
	count, err := a.Count(ctx, ts)
	if err != nil {
		return false, err
	}

	allowed := count < int64(a.service.Limit)

	if a.metrics != nil {
		a.metrics.WindowChecks.WithLabelValues(a.service.Name).Inc()
		if allowed {
			a.metrics.WindowAllowed.WithLabelValues(a.service.Name).Inc()
		} else {
			a.metrics.WindowDenied.WithLabelValues(a.service.Name).Inc()
		}
	}

	return allowed, nil
}

// Remaining returns how many more events the window ending at ts admits.
func (a *Accountant) Remaining(ctx context.Context, ts int64) (int64, error) {
	count, err := a.Count(ctx, ts)
	if err != nil {
		return 0, err
	}
	return max(0, int64(a.service.Limit)-count), nil
}

func (a *Accountant) storeError(op, key string, err error) error {
	if a.metrics != nil {
		a.metrics.StoreErrors.WithLabelValues(a.service.Name, op).Inc()
	}
	return &StoreError{Service: a.service.Name, Op: op, Key: key, Err: err}
}

// floorDiv divides rounding towards negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// floorMod returns a modulo b with the sign of b.
func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}
