package window

import (
	"time"

	cerrors "github.com/vnykmshr/turbocharger/pkg/common/errors"
	"github.com/vnykmshr/turbocharger/pkg/common/validation"
)

// Service describes one rate-limited resource. Every process naming the same
// service shares its buckets in the counter store.
type Service struct {
	// Name is the bucket key namespace.
	Name string

	// Limit is the maximum number of admitted events per sliding window.
	Limit int

	// Period is the length of the approximated sliding window in seconds.
	Period int

	// BatchTime is the accounting granularity in seconds. A bucket spans
	// Period/BatchTime seconds and the sub-slot of an event inside its bucket
	// is its timestamp modulo BatchTime.
	BatchTime int

	// RetryLimit caps the invoker's retries after a denied admission.
	// Nil means unlimited.
	RetryLimit *int
}

// NewService creates and validates a service descriptor without a retry limit.
func NewService(name string, limit, period, batchTime int) (Service, error) {
	s := Service{
		Name:      name,
		Limit:     limit,
		Period:    period,
		BatchTime: batchTime,
	}
	if err := s.Validate(); err != nil {
		return Service{}, err
	}
	return s, nil
}

// WithRetryLimit returns a copy of s with the retry limit set to n.
func (s Service) WithRetryLimit(n int) Service {
	s.RetryLimit = &n
	return s
}

// WithUnlimitedRetries returns a copy of s without a retry limit.
func (s Service) WithUnlimitedRetries() Service {
	s.RetryLimit = nil
	return s
}

// Validate checks that the descriptor can be used for bucket arithmetic.
func (s Service) Validate() error {
	if err := validation.ValidateNotEmpty("window", "name", s.Name); err != nil {
		return err
	}
	if err := validation.ValidatePositive("window", "limit", s.Limit); err != nil {
		return err
	}
	if err := validation.ValidatePositive("window", "period", s.Period); err != nil {
		return err
	}
	if err := validation.ValidatePositive("window", "batch_time", s.BatchTime); err != nil {
		return err
	}
	if s.BatchTime > s.Period {
		return cerrors.NewValidationError("window", "batch_time", s.BatchTime, "exceeds period").
			WithHint("a bucket spans period/batch_time seconds and must be at least one second wide")
	}
	if s.RetryLimit != nil {
		if err := validation.ValidateNonNegative("window", "retry_limit", float64(*s.RetryLimit)); err != nil {
			return err
		}
	}
	return nil
}

// BucketWidth returns the span of one bucket in seconds.
func (s Service) BucketWidth() int64 {
	return int64(s.Period / s.BatchTime)
}

// TTL returns how long a bucket lives after its creation.
func (s Service) TTL() time.Duration {
	return time.Duration(2*s.Period/s.BatchTime) * time.Second
}

// RetryInterval returns the pause between two admission attempts.
func (s Service) RetryInterval() time.Duration {
	return time.Duration(s.BatchTime) * time.Second
}
