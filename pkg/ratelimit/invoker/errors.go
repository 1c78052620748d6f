package invoker

import (
	"errors"

	cerrors "github.com/vnykmshr/turbocharger/pkg/common/errors"
)

// RateTimeoutMessage is the message of every RateTimeoutError.
const RateTimeoutMessage = "Rate exceeded, could not perform another request within given retries limit."

// ErrRateExhausted is matched by every RateTimeoutError.
var ErrRateExhausted = errors.New("rate exhausted")

// RateTimeoutError is returned when admission was still refused after the
// service's retry limit was spent.
type RateTimeoutError struct {
	Service string
	Retries int
}

func (e *RateTimeoutError) Error() string {
	return RateTimeoutMessage
}

// Is matches ErrRateExhausted and the common ErrRateLimited.
func (e *RateTimeoutError) Is(target error) bool {
	return target == ErrRateExhausted || target == cerrors.ErrRateLimited
}
