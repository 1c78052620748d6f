package window

import (
	"context"
	"errors"
	"fmt"

	cerrors "github.com/vnykmshr/turbocharger/pkg/common/errors"
)

// ErrStoreUnavailable is matched by errors the accountant returns when the
// store could not be reached or did not answer in time.
var ErrStoreUnavailable = cerrors.ErrStoreUnavailable

// ErrMalformedBucket is returned by stores when a bucket holds a value that
// is not an integer count.
var ErrMalformedBucket = errors.New("malformed bucket data")

// StoreError represents a failed counter store operation.
type StoreError struct {
	Service string
	Op      string
	Key     string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("window %s: store %s on %q: %v", e.Service, e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is reports store unavailability unless the cause is malformed bucket data
// or a canceled context.
func (e *StoreError) Is(target error) bool {
	if target != ErrStoreUnavailable {
		return false
	}
	return !errors.Is(e.Err, ErrMalformedBucket) && !errors.Is(e.Err, context.Canceled)
}
