package window

import (
	"context"
	"time"
)

// Store is the shared counter store the accountant reads and writes.
// Keys hold maps of field to integer count. Implementations must be safe for
// concurrent use and must report absent keys as empty reads, not errors.
type Store interface {
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// IncrementField adds delta to field of key, creating both when absent,
	// and returns the new value.
	IncrementField(ctx context.Context, key, field string, delta int64) (int64, error)

	// Expire sets the time to live of key. It is a no-op for absent keys.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// ReadFieldValues returns all field values of key in no particular order.
	ReadFieldValues(ctx context.Context, key string) ([]int64, error)

	// ReadAllFields returns all field/value pairs of key.
	ReadAllFields(ctx context.Context, key string) (map[string]int64, error)
}
