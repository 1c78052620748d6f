// Package window implements bucketed sliding-window accounting over a shared
// counter store.
//
// # Overview
//
// Time is cut into buckets of Period/BatchTime seconds. Every process limiting
// the same service increments one hash field of the bucket the current
// timestamp falls into:
//
//	key:   "<name>:<floor(ts / (Period/BatchTime))>"
//	field: ts mod BatchTime
//
// A bucket expires 2*Period/BatchTime seconds after the event that created it.
// The expiry is set once and never refreshed.
//
// # Admission
//
// Allow approximates a trailing window by adding the whole current bucket to
// the part of a previous bucket whose sub-slots lie strictly past
// ts mod (Period/BatchTime). The previous bucket is the one holding
// ts - BatchTime*Period. With BatchTime == 1 this is the adjacent bucket; with
// other values it lies further back.
//
//	accountant, err := window.New(window.Config{
//		Service: window.Service{Name: "facebook", Limit: 600, Period: 600, BatchTime: 1},
//		Store:   redisstore.New(rdb, redisstore.Options{}),
//	})
//	if err != nil {
//		return err
//	}
//
//	now := time.Now().Unix()
//	ok, err := accountant.Allow(ctx, now)
//	if err == nil && ok {
//		err = accountant.Record(ctx, now)
//	}
//
// Allow never writes. Allow and Record are separate store round trips, so
// concurrent callers can both be admitted for the last slot. Counts are
// approximate by construction.
//
// # Errors
//
// Store failures are returned as *StoreError values matching
// ErrStoreUnavailable, unless the cause is ErrMalformedBucket or a canceled
// context. The accountant does not retry and never turns a store failure into
// a decision.
package window
