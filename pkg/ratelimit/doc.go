/*
Package ratelimit groups the building blocks of turbocharger's shared rate
limits.

  - window: the Accountant records events in time buckets of a counter store
    and answers whether another event fits the service's sliding window
  - invoker: the Invoker checks admission, waits BatchTime seconds between
    denied checks and runs the caller's work once admitted
  - monitor: samples window usage on a cron schedule for dashboards

Window counts are approximate. Admission and recording are two separate
store round trips, so processes racing for the last slot can over-admit.

	inv, err := invoker.New(invoker.Config{
		Service: window.Service{Name: "dummy_service", Limit: 3, Period: 4, BatchTime: 1},
		Store:   store,
	})
	if err != nil {
		return err
	}
	if err := inv.Do(ctx, work); errors.Is(err, invoker.ErrRateExhausted) {
		// retry limit spent
	}

All types are safe for concurrent use. Blocking calls take a context and
stop waiting once it is done.
*/
package ratelimit
