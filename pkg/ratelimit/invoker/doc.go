// Package invoker runs caller work under a sliding-window rate limit.
//
// An Invoker checks admission with a window.Accountant. When the window is
// full it sleeps Service.BatchTime seconds and checks again, up to
// Service.RetryLimit times:
//
//	CHECKING --allowed--> record, run work --> DONE (Completed)
//	CHECKING --denied, retries left--> WAITING --sleep--> CHECKING
//	CHECKING --denied, limit spent--> DONE (Exhausted, *RateTimeoutError)
//	CHECKING --store error or ctx done--> DONE (Aborted)
//
// Basic usage:
//
//	inv, err := invoker.New(invoker.Config{
//		Service: window.Service{Name: "facebook", Limit: 600, Period: 600, BatchTime: 1}.WithRetryLimit(60),
//		Store:   redisstore.New(rdb, redisstore.Options{}),
//	})
//	if err != nil {
//		return err
//	}
//
//	profile, err := invoker.Run(ctx, inv, func(ctx context.Context) (*Profile, error) {
//		return api.FetchProfile(ctx, id)
//	})
//
// The work's own error is returned unchanged. Store failures are returned
// immediately and are not retried. Cancelling ctx ends a wait early.
//
// Clock and Sleeper are injectable, so tests can drive the loop without real
// delays.
package invoker
