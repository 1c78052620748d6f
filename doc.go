/*
Package turbocharger provides distributed rate limiting for calls to external
services. Processes that name the same service share one approximated sliding
window in Redis and wait for room in it before doing their work.

Rate Limiting (pkg/ratelimit):
  - window: bucketed sliding-window accounting over a counter store
  - invoker: run work once admitted, retrying every batch interval
  - monitor: periodic window usage sampling

Counter Stores (pkg/store):
  - redisstore: Redis hashes through go-redis
  - memstore: single-process store for tests and local runs

Supporting packages:
  - config: YAML configuration with defaults and a services catalog
  - metrics: Prometheus instrumentation

Example usage:

	import (
		"github.com/redis/go-redis/v9"

		"github.com/vnykmshr/turbocharger/pkg/ratelimit/invoker"
		"github.com/vnykmshr/turbocharger/pkg/ratelimit/window"
		"github.com/vnykmshr/turbocharger/pkg/store/redisstore"
	)

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	inv, _ := invoker.New(invoker.Config{
		Service: window.Service{Name: "facebook", Limit: 600, Period: 600, BatchTime: 1}.WithRetryLimit(60),
		Store:   redisstore.New(rdb, redisstore.Options{}),
	})

	err := inv.Do(ctx, func(ctx context.Context) error {
		return callFacebook(ctx)
	})
*/
package turbocharger
