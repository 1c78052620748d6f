// Package metrics provides Prometheus instrumentation for turbocharger components.
//
// # Overview
//
// The registry covers the three moving parts of the limiter:
//   - the rate accountant (admission checks, allowed and denied decisions, recorded events)
//   - the counter store (failed operations by name)
//   - the invoker (retries, exhausted calls, time spent waiting)
//
// The usage monitor additionally publishes the last sampled window count.
//
// # Quick Start
//
//	reg := prometheus.NewRegistry()
//	registry := metrics.NewRegistry(reg)
//
//	inv, _ := invoker.New(invoker.Config{
//		Service: service,
//		Store:   store,
//		Metrics: registry,
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// # Available Metrics
//
//   - turbocharger_window_checks_total{service}
//   - turbocharger_window_allowed_total{service}
//   - turbocharger_window_denied_total{service}
//   - turbocharger_window_recorded_total{service}
//   - turbocharger_window_usage{service}
//   - turbocharger_store_errors_total{service,op}
//   - turbocharger_invoker_retries_total{service}
//   - turbocharger_invoker_exhausted_total{service}
//   - turbocharger_invoker_wait_duration_seconds{service}
//
// # Custom Registry
//
// DefaultRegistry registers against prometheus.DefaultRegisterer at init time.
// Use New with a Config to isolate metrics or change the namespace:
//
//	registry := metrics.New(metrics.Config{
//		Registry:  prometheus.NewRegistry(),
//		Namespace: "myapp",
//		Labels:    prometheus.Labels{"region": "eu"},
//	})
package metrics
