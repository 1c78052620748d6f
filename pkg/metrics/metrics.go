// Package metrics provides Prometheus instrumentation for turbocharger components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for turbocharger components.
type Registry struct {
	// Rate Accountant Metrics
	WindowChecks   *prometheus.CounterVec
	WindowAllowed  *prometheus.CounterVec
	WindowDenied   *prometheus.CounterVec
	WindowRecorded *prometheus.CounterVec
	WindowUsage    *prometheus.GaugeVec
	StoreErrors    *prometheus.CounterVec

	// Invoker Metrics
	InvokerRetries   *prometheus.CounterVec
	InvokerExhausted *prometheus.CounterVec
	InvokerWaitTime  *prometheus.HistogramVec
}

// DefaultRegistry is the default metrics registry used by turbocharger components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	config := DefaultConfig()
	config.Registry = reg
	return New(config)
}

// New creates a metrics registry from config. A nil config.Registry falls back
// to prometheus.DefaultRegisterer, an empty namespace to "turbocharger".
func New(config Config) *Registry {
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if config.Namespace == "" {
		config.Namespace = defaultNamespace
	}

	factory := promauto.With(config.Registry)
	ns := config.Namespace
	labels := config.Labels

	return &Registry{
		WindowChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "window",
				Name:        "checks_total",
				Help:        "Total number of admission checks",
				ConstLabels: labels,
			},
			[]string{"service"},
		),

		WindowAllowed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "window",
				Name:        "allowed_total",
				Help:        "Total number of admission checks that allowed an event",
				ConstLabels: labels,
			},
			[]string{"service"},
		),

		WindowDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "window",
				Name:        "denied_total",
				Help:        "Total number of admission checks that denied an event",
				ConstLabels: labels,
			},
			[]string{"service"},
		),

		WindowRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "window",
				Name:        "recorded_total",
				Help:        "Total number of events recorded in buckets",
				ConstLabels: labels,
			},
			[]string{"service"},
		),

		WindowUsage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "window",
				Name:        "usage",
				Help:        "Events counted in the approximated sliding window at last sample",
				ConstLabels: labels,
			},
			[]string{"service"},
		),

		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "store",
				Name:        "errors_total",
				Help:        "Total number of failed counter store operations",
				ConstLabels: labels,
			},
			[]string{"service", "op"},
		),

		InvokerRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "invoker",
				Name:        "retries_total",
				Help:        "Total number of retries after a denied admission",
				ConstLabels: labels,
			},
			[]string{"service"},
		),

		InvokerExhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "invoker",
				Name:        "exhausted_total",
				Help:        "Total number of calls that spent their retry budget",
				ConstLabels: labels,
			},
			[]string{"service"},
		),

		InvokerWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "invoker",
				Name:        "wait_duration_seconds",
				Help:        "Time spent waiting for admission before the work ran",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"service"},
		),
	}
}
