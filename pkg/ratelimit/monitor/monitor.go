// Package monitor periodically samples the sliding-window usage of rate
// limited services and exports it as a gauge.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ssgreg/logf"

	cerrors "github.com/vnykmshr/turbocharger/pkg/common/errors"
	"github.com/vnykmshr/turbocharger/pkg/metrics"
	"github.com/vnykmshr/turbocharger/pkg/ratelimit/window"
)

// DefaultSchedule samples every ten seconds.
const DefaultSchedule = "@every 10s"

// Clock provides sampling timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config holds configuration for a usage monitor.
type Config struct {
	// Accountants are sampled in order on every tick.
	Accountants []*window.Accountant

	// Schedule is a cron spec with optional seconds or a descriptor such as
	// "@every 10s". Defaults to DefaultSchedule.
	Schedule string

	// Timeout bounds one sampling pass. Zero means no bound.
	Timeout time.Duration

	Clock   Clock
	Metrics *metrics.Registry
	Logger  *logf.Logger
}

// Monitor samples Accountant.Count on a cron schedule.
type Monitor struct {
	accountants []*window.Accountant
	timeout     time.Duration
	clock       Clock
	metrics     *metrics.Registry
	logger      *logf.Logger
	cron        *cron.Cron

	mu   sync.RWMutex
	last map[string]int64
}

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a stopped monitor.
func New(config Config) (*Monitor, error) {
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	if config.Logger == nil {
		config.Logger = logf.NewDisabledLogger()
	}

	m := &Monitor{
		accountants: config.Accountants,
		timeout:     config.Timeout,
		clock:       config.Clock,
		metrics:     config.Metrics,
		logger:      config.Logger,
		last:        make(map[string]int64),
	}

	m.cron = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := m.cron.AddFunc(config.Schedule, m.tick); err != nil {
		return nil, cerrors.NewValidationError("monitor", "schedule", config.Schedule, err.Error()).
			WithHint(`use a cron spec such as "*/10 * * * * *" or "@every 10s"`)
	}
	return m, nil
}

// Start begins sampling in a background goroutine.
func (m *Monitor) Start() {
	m.cron.Start()
}

// Stop stops the schedule. The returned context is done once a running
// sample has finished.
func (m *Monitor) Stop() context.Context {
	return m.cron.Stop()
}

// SampleNow counts every accountant's window at the current time, updates
// the usage gauge and returns the counts by service name. Services whose
// store read failed are left out and their errors joined.
func (m *Monitor) SampleNow(ctx context.Context) (map[string]int64, error) {
	now := m.clock.Now().Unix()
	usage := make(map[string]int64, len(m.accountants))
	var errs []error

	for _, a := range m.accountants {
		name := a.Service().Name
		count, err := a.Count(ctx, now)
		if err != nil {
			m.logger.Warn("window usage sample failed", logf.String("service", name), logf.Error(err))
			errs = append(errs, err)
			continue
		}

		usage[name] = count
		if m.metrics != nil {
			m.metrics.WindowUsage.WithLabelValues(name).Set(float64(count))
		}
	}

	m.mu.Lock()
	for name, count := range usage {
		m.last[name] = count
	}
	m.mu.Unlock()

	return usage, errors.Join(errs...)
}

// Last returns the most recent successful sample per service.
func (m *Monitor) Last() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last := make(map[string]int64, len(m.last))
	for name, count := range m.last {
		last[name] = count
	}
	return last
}

func (m *Monitor) tick() {
	ctx := context.Background()
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	_, _ = m.SampleNow(ctx)
}
