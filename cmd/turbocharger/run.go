package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os/exec"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/ssgreg/logf"

	"github.com/vnykmshr/turbocharger/internal/logging"
	cerrors "github.com/vnykmshr/turbocharger/pkg/common/errors"
	"github.com/vnykmshr/turbocharger/pkg/config"
	"github.com/vnykmshr/turbocharger/pkg/metrics"
	"github.com/vnykmshr/turbocharger/pkg/ratelimit/invoker"
	"github.com/vnykmshr/turbocharger/pkg/ratelimit/monitor"
	"github.com/vnykmshr/turbocharger/pkg/ratelimit/window"
	"github.com/vnykmshr/turbocharger/pkg/store/memstore"
	"github.com/vnykmshr/turbocharger/pkg/store/redisstore"
)

// Exit codes from sysexits.h.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 64
	exitUnavailable = 69
	exitConfig      = 78
	exitTempFail    = 75
	exitInterrupted = 130
)

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, "turbocharger:", err)
		return exitUsage
	}

	cfg, err := config.LoadYAML(opts.configPath)
	if err != nil {
		fmt.Fprintln(stderr, "turbocharger:", err)
		return exitConfig
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = opts.metricsAddr
	}

	if opts.printConfig {
		if err := cfg.WriteYAML(stdout); err != nil {
			fmt.Fprintln(stderr, "turbocharger:", err)
			return exitFailure
		}
		return exitOK
	}

	service, err := cfg.Service(opts.service)
	if err != nil {
		fmt.Fprintln(stderr, "turbocharger:", err)
		return exitConfig
	}

	logCfg := cfg.Log
	logCfg.Writer = stderr
	logger, closeLogger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintln(stderr, "turbocharger:", err)
		return exitConfig
	}
	defer closeLogger()
	logger = logger.With(logf.String("service", service.Name))

	store, health, closeStore := openStore(opts.store, cfg)
	defer closeStore()

	var (
		promRegistry *prometheus.Registry
		registry     *metrics.Registry
	)
	if cfg.Metrics.Enabled {
		promRegistry = prometheus.NewRegistry()
		registry = metrics.New(metrics.Config{
			Enabled:   true,
			Registry:  promRegistry,
			Namespace: cfg.Metrics.Namespace,
		})
	}

	inv, err := invoker.New(invoker.Config{
		Service: service,
		Store:   store,
		Logger:  logger,
		Metrics: registry,
	})
	if err != nil {
		fmt.Fprintln(stderr, "turbocharger:", err)
		return exitConfig
	}

	if cfg.Metrics.Enabled {
		mon, err := monitor.New(monitor.Config{
			Accountants: []*window.Accountant{inv.Accountant()},
			Schedule:    cfg.Metrics.Schedule,
			Timeout:     cfg.Timeout,
			Metrics:     registry,
			Logger:      logger,
		})
		if err != nil {
			fmt.Fprintln(stderr, "turbocharger:", err)
			return exitConfig
		}
		mon.Start()
		defer mon.Stop()

		shutdown, err := serve(cfg.Metrics.Addr, newRouter(promRegistry, health), logger)
		if err != nil {
			logger.Error("metrics endpoint unavailable", logf.Error(err))
		} else {
			defer shutdown()
		}
	}

	err = inv.Do(ctx, func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, opts.command[0], opts.command[1:]...)
		cmd.Stdin = stdin
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		return cmd.Run()
	})

	code := exitCode(err)
	if code != exitOK {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			logger.Error("command not run", logf.Error(err), logf.Int("exit_code", code))
		}
	}
	return code
}

// openStore returns the counter store, an optional health probe and a close func.
func openStore(kind string, cfg *config.Config) (window.Store, pinger, func()) {
	if kind == storeMemory {
		return memstore.New(memstore.Config{}), nil, func() {}
	}

	client := redis.NewClient(cfg.RedisOptions())
	store := redisstore.New(client, redisstore.Options{Timeout: cfg.Timeout})
	return store, store, func() { _ = client.Close() }
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &exitErr):
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return exitInterrupted
	case errors.Is(err, invoker.ErrRateExhausted):
		return exitTempFail
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, window.ErrStoreUnavailable):
		return exitUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return exitInterrupted
	case cerrors.IsValidationError(err):
		return exitConfig
	default:
		return exitFailure
	}
}
