package main

import (
	"flag"
	"fmt"
	"io"
)

type options struct {
	configPath  string
	service     string
	store       string
	metricsAddr string
	printConfig bool
	command     []string
}

const (
	storeRedis  = "redis"
	storeMemory = "memory"
)

func newFlagSet(output io.Writer, opts *options) *flag.FlagSet {
	if output == nil {
		output = io.Discard
	}
	fs := flag.NewFlagSet("turbocharger", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "turbocharger.yml", "config file path")
	fs.StringVar(&opts.service, "service", "", "service name from the services catalog")
	fs.StringVar(&opts.store, "store", storeRedis, "counter store: redis or memory")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	fs.BoolVar(&opts.printConfig, "print-config", false, "print the effective config and exit")
	fs.Usage = func() {
		printUsage(output)
	}
	return fs
}

func parseArgs(args []string, output io.Writer) (options, error) {
	var opts options
	fs := newFlagSet(output, &opts)
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.command = fs.Args()

	if opts.store != storeRedis && opts.store != storeMemory {
		return opts, fmt.Errorf("unknown store %q", opts.store)
	}
	if opts.printConfig {
		return opts, nil
	}
	if opts.service == "" {
		return opts, fmt.Errorf("-service is required")
	}
	if len(opts.command) == 0 {
		return opts, fmt.Errorf("no command given")
	}
	return opts, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage")
	fmt.Fprintln(w, "  turbocharger [flags] -- command [args...]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags")
	fmt.Fprintln(w, "  -config string        config file path (default turbocharger.yml)")
	fmt.Fprintln(w, "  -service string       service name from the services catalog")
	fmt.Fprintln(w, "  -store string         counter store: redis or memory (default redis)")
	fmt.Fprintln(w, "  -metrics-addr string  serve /metrics and /healthz on this address")
	fmt.Fprintln(w, "  -print-config         print the effective config and exit")
}
