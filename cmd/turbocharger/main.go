// Command turbocharger runs a command once the named service's shared
// sliding window admits it.
//
//	turbocharger -config turbocharger.yml -service facebook -- curl https://graph.example/me
//
// The exit code of the command is passed through. A spent retry limit exits
// with 75 (EX_TEMPFAIL), an unreachable counter store with 69 (EX_UNAVAILABLE).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
