// Command lingoctl talks to the Lingo backend from a terminal.
//
//	lingoctl [flags] login
//	lingoctl [flags] call GET /v1/api/words '{"page":2}'
//	lingoctl [flags] endpoint translate '{"text":"hello","to":"zh"}'
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
