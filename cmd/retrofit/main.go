// Command retrofit manages energy-retrofit programs and participants.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/petrijr/retrofit/internal/cli"
)

func main() {
	// Match GOMAXPROCS to the container CPU quota.
	_, _ = maxprocs.Set()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
