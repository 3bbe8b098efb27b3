// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/securai/cmd"
	"github.com/xkilldash9x/securai/internal/observability"
)

// main wires OS signals into the command context so an interrupted run can
// drain its workers and persist partial results before the process exits.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := cmd.Execute(ctx)
	stop()
	observability.Sync()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// A signal-driven shutdown is a clean exit, not a failure.
			os.Exit(0)
		}
		os.Exit(1)
	}
}
