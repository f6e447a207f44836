// Command veil validates rule sets, runs scenarios against the intercept
// engine and reads back journaled sessions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/veil/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmd := cli.NewRootCommand()
	cmd.SilenceErrors = true
	err := cmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		// Commands report ExitErrors through their formatter; flag and
		// argument errors from cobra are printed here.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "veil:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
