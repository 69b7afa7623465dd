package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(afero.NewOsFs(), os.Stdout, os.Stderr)
	cmd.Version = Version + " (built " + BuildTime + ")"

	if err := cmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		return ExitCode(err)
	}
	return ExitSuccess
}
