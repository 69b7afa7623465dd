package sync

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/alessio/shellescape"
	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/artpar/templdeploy/internal/core/remote"
)

// RsyncConfig configures the rsync engine.
type RsyncConfig struct {
	Binary string    // Default: rsync
	Stdout io.Writer // Default: os.Stdout
	Stderr io.Writer // Default: os.Stderr
}

// RsyncEngine runs transfers with the rsync binary.
type RsyncEngine struct {
	config RsyncConfig
}

// NewRsyncEngine creates an rsync engine.
func NewRsyncEngine(config RsyncConfig) *RsyncEngine {
	if config.Binary == "" {
		config.Binary = "rsync"
	}
	if config.Stdout == nil {
		config.Stdout = os.Stdout
	}
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}
	return &RsyncEngine{config: config}
}

// Args returns the rsync arguments of inv. The remote side runs
// "mkdir -p <dir> && rsync" so the destination need not exist.
func (e *RsyncEngine) Args(inv Invocation) []string {
	var args []string
	if inv.ShortFlags != "" {
		args = append(args, "-"+inv.ShortFlags)
	}
	args = append(args, inv.ExtraArgs...)
	args = append(args, "-e", Shell(inv.Port, inv.KeyFile))
	if inv.RemoteDir != "" {
		args = append(args, "--rsync-path=mkdir -p "+remote.QuoteDir(inv.RemoteDir)+" && rsync")
	}
	for _, pattern := range inv.Excludes {
		args = append(args, "--exclude="+pattern)
	}
	return append(args, inv.Source, inv.Destination)
}

// Render implements Engine.
func (e *RsyncEngine) Render(inv Invocation) string {
	return shellescape.QuoteCommand(append([]string{e.config.Binary}, e.Args(inv)...))
}

// Run implements Engine.
func (e *RsyncEngine) Run(ctx context.Context, inv Invocation) (int, string, error) {
	command := e.Render(inv)

	cmd := exec.CommandContext(ctx, e.config.Binary, e.Args(inv)...)
	cmd.Dir = inv.WorkDir
	cmd.Stdout = e.config.Stdout
	cmd.Stderr = e.config.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, command, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), command, nil
	}
	return -1, command, err
}

// Shell returns the remote shell rsync connects with.
func Shell(port int, keyFile string) string {
	if port == 0 {
		port = domain.DefaultPort
	}
	args := []string{"ssh", "-p", strconv.Itoa(port)}
	if keyFile != "" {
		args = append(args, "-i", keyFile)
	}
	return shellescape.QuoteCommand(args)
}
