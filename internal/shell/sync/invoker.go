// Package sync drives one file synchronization per deployment unit.
package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/templdeploy/internal/core/deployment"
	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"
)

// Request describes one transfer.
type Request struct {
	// WorkDir is the directory relative source paths resolve against.
	WorkDir string

	Source      string // local directory
	Destination string // user@host:dir
	RemoteDir   string // created on the remote side before the transfer
	Excludes    []string
	Flags       string // e.g. "avzh" or "avz --delete"

	// Port and KeyFile configure the ssh shell the engine connects with.
	Port    int
	KeyFile string

	SkipTransfer bool
	DryRun       bool
}

// RequestFor builds the transfer request of a resolved deployment unit.
func RequestFor(p domain.EffectiveParameters, workDir string) Request {
	return Request{
		WorkDir:      workDir,
		Source:       p.SourceDir,
		Destination:  p.Destination(),
		RemoteDir:    p.DestinationDir,
		Excludes:     p.Excludes,
		Flags:        p.TransferFlags,
		Port:         p.Port,
		KeyFile:      p.Identity.KeyFile,
		SkipTransfer: p.SkipTransfer,
		DryRun:       p.DryRun,
	}
}

// Invocation is a fully normalized engine call.
type Invocation struct {
	WorkDir     string
	Source      string
	Destination string
	RemoteDir   string
	Excludes    []string
	ShortFlags  string   // single letter flags without the leading dash
	ExtraArgs   []string // anything else given in the flags string
	Port        int
	KeyFile     string
}

// Engine performs the byte level transfer.
type Engine interface {
	// Render returns the command line Run would execute. No I/O.
	Render(inv Invocation) string

	// Run performs the transfer and returns the engine exit code and the
	// executed command line. err is non-nil only when the engine could not
	// be run or reported an engine level failure.
	Run(ctx context.Context, inv Invocation) (exitCode int, command string, err error)
}

// Invoker issues transfers through an Engine. It never retries.
type Invoker struct {
	engine Engine
	logger zerolog.Logger
}

// NewInvoker creates a sync invoker.
func NewInvoker(engine Engine, logger zerolog.Logger) *Invoker {
	return &Invoker{
		engine: engine,
		logger: logger.With().Str("component", "sync").Logger(),
	}
}

// Sync runs one transfer. A skipped request never reaches the engine; a dry
// run only renders the command.
func (i *Invoker) Sync(ctx context.Context, req Request) domain.TransferResult {
	if req.SkipTransfer {
		i.logger.Info().Str("destination", req.Destination).Msg("transfer skipped")
		return domain.TransferResult{Skipped: true}
	}

	inv, err := NewInvocation(req)
	if err != nil {
		return domain.TransferResult{
			ExitCode: -1,
			Err:      domain.NewDeployError("sync", req.Destination, err.Error(), err),
		}
	}

	if req.DryRun {
		command := i.engine.Render(inv)
		i.logger.Info().Str("command", command).Msg("dry run")
		return domain.TransferResult{Command: command, DryRun: true}
	}

	i.logger.Info().Str("command", i.engine.Render(inv)).Msg("transfer started")
	code, command, err := i.engine.Run(ctx, inv)
	result := domain.TransferResult{ExitCode: code, Command: command}

	switch {
	case err != nil:
		result.Err = domain.NewDeployError("sync", req.Destination, err.Error(),
			fmt.Errorf("%w: %w", domain.ErrTransfer, err))
	case code != 0:
		result.Err = domain.NewDeployError("sync", req.Destination,
			fmt.Sprintf("exit code %d", code), domain.ErrTransfer)
	}

	if result.Err != nil {
		i.logger.Error().Err(result.Err).Int("exit_code", code).Msg("transfer failed")
	} else {
		i.logger.Info().Int("exit_code", code).Msg("transfer finished")
	}
	return result
}

// NewInvocation normalizes a request: source and destination get a trailing
// separator and the flags string is split into short flags and extra
// arguments.
func NewInvocation(req Request) (Invocation, error) {
	short, extra, err := SplitFlags(req.Flags)
	if err != nil {
		return Invocation{}, err
	}

	return Invocation{
		WorkDir:     req.WorkDir,
		Source:      deployment.NormalizeDir(req.Source),
		Destination: deployment.NormalizeDir(req.Destination),
		RemoteDir:   deployment.NormalizeDir(req.RemoteDir),
		Excludes:    append([]string(nil), req.Excludes...),
		ShortFlags:  short,
		ExtraArgs:   extra,
		Port:        req.Port,
		KeyFile:     req.KeyFile,
	}, nil
}

// SplitFlags splits a transfer flags string with shell word rules. The first
// word that is not a long option is the cluster of single letter flags, with
// or without its leading dash; every other word is passed through.
func SplitFlags(flags string) (short string, extra []string, err error) {
	words, err := shellwords.Parse(flags)
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid transfer flags %q: %v", domain.ErrConfiguration, flags, err)
	}

	for _, w := range words {
		if short == "" && !strings.HasPrefix(w, "--") {
			short = strings.TrimPrefix(w, "-")
			continue
		}
		extra = append(extra, w)
	}
	return short, extra, nil
}
