package remote

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/alessio/shellescape"
	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/artpar/templdeploy/internal/core/remote"
	"github.com/rs/zerolog"
)

// Request is one connection attempt handed to a Transport.
type Request struct {
	Address string // host:port
	User    string
	Key     []byte // nil when no key material is available
	Script  string
}

// Transport runs a script on a remote host.
//
// A non-nil error means the connection or session failed before the command
// could report an exit status; the returned result then carries exit code 1
// and a descriptive stderr. A command that ran and exited non-zero is
// reported through the result with a nil error.
type Transport interface {
	Run(ctx context.Context, req Request) (domain.RemoteCommandResult, error)
}

// ExecutorConfig configures the remote executor.
type ExecutorConfig struct {
	// Testing forces every execution into the skipped state (SSH_TESTING).
	Testing bool

	// Defaults used when a destination does not carry its own values
	// (SSH_USER, SSH_PRIVATEKEY, SSH_KEYFILE).
	DefaultUser       string
	DefaultPrivateKey string
	DefaultKeyFile    string

	// Backoff is the retry schedule. Default: 5 attempts, 2s doubling.
	Backoff remote.Backoff

	// Sleep waits between attempts. Default: a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Executor runs remote commands with retry on transient connection errors.
// Each Execute call is independent and safe for concurrent use.
type Executor struct {
	transport Transport
	keys      *KeyCache
	config    ExecutorConfig
	logger    zerolog.Logger
}

// NewExecutor creates a remote executor.
func NewExecutor(transport Transport, keys *KeyCache, config ExecutorConfig, logger zerolog.Logger) *Executor {
	defaults := remote.DefaultBackoff()
	if config.Backoff.Attempts == 0 {
		config.Backoff.Attempts = defaults.Attempts
	}
	if config.Backoff.Initial == 0 {
		config.Backoff.Initial = defaults.Initial
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}
	if keys == nil {
		keys = DefaultKeyCache()
	}

	return &Executor{
		transport: transport,
		keys:      keys,
		config:    config,
		logger:    logger.With().Str("component", "remote").Logger(),
	}
}

// =============================================================================
// Execution
// =============================================================================

// Execute runs cmd on dest.
//
// Mock destinations and test mode short-circuit to a skipped result without
// any connection attempt. Otherwise connection attempts are retried while
// the failure classifies as transient, waiting 2, 4, 8, 16... between
// attempts. A non-nil error is always a *domain.DeployError wrapping
// domain.ErrRemoteCommand; the result is populated either way.
func (e *Executor) Execute(ctx context.Context, dest remote.Destination, cmd remote.Command) (domain.RemoteCommandResult, error) {
	rendered := e.Render(dest, cmd)

	if dest.IsMock() || e.config.Testing {
		e.logger.Info().Str("command", cmd.Script()).Msg("not executed")
		return domain.RemoteCommandResult{
			ExitCode: 0,
			Stderr:   remote.NotExecuted(cmd),
			Skipped:  true,
			Command:  rendered,
		}, nil
	}

	req := Request{
		Address: net.JoinHostPort(dest.Host, strconv.Itoa(e.port(dest))),
		User:    e.user(dest),
		Script:  cmd.Script(),
	}

	key, err := e.resolveKey(dest)
	if err != nil {
		result := domain.RemoteCommandResult{ExitCode: 1, Stderr: err.Error(), Command: rendered}
		return result, domain.NewDeployError("ssh", dest.Host, err.Error(), fmt.Errorf("%w: %w", domain.ErrRemoteCommand, err))
	}
	req.Key = key

	result, connErr := e.run(ctx, dest, req)
	result.Command = rendered
	result.Stderr = remote.TerminalStderr(result.ExitCode, result.Stderr)

	if connErr != nil {
		if result.ExitCode == 0 {
			result.ExitCode = 1
		}
		e.logger.Error().Err(connErr).
			Str("host", dest.Host).
			Int("attempts", result.Attempts).
			Msg("ssh failed and no retry")
		return result, domain.NewDeployError("ssh", dest.Host, connErr.Error(),
			fmt.Errorf("%w: %w", domain.ErrRemoteCommand, connErr))
	}

	if result.Failed() {
		e.logger.Error().
			Str("host", dest.Host).
			Int("exit_code", result.ExitCode).
			Str("stderr", result.Stderr).
			Msg("remote command failed")
		return result, domain.NewDeployError("ssh", dest.Host,
			fmt.Sprintf("exit code %d: %s", result.ExitCode, result.Stderr), domain.ErrRemoteCommand)
	}

	return result, nil
}

// run is the retry loop. It returns the last result and the last connection
// error, nil when the command reported an exit status.
func (e *Executor) run(ctx context.Context, dest remote.Destination, req Request) (domain.RemoteCommandResult, error) {
	var (
		result  domain.RemoteCommandResult
		connErr error
	)

	for attempt := 1; ; attempt++ {
		result, connErr = e.transport.Run(ctx, req)
		result.Attempts = attempt

		if connErr == nil {
			return result, nil
		}
		if remote.Classify(connErr) == remote.Terminal {
			return result, connErr
		}
		if attempt >= e.config.Backoff.Attempts {
			return result, fmt.Errorf("%w after %d attempts: %w", domain.ErrTransientConnection, attempt, connErr)
		}

		delay := e.config.Backoff.Delay(attempt)
		e.logger.Warn().Err(connErr).
			Str("host", dest.Host).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("SSH not connecting, retrying")

		if err := e.config.Sleep(ctx, delay); err != nil {
			return result, err
		}
	}
}

// Render returns the equivalent ssh command line, for dry runs and reports.
func (e *Executor) Render(dest remote.Destination, cmd remote.Command) string {
	args := []string{"ssh", "-p", strconv.Itoa(e.port(dest))}
	if keyFile := e.keyFile(dest); keyFile != "" {
		args = append(args, "-i", keyFile)
	}
	target := dest.Host
	if user := e.user(dest); user != "" {
		target = user + "@" + dest.Host
	}
	args = append(args, target, cmd.Script())
	return shellescape.QuoteCommand(args)
}

// =============================================================================
// Destination Defaults
// =============================================================================

func (e *Executor) port(dest remote.Destination) int {
	if dest.Port != 0 {
		return dest.Port
	}
	return domain.DefaultPort
}

func (e *Executor) user(dest remote.Destination) string {
	if dest.Username != "" {
		return dest.Username
	}
	return e.config.DefaultUser
}

func (e *Executor) keyFile(dest remote.Destination) string {
	if dest.PrivateKey != "" {
		return ""
	}
	if dest.KeyFile != "" {
		return dest.KeyFile
	}
	if e.config.DefaultPrivateKey != "" {
		return ""
	}
	return e.config.DefaultKeyFile
}

// resolveKey returns the key material in precedence order: inline key,
// key file, SSH_PRIVATEKEY, SSH_KEYFILE. A nil key with a nil error means no
// material is available and the transport is left to fail on its own.
func (e *Executor) resolveKey(dest remote.Destination) ([]byte, error) {
	switch {
	case dest.PrivateKey != "":
		return []byte(dest.PrivateKey), nil
	case dest.KeyFile != "":
		return e.keys.Get(dest.KeyFile)
	case e.config.DefaultPrivateKey != "":
		return []byte(e.config.DefaultPrivateKey), nil
	case e.config.DefaultKeyFile != "":
		return e.keys.Get(e.config.DefaultKeyFile)
	default:
		return nil, nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
