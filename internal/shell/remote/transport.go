package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/artpar/templdeploy/internal/core/crypto"
	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig configures the SSH transport.
type SSHConfig struct {
	ConnectTimeout time.Duration // Default: 10 seconds
	CommandTimeout time.Duration // Default: 10 minutes

	// KnownHostsFile enables host key verification. Empty disables it.
	KnownHostsFile string

	// KeyPassphrase decrypts passphrase protected keys.
	KeyPassphrase string
}

// DefaultSSHConfig returns the default configuration.
func DefaultSSHConfig() SSHConfig {
	return SSHConfig{
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 10 * time.Minute,
	}
}

// SSHTransport implements Transport with golang.org/x/crypto/ssh. Every Run
// opens its own connection.
type SSHTransport struct {
	config SSHConfig
	logger zerolog.Logger
}

// NewSSHTransport creates a new SSH transport.
func NewSSHTransport(config SSHConfig, logger zerolog.Logger) *SSHTransport {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.CommandTimeout == 0 {
		config.CommandTimeout = 10 * time.Minute
	}
	return &SSHTransport{
		config: config,
		logger: logger.With().Str("component", "ssh").Logger(),
	}
}

// Run connects to req.Address, runs req.Script and returns its exit status
// and output.
func (t *SSHTransport) Run(ctx context.Context, req Request) (domain.RemoteCommandResult, error) {
	clientConfig, err := t.clientConfig(req)
	if err != nil {
		return connectionFailed(err), err
	}

	client, err := t.dial(ctx, req.Address, clientConfig)
	if err != nil {
		err = fmt.Errorf("SSH dial %s: %w", req.Address, err)
		return connectionFailed(err), err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrSessionFailed, err)
		return connectionFailed(err), err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(req.Script)
	}()

	timer := time.NewTimer(t.config.CommandTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return domain.RemoteCommandResult{ExitCode: 1, Stdout: stdout.String(), Stderr: ctx.Err().Error()}, nil
	case <-timer.C:
		msg := fmt.Sprintf("%v after %v", ErrTimeout, t.config.CommandTimeout)
		return domain.RemoteCommandResult{ExitCode: 1, Stdout: stdout.String(), Stderr: msg}, nil
	case err := <-done:
		result := domain.RemoteCommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return result, nil
		}

		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		var missing *ssh.ExitMissingError
		if errors.As(err, &missing) {
			result.ExitCode = 1
			result.Stderr += "Execution failed: " + err.Error()
			return result, nil
		}

		err = fmt.Errorf("%w: %v", ErrSessionFailed, err)
		return connectionFailed(err), err
	}
}

// dial opens the TCP connection with the context and then runs the SSH
// handshake on it.
func (t *SSHTransport) dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: t.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(t.config.ConnectTimeout))
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Handshake done; the command timeout governs from here.
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

func (t *SSHTransport) clientConfig(req Request) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if len(req.Key) > 0 {
		signer, err := crypto.ParseSigner(req.Key, t.config.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("parse SSH private key: %w", err)
		}
		t.logger.Debug().
			Str("address", req.Address).
			Str("user", req.User).
			Str("fingerprint", crypto.Fingerprint(signer)).
			Msg("authenticating with public key")
		auth = append(auth, ssh.PublicKeys(signer))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if t.config.KnownHostsFile != "" {
		cb, err := knownhosts.New(expandHome(t.config.KnownHostsFile))
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            req.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.config.ConnectTimeout,
	}, nil
}

func connectionFailed(err error) domain.RemoteCommandResult {
	return domain.RemoteCommandResult{
		ExitCode: 1,
		Stderr:   "SSH connection failed: " + err.Error(),
	}
}
