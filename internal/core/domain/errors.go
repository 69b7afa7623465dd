package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

var (
	// ErrConfiguration is the root of every configuration problem. A
	// configuration error aborts the run, except inside a dependency where it
	// turns into a skip.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransfer is returned when the sync engine reports a non-zero exit or
	// an engine-level error.
	ErrTransfer = errors.New("transfer failed")

	// ErrTransientConnection marks a connection failure that is worth retrying.
	ErrTransientConnection = errors.New("transient connection failure")

	// ErrRemoteCommand is returned when a remote command exits non-zero or the
	// connection fails terminally.
	ErrRemoteCommand = errors.New("remote command failed")

	// ErrDependency is returned when a single dependency could not be deployed.
	ErrDependency = errors.New("dependency failed")
)

// Configuration errors. Each one wraps ErrConfiguration.
var (
	ErrConfigNotFound   = fmt.Errorf("%w: configuration file not found", ErrConfiguration)
	ErrConfigParse      = fmt.Errorf("%w: configuration file is invalid", ErrConfiguration)
	ErrUnknownTarget    = fmt.Errorf("%w: no such target configured", ErrConfiguration)
	ErrHostRequired     = fmt.Errorf("%w: target host is required", ErrConfiguration)
	ErrIdentityRequired = fmt.Errorf("%w: target must define an app or a user", ErrConfiguration)
	ErrNoDestination    = fmt.Errorf("%w: no destination directory can be determined", ErrConfiguration)
	ErrNoUser           = fmt.Errorf("%w: no remote user can be determined", ErrConfiguration)
	ErrInvalidPort      = fmt.Errorf("%w: port must be between 1 and 65535", ErrConfiguration)
)

// DeployError wraps errors with the operation and deployment unit they belong to.
type DeployError struct {
	Op      string // Operation that failed (e.g., "resolve", "sync")
	Unit    string // Deployment unit (target name or dependency path)
	Message string
	Err     error
}

func (e *DeployError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Unit, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// NewDeployError creates a new DeployError.
func NewDeployError(op, unit, message string, err error) *DeployError {
	return &DeployError{
		Op:      op,
		Unit:    unit,
		Message: message,
		Err:     err,
	}
}

// IsConfigurationError reports whether err belongs to the configuration class.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
