// Package remote runs commands on remote hosts over SSH with retry and
// backoff.
package remote

import "errors"

var (
	// ErrKeyUnreadable is returned when a key file cannot be read.
	ErrKeyUnreadable = errors.New("SSH key file unreadable")

	// ErrTimeout is returned when a remote command exceeds its timeout.
	ErrTimeout = errors.New("remote command timed out")

	// ErrSessionFailed is returned when a session cannot be opened on an
	// established connection.
	ErrSessionFailed = errors.New("SSH session failed")
)
