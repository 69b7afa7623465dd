package domain

import "time"

// =============================================================================
// Operation Results
// =============================================================================

// RemoteCommandResult is the outcome of one remote command execution.
// Retries happen inside the executor; a returned result is final.
type RemoteCommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string

	// Skipped is true when the command was not sent to any host (mock host,
	// test mode, or dry run).
	Skipped bool

	// Attempts is the number of connection attempts made.
	Attempts int

	// Command is the rendered command line, for reporting.
	Command string
}

// Failed reports whether the remote command exited non-zero.
func (r RemoteCommandResult) Failed() bool {
	return r.ExitCode != 0
}

// TransferResult is the outcome of one sync operation.
type TransferResult struct {
	// ExitCode is the engine exit code. It is meaningless when Skipped.
	ExitCode int

	// Command is the executed or rendered command line. Empty when Skipped.
	Command string

	// Err is the engine-reported error, if any.
	Err error

	Skipped bool
	DryRun  bool
}

// Failed reports whether the transfer failed. A skipped or rendered transfer
// never fails.
func (r TransferResult) Failed() bool {
	if r.Skipped || r.DryRun {
		return false
	}
	return r.Err != nil || r.ExitCode != 0
}

// =============================================================================
// Run Reports
// =============================================================================

// UnitStatus is the final status of one deployment unit.
type UnitStatus string

const (
	UnitSucceeded UnitStatus = "succeeded"
	UnitFailed    UnitStatus = "failed"
	UnitSkipped   UnitStatus = "skipped"
	UnitPlanned   UnitStatus = "planned"
)

// IsValid checks if the unit status is valid.
func (s UnitStatus) IsValid() bool {
	switch s {
	case UnitSucceeded, UnitFailed, UnitSkipped, UnitPlanned:
		return true
	default:
		return false
	}
}

// UnitReport describes what happened to one deployment unit.
type UnitReport struct {
	Name     string
	Kind     UnitKind
	Status   UnitStatus
	Params   *EffectiveParameters
	Transfer *TransferResult
	Remote   *RemoteCommandResult
	Err      error
}

// RunReport describes a whole invocation.
type RunReport struct {
	ID         string
	Target     string
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Units      []UnitReport
}

// Main returns the report of the main target, if it was deployed.
func (r *RunReport) Main() *UnitReport {
	for i := range r.Units {
		if r.Units[i].Kind == UnitMain {
			return &r.Units[i]
		}
	}
	return nil
}

// Failed reports whether any unit failed.
func (r *RunReport) Failed() bool {
	for _, u := range r.Units {
		if u.Status == UnitFailed {
			return true
		}
	}
	return false
}

// Count returns how many units ended in the given status.
func (r *RunReport) Count(status UnitStatus) int {
	n := 0
	for _, u := range r.Units {
		if u.Status == status {
			n++
		}
	}
	return n
}
