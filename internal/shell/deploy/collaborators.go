// Package deploy sequences a deployment run: configuration, optional
// dependencies, the main target and the history record.
package deploy

import (
	"context"
	"errors"

	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/artpar/templdeploy/internal/core/remote"
	"github.com/artpar/templdeploy/internal/shell/git"
	transfer "github.com/artpar/templdeploy/internal/shell/sync"
)

// ErrHistory is returned when a finished run could not be recorded.
var ErrHistory = errors.New("deployment history unavailable")

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// ConfigLoader loads deployment configuration files.
type ConfigLoader interface {
	Load(dir string) (*domain.Config, error)
	LoadDependency(baseDir, depPath string) (*domain.Config, error)
}

// VCS answers version control queries about a directory.
type VCS interface {
	CurrentBranch(ctx context.Context, dir string) (string, error)
	Status(ctx context.Context, dir string) (git.Status, error)
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// Syncer performs one transfer.
type Syncer interface {
	Sync(ctx context.Context, req transfer.Request) domain.TransferResult
}

// RemoteRunner runs, or renders, a remote command.
type RemoteRunner interface {
	Execute(ctx context.Context, dest remote.Destination, cmd remote.Command) (domain.RemoteCommandResult, error)
	Render(dest remote.Destination, cmd remote.Command) string
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, report *domain.RunReport) error
}

// NoOpRecorder discards every run.
type NoOpRecorder struct{}

func (NoOpRecorder) RecordRun(context.Context, *domain.RunReport) error { return nil }

// =============================================================================
// Git Adapter
// =============================================================================

// GitVCS implements VCS with the git binary.
type GitVCS struct {
	Binary string
}

func (g GitVCS) repo(dir string) *git.Repo {
	r := git.Open(dir)
	r.Binary = g.Binary
	return r
}

func (g GitVCS) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return g.repo(dir).CurrentBranch(ctx)
}

func (g GitVCS) Status(ctx context.Context, dir string) (git.Status, error) {
	return g.repo(dir).Status(ctx)
}

func (g GitVCS) Run(ctx context.Context, dir string, args ...string) (string, error) {
	return g.repo(dir).Run(ctx, args...)
}
