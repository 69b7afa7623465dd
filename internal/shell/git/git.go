// Package git queries local repositories through the git binary.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotRepository is returned when a directory is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Repo is a local git work tree.
type Repo struct {
	Dir    string
	Binary string // Default: git
}

// Open returns the repository rooted at or containing dir.
func Open(dir string) *Repo {
	return &Repo{Dir: filepath.Clean(dir)}
}

// Status is the working tree state reported by git status --porcelain.
type Status struct {
	Clean   bool
	Entries []string // porcelain lines, e.g. " M deploy.go"
}

// String renders the status the way it is reported per dependency.
func (s Status) String() string {
	if s.Clean {
		return "clean"
	}
	return fmt.Sprintf("modified (%d changes)", len(s.Entries))
}

// CurrentBranch returns the name of the checked out branch.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git current-branch failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Status reports whether the work tree has uncommitted changes.
func (r *Repo) Status(ctx context.Context) (Status, error) {
	out, err := r.Run(ctx, "status", "--porcelain")
	if err != nil {
		return Status{}, fmt.Errorf("git status failed: %w", err)
	}

	var entries []string
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			entries = append(entries, line)
		}
	}
	return Status{Clean: len(entries) == 0, Entries: entries}, nil
}

// Run runs git with args in the repository and returns its standard output.
func (r *Repo) Run(ctx context.Context, args ...string) (string, error) {
	binary := r.Binary
	if binary == "" {
		binary = "git"
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "not a git repository") {
			return "", fmt.Errorf("%w: %s", ErrNotRepository, r.Dir)
		}
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), msg, err)
	}
	return stdout.String(), nil
}
