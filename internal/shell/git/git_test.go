package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a repository with one commit on branch main.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	run("init", "-q")
	run("symbolic-ref", "HEAD", "refs/heads/main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hi\n"), 0o644))
	run("add", "README")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestCurrentBranch(t *testing.T) {
	dir := initRepo(t)

	branch, err := Open(dir).CurrentBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestStatus(t *testing.T) {
	dir := initRepo(t)
	repo := Open(dir)

	status, err := repo.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Clean)
	assert.Equal(t, "clean", status.String())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("changed\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("new\n"), 0o644))

	status, err = repo.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Clean)
	assert.Equal(t, []string{" M README", "?? new.txt"}, status.Entries)
	assert.Equal(t, "modified (2 changes)", status.String())
}

func TestRun_NotRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	dir := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))

	_, err := Open(dir).Status(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestRun_ReturnsStdout(t *testing.T) {
	dir := initRepo(t)

	out, err := Open(dir).Run(context.Background(), "log", "--format=%s")
	require.NoError(t, err)
	assert.Equal(t, "initial\n", out)
}
