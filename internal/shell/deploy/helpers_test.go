package deploy

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/artpar/templdeploy/internal/shell/git"
	sshremote "github.com/artpar/templdeploy/internal/shell/remote"
	transfer "github.com/artpar/templdeploy/internal/shell/sync"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeLoader struct {
	configs map[string]*domain.Config // by directory
	errs    map[string]error
}

func (l *fakeLoader) Load(dir string) (*domain.Config, error) {
	if err, ok := l.errs[dir]; ok {
		return nil, err
	}
	cfg, ok := l.configs[dir]
	if !ok {
		return nil, domain.ErrConfigNotFound
	}
	cfg.Dir = dir
	return cfg, nil
}

func (l *fakeLoader) LoadDependency(baseDir, depPath string) (*domain.Config, error) {
	return l.Load(filepath.Join(baseDir, depPath))
}

type fakeVCS struct {
	branch    string
	branchErr error
	statuses  map[string]git.Status
	outputs   map[string]string
	calls     []string
}

func (v *fakeVCS) CurrentBranch(context.Context, string) (string, error) {
	return v.branch, v.branchErr
}

func (v *fakeVCS) Status(_ context.Context, dir string) (git.Status, error) {
	v.calls = append(v.calls, "status "+dir)
	status, ok := v.statuses[dir]
	if !ok {
		return git.Status{}, git.ErrNotRepository
	}
	return status, nil
}

func (v *fakeVCS) Run(_ context.Context, dir string, args ...string) (string, error) {
	v.calls = append(v.calls, strings.Join(args, " ")+" "+dir)
	return v.outputs[dir], nil
}

// fakeEngine stands in for rsync. Exit codes and panics are keyed by source.
type fakeEngine struct {
	mu        stdsync.Mutex
	runs      []transfer.Invocation
	exitCodes map[string]int
	panicOn   string
}

func (e *fakeEngine) Render(inv transfer.Invocation) string {
	return "rsync -" + inv.ShortFlags + " " + inv.Source + " " + inv.Destination
}

func (e *fakeEngine) Run(_ context.Context, inv transfer.Invocation) (int, string, error) {
	if inv.Source == e.panicOn {
		panic("engine exploded")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs = append(e.runs, inv)
	return e.exitCodes[inv.Source], e.Render(inv), nil
}

func (e *fakeEngine) runCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

// fakeTransport stands in for the SSH connection.
type fakeTransport struct {
	mu       stdsync.Mutex
	requests []sshremote.Request
	results  map[string]domain.RemoteCommandResult // by script
}

func (t *fakeTransport) Run(_ context.Context, req sshremote.Request) (domain.RemoteCommandResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, req)
	return t.results[req.Script], nil
}

func (t *fakeTransport) scripts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, r := range t.requests {
		out = append(out, r.Script)
	}
	return out
}

type fakeRecorder struct {
	runs []*domain.RunReport
	err  error
}

func (r *fakeRecorder) RecordRun(_ context.Context, report *domain.RunReport) error {
	r.runs = append(r.runs, report)
	return r.err
}

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	loader    *fakeLoader
	vcs       *fakeVCS
	engine    *fakeEngine
	transport *fakeTransport
	recorder  *fakeRecorder
	logs      *bytes.Buffer
	orch      *Orchestrator
}

func newFixture(t *testing.T, configs map[string]*domain.Config) *fixture {
	t.Helper()

	f := &fixture{
		loader:    &fakeLoader{configs: configs, errs: map[string]error{}},
		vcs:       &fakeVCS{},
		engine:    &fakeEngine{exitCodes: map[string]int{}},
		transport: &fakeTransport{results: map[string]domain.RemoteCommandResult{}},
		recorder:  &fakeRecorder{},
		logs:      &bytes.Buffer{},
	}

	logger := zerolog.New(f.logs)
	invoker := transfer.NewInvoker(f.engine, logger)
	executor := sshremote.NewExecutor(f.transport, sshremote.NewKeyCache(afero.NewMemMapFs()), sshremote.ExecutorConfig{
		Sleep: func(context.Context, time.Duration) error { return nil },
	}, logger)

	f.orch = NewOrchestrator(f.loader, f.vcs, invoker, executor, f.recorder, logger)
	f.orch.newID = func() string { return "run-1" }
	return f
}

func (f *fixture) countLogs(msg string) int {
	return strings.Count(f.logs.String(), `"message":"`+msg+`"`)
}

func target(host, app string) domain.Target {
	return domain.Target{Host: host, App: app}
}

func requireUnit(t *testing.T, report *domain.RunReport, name string) domain.UnitReport {
	t.Helper()
	for _, u := range report.Units {
		if u.Name == name {
			return u
		}
	}
	require.FailNow(t, "unit not found", name)
	return domain.UnitReport{}
}

var errBroken = errors.New("broken config")
