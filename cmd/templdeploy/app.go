package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/adrg/xdg"
	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/artpar/templdeploy/internal/core/remote"
	"github.com/artpar/templdeploy/internal/shell/config"
	"github.com/artpar/templdeploy/internal/shell/deploy"
	sshremote "github.com/artpar/templdeploy/internal/shell/remote"
	"github.com/artpar/templdeploy/internal/shell/store"
	transfer "github.com/artpar/templdeploy/internal/shell/sync"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess      = 0
	ExitConfigError  = 1
	ExitHistoryError = 2
	ExitDeployError  = 3
)

// historyFile is the default database location under the XDG state directory.
const historyFile = "templdeploy/history.db"

// =============================================================================
// App
// =============================================================================

// App holds the wired components of one invocation.
type App struct {
	settings     *Settings
	logger       zerolog.Logger
	orchestrator *deploy.Orchestrator
	history      store.Store // nil when history is disabled or unavailable
	historyErr   error       // why history could not be opened
}

// NewApp wires the deployment components from settings.
func NewApp(settings *Settings, fs afero.Fs, logger zerolog.Logger) *App {
	// 1. Remote executor
	transport := sshremote.NewSSHTransport(sshremote.SSHConfig{
		ConnectTimeout: settings.SSH.ConnectTimeout,
		CommandTimeout: settings.SSH.CommandTimeout,
		KnownHostsFile: settings.SSH.KnownHosts,
		KeyPassphrase:  settings.SSH.KeyPassphrase,
	}, logger)
	executor := sshremote.NewExecutor(transport, sshremote.DefaultKeyCache(), sshremote.ExecutorConfig{
		Testing:           settings.SSH.Testing,
		DefaultUser:       settings.SSH.User,
		DefaultPrivateKey: settings.SSH.PrivateKey,
		DefaultKeyFile:    settings.SSH.KeyFile,
		Backoff: remote.Backoff{
			Attempts: settings.SSH.Attempts,
			Initial:  settings.SSH.InitialDelay,
		},
	}, logger)

	// 2. Sync invoker
	invoker := transfer.NewInvoker(transfer.NewRsyncEngine(transfer.RsyncConfig{
		Binary: settings.Rsync.Binary,
	}), logger)

	// 3. History. An unusable database never blocks a deployment.
	app := &App{settings: settings, logger: logger}
	var recorder deploy.Recorder = deploy.NoOpRecorder{}
	if settings.History.Enabled {
		s, err := openHistory(settings.History.DSN)
		if err != nil {
			logger.Warn().Err(err).Msg("history unavailable, runs will not be recorded")
			app.historyErr = err
		} else {
			app.history = s
			recorder = s
		}
	}

	// 4. Orchestrator
	app.orchestrator = deploy.NewOrchestrator(
		config.NewLoader(fs),
		deploy.GitVCS{Binary: settings.Git.Binary},
		invoker,
		executor,
		recorder,
		logger,
	)

	return app
}

// Close releases the history database.
func (a *App) Close() error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}

func openHistory(dsn string) (*store.SQLiteStore, error) {
	if dsn == "" {
		path, err := xdg.StateFile(historyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to locate history database: %w", err)
		}
		dsn = path
	}
	return store.NewSQLiteStore(dsn)
}

// =============================================================================
// Operations
// =============================================================================

// Deploy runs one deployment and maps its outcome to an AppError. A run
// that could not be recorded is only logged.
func (a *App) Deploy(ctx context.Context, req deploy.Request) (*domain.RunReport, error) {
	report, err := a.orchestrator.Run(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, deploy.ErrHistory):
		a.logger.Warn().Err(err).Str("run_id", report.ID).Msg("deployment not recorded")
	default:
		return report, &AppError{Op: "deploy", Err: err, ExitCode: exitCodeFor(err)}
	}

	if unit := report.Main(); unit != nil && unit.Status == domain.UnitFailed {
		err := unit.Err
		if err == nil {
			err = fmt.Errorf("%s failed", unit.Name)
		}
		return report, &AppError{Op: "deploy", Err: err, ExitCode: ExitDeployError}
	}
	return report, nil
}

// Plan resolves every unit without performing any transfer.
func (a *App) Plan(ctx context.Context, req deploy.Request) (*domain.RunReport, error) {
	report, err := a.orchestrator.Plan(ctx, req)
	if err != nil {
		return nil, &AppError{Op: "plan", Err: err, ExitCode: exitCodeFor(err)}
	}
	return report, nil
}

// CheckDependencies runs the git check across the declared dependencies.
func (a *App) CheckDependencies(ctx context.Context, req deploy.Request) ([]deploy.GitCheckResult, error) {
	results, err := a.orchestrator.CheckDependencies(ctx, req)
	if err != nil {
		return nil, &AppError{Op: "check_dependencies", Err: err, ExitCode: exitCodeFor(err)}
	}
	return results, nil
}

// History returns the most recent recorded runs, only those of target when
// it is set.
func (a *App) History(ctx context.Context, limit int, target string) ([]domain.RunReport, error) {
	if a.history == nil {
		err := a.historyErr
		if err == nil {
			err = errors.New("history is disabled")
		}
		return nil, &AppError{Op: "history", Err: err, ExitCode: ExitHistoryError}
	}

	var (
		runs []domain.RunReport
		err  error
	)
	opts := store.ListOptions{Limit: limit}
	if target == "" {
		runs, err = a.history.ListRuns(ctx, opts)
	} else {
		runs, err = a.history.ListRunsByTarget(ctx, target, opts)
	}
	if err != nil {
		return nil, &AppError{Op: "history", Err: err, ExitCode: ExitHistoryError}
	}
	return runs, nil
}

// =============================================================================
// Errors
// =============================================================================

// AppError represents a failed invocation with its exit code.
type AppError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func exitCodeFor(err error) int {
	if domain.IsConfigurationError(err) {
		return ExitConfigError
	}
	return ExitDeployError
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}
	return ExitConfigError
}
