package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/artpar/templdeploy/internal/core/deployment"
	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/google/uuid"
	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"
)

// =============================================================================
// Orchestrator - Sequences a Deployment Run
// =============================================================================

// Request holds everything the command line decided for one run.
type Request struct {
	// Dir is the directory holding the deployment configuration.
	Dir string

	// Target is the target name. Empty means the current branch.
	Target string

	CLI deployment.CLIOptions

	// DeployDeps is the dependency selector ("all" or a pattern). Empty
	// means dependencies are not deployed.
	DeployDeps string
	DepsOnly   bool

	// DepsGit switches the run into the dependency git check.
	DepsGit string
}

// Orchestrator runs deployments.
type Orchestrator struct {
	loader   ConfigLoader
	vcs      VCS
	units    *unitDeployer
	deps     *DependencyDeployer
	recorder Recorder
	logger   zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewOrchestrator creates an orchestrator. A nil recorder disables history.
func NewOrchestrator(loader ConfigLoader, vcs VCS, syncer Syncer, runner RemoteRunner, recorder Recorder, logger zerolog.Logger) *Orchestrator {
	if recorder == nil {
		recorder = NoOpRecorder{}
	}
	orchLogger := logger.With().Str("component", "orchestrator").Logger()
	return &Orchestrator{
		loader:   loader,
		vcs:      vcs,
		units:    &unitDeployer{syncer: syncer, runner: runner, logger: orchLogger},
		deps:     NewDependencyDeployer(loader, syncer, runner, logger),
		recorder: recorder,
		logger:   orchLogger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// =============================================================================
// Run
// =============================================================================

// Run performs one deployment. Configuration problems abort the run with an
// error wrapping domain.ErrConfiguration. Unit failures do not: they are
// reported through the returned report. An error wrapping ErrHistory comes
// with a complete report.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*domain.RunReport, error) {
	// 1. Load configuration
	cfg, err := o.loader.Load(req.Dir)
	if err != nil {
		return nil, domain.NewDeployError("load", req.Dir, err.Error(), err)
	}

	// 2. Dependency git check is a terminal mode: nothing is deployed
	if req.DepsGit != "" {
		started := o.now()
		paths, err := o.gitCheckPaths(ctx, cfg, req.Target)
		if err != nil {
			return nil, err
		}
		for _, r := range o.checkDependencies(ctx, cfg, paths, req.DepsGit) {
			event := o.logger.Info()
			if r.Err != nil {
				event = o.logger.Warn().Err(r.Err)
			}
			event.Str("dependency", r.Dependency).Str("result", r.Output).Msg("git")
		}
		return &domain.RunReport{ID: o.newID(), StartedAt: started, FinishedAt: o.now()}, nil
	}

	// 3-6. Target selection and resolution
	name, target, params, err := o.resolveMain(ctx, cfg, req)
	if err != nil {
		return nil, err
	}

	report := &domain.RunReport{
		ID:        o.newID(),
		Target:    name,
		DryRun:    req.CLI.DryRun,
		StartedAt: o.now(),
	}
	o.logger.Info().
		Str("run_id", report.ID).
		Str("target", name).
		Str("host", target.Host).
		Bool("dry_run", req.CLI.DryRun).
		Msg("deployment started")

	// 7. Dependencies
	if req.DeployDeps != "" {
		report.Units = append(report.Units, o.deps.Deploy(ctx, o.dependencyRequest(cfg, name, target, req))...)
	}

	// 8. Main target
	if !req.DepsOnly {
		report.Units = append(report.Units, o.units.deploy(ctx, params, cfg.Dir))
	}

	// 9. Report
	report.FinishedAt = o.now()
	o.logger.Info().
		Str("run_id", report.ID).
		Int("succeeded", report.Count(domain.UnitSucceeded)).
		Int("failed", report.Count(domain.UnitFailed)).
		Int("skipped", report.Count(domain.UnitSkipped)).
		Int("planned", report.Count(domain.UnitPlanned)).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("deployment finished")

	if err := o.recorder.RecordRun(ctx, report); err != nil {
		return report, fmt.Errorf("%w: %w", ErrHistory, err)
	}
	return report, nil
}

// Plan resolves every unit Run would deploy without transferring or
// executing anything. Dependencies that cannot be resolved appear as
// skipped units.
func (o *Orchestrator) Plan(ctx context.Context, req Request) (*domain.RunReport, error) {
	cfg, err := o.loader.Load(req.Dir)
	if err != nil {
		return nil, domain.NewDeployError("load", req.Dir, err.Error(), err)
	}

	name, target, params, err := o.resolveMain(ctx, cfg, req)
	if err != nil {
		return nil, err
	}

	report := &domain.RunReport{ID: o.newID(), Target: name, DryRun: true, StartedAt: o.now()}

	if req.DeployDeps != "" {
		depReq := o.dependencyRequest(cfg, name, target, req)
		for _, path := range deployment.SelectDependencies(depReq.Selector, depReq.Paths) {
			depParams, err := o.deps.Resolve(depReq, path)
			if err != nil {
				report.Units = append(report.Units, o.deps.skip(path, err))
				continue
			}
			report.Units = append(report.Units, planned(depParams))
		}
	}

	if !req.DepsOnly {
		report.Units = append(report.Units, planned(params))
	}

	report.FinishedAt = o.now()
	return report, nil
}

// resolveMain runs steps 3 to 6: pick the target name, look it up,
// validate it and resolve its effective parameters.
func (o *Orchestrator) resolveMain(ctx context.Context, cfg *domain.Config, req Request) (string, domain.Target, domain.EffectiveParameters, error) {
	var none domain.EffectiveParameters

	name := req.Target
	if name == "" {
		branch, err := o.vcs.CurrentBranch(ctx, cfg.Dir)
		if err != nil {
			return "", domain.Target{}, none, domain.NewDeployError("target", "",
				"no target given and the current branch is unknown",
				fmt.Errorf("%w: %w", domain.ErrConfiguration, err))
		}
		o.logger.Info().Str("branch", branch).Msg("using current branch as target")
		name = branch
	}

	target, err := cfg.Target(name)
	if err != nil {
		return "", domain.Target{}, none, domain.NewDeployError("target", name, err.Error(), err)
	}

	if err := target.Validate(); err != nil {
		return "", domain.Target{}, none, domain.NewDeployError("validate", name, err.Error(), err)
	}

	params, err := deployment.Resolve(req.CLI, name, target, cfg.Options, nil)
	if err != nil {
		return "", domain.Target{}, none, domain.NewDeployError("resolve", name, err.Error(), err)
	}
	return name, target, params, nil
}

func (o *Orchestrator) dependencyRequest(cfg *domain.Config, name string, target domain.Target, req Request) DependencyRequest {
	return DependencyRequest{
		BaseDir:    cfg.Dir,
		Paths:      dependencyPaths(cfg, target),
		Selector:   req.DeployDeps,
		TargetName: name,
		Target:     target,
		Global:     cfg.Options,
		CLI:        req.CLI,
	}
}

// dependencyPaths returns the dependencies declared for target. A target
// level list replaces the global one.
func dependencyPaths(cfg *domain.Config, target domain.Target) []string {
	if target.Deps != nil {
		return target.Deps
	}
	return cfg.Options.Deps
}

func planned(params domain.EffectiveParameters) domain.UnitReport {
	return domain.UnitReport{
		Name:   params.Unit,
		Kind:   params.Kind,
		Status: domain.UnitPlanned,
		Params: &params,
	}
}

// =============================================================================
// Dependency Git Check
// =============================================================================

// GitStatusCommand is the --depsGit value that reports clean or modified.
const GitStatusCommand = "status"

// GitCheckResult is the outcome of the git check for one dependency.
type GitCheckResult struct {
	Dependency string
	Dir        string
	Output     string
	Err        error
}

// CheckDependencies runs the git check across the dependencies a deployment
// of req.Target would use, from the configuration in req.Dir. subcommand
// "status" reports clean or modified; anything else is run as git arguments
// in each dependency.
func (o *Orchestrator) CheckDependencies(ctx context.Context, req Request) ([]GitCheckResult, error) {
	cfg, err := o.loader.Load(req.Dir)
	if err != nil {
		return nil, domain.NewDeployError("load", req.Dir, err.Error(), err)
	}
	paths, err := o.gitCheckPaths(ctx, cfg, req.Target)
	if err != nil {
		return nil, err
	}
	return o.checkDependencies(ctx, cfg, paths, req.DepsGit), nil
}

// gitCheckPaths picks the dependency list of the named target. Without a
// name the current branch is tried, and the global list is used when it
// names no target.
func (o *Orchestrator) gitCheckPaths(ctx context.Context, cfg *domain.Config, name string) ([]string, error) {
	if name == "" {
		if branch, err := o.vcs.CurrentBranch(ctx, cfg.Dir); err == nil {
			if target, err := cfg.Target(branch); err == nil {
				return dependencyPaths(cfg, target), nil
			}
		}
		return cfg.Options.Deps, nil
	}

	target, err := cfg.Target(name)
	if err != nil {
		return nil, domain.NewDeployError("target", name, err.Error(), err)
	}
	return dependencyPaths(cfg, target), nil
}

func (o *Orchestrator) checkDependencies(ctx context.Context, cfg *domain.Config, paths []string, subcommand string) []GitCheckResult {
	args, argsErr := shellwords.Parse(subcommand)
	if argsErr == nil && len(args) == 0 {
		args = []string{GitStatusCommand}
	}

	results := make([]GitCheckResult, 0, len(paths))
	for _, path := range paths {
		dir := path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.Dir, path)
		}
		result := GitCheckResult{Dependency: path, Dir: dir}

		switch {
		case argsErr != nil:
			result.Err = fmt.Errorf("%w: invalid git arguments %q: %v", domain.ErrConfiguration, subcommand, argsErr)
		case len(args) == 1 && args[0] == GitStatusCommand:
			status, err := o.vcs.Status(ctx, dir)
			result.Output, result.Err = status.String(), err
		default:
			result.Output, result.Err = o.vcs.Run(ctx, dir, args...)
		}

		if result.Err != nil {
			result.Output = ""
		}
		results = append(results, result)
	}
	return results
}
