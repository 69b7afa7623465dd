package deploy

import (
	"context"
	"fmt"

	"github.com/artpar/templdeploy/internal/core/deployment"
	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/rs/zerolog"
)

// DependencyRequest describes the dependencies of one run.
type DependencyRequest struct {
	// BaseDir is the directory of the parent configuration.
	BaseDir string

	// Paths are the declared dependency paths, Selector filters them.
	Paths    []string
	Selector string

	// The parent target supplies host, user and app to every dependency.
	TargetName string
	Target     domain.Target
	Global     domain.Options

	CLI deployment.CLIOptions
}

// DependencyDeployer deploys dependencies one after the other. A dependency
// that cannot be loaded or resolved is skipped; the rest still run.
type DependencyDeployer struct {
	loader ConfigLoader
	units  *unitDeployer
	logger zerolog.Logger
}

// NewDependencyDeployer creates a dependency deployer.
func NewDependencyDeployer(loader ConfigLoader, syncer Syncer, runner RemoteRunner, logger zerolog.Logger) *DependencyDeployer {
	logger = logger.With().Str("component", "dependencies").Logger()
	return &DependencyDeployer{
		loader: loader,
		units:  &unitDeployer{syncer: syncer, runner: runner, logger: logger},
		logger: logger,
	}
}

// Deploy processes every selected dependency in declaration order and
// returns one report per dependency.
func (d *DependencyDeployer) Deploy(ctx context.Context, req DependencyRequest) []domain.UnitReport {
	selected := deployment.SelectDependencies(req.Selector, req.Paths)
	d.logger.Info().
		Str("selector", req.Selector).
		Int("declared", len(req.Paths)).
		Int("selected", len(selected)).
		Msg("deploying dependencies")

	reports := make([]domain.UnitReport, 0, len(selected))
	for _, path := range selected {
		if err := ctx.Err(); err != nil {
			reports = append(reports, d.skip(path, err))
			continue
		}

		params, err := d.Resolve(req, path)
		if err != nil {
			reports = append(reports, d.skip(path, err))
			continue
		}
		reports = append(reports, d.deployOne(ctx, path, params, req.BaseDir))
	}
	return reports
}

// Resolve loads a dependency's configuration and builds its effective
// parameters. The dependency layer is its global options overlaid with its
// own entry for the parent's target name, when it declares one.
func (d *DependencyDeployer) Resolve(req DependencyRequest, path string) (domain.EffectiveParameters, error) {
	cfg, err := d.loader.LoadDependency(req.BaseDir, path)
	if err != nil {
		return domain.EffectiveParameters{}, err
	}

	opts := cfg.Options
	if own, ok := cfg.Templs[req.TargetName]; ok {
		opts = deployment.MergeOptions(opts, own.Options)
	}

	return deployment.Resolve(req.CLI, req.TargetName, req.Target, req.Global,
		&deployment.Dependency{Path: path, Options: opts})
}

// deployOne deploys a resolved dependency. A panic inside the unit is turned
// into a skip.
func (d *DependencyDeployer) deployOne(ctx context.Context, path string, params domain.EffectiveParameters, workDir string) (report domain.UnitReport) {
	defer func() {
		if r := recover(); r != nil {
			report = d.skip(path, fmt.Errorf("panic: %v", r))
		}
	}()
	return d.units.deploy(ctx, params, workDir)
}

func (d *DependencyDeployer) skip(path string, err error) domain.UnitReport {
	d.logger.Warn().Str("dependency", path).Err(err).Msg("dependency skipped")
	return domain.UnitReport{
		Name:   path,
		Kind:   domain.UnitDependency,
		Status: domain.UnitSkipped,
		Err:    domain.NewDeployError("dependency", path, err.Error(), fmt.Errorf("%w: %w", domain.ErrDependency, err)),
	}
}
