package deploy

import (
	"context"
	"fmt"

	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/artpar/templdeploy/internal/core/remote"
	transfer "github.com/artpar/templdeploy/internal/shell/sync"
	"github.com/rs/zerolog"
)

// unitDeployer deploys one resolved unit: transfer first, then the remote
// command. A failed transfer halts the unit.
type unitDeployer struct {
	syncer Syncer
	runner RemoteRunner
	logger zerolog.Logger
}

func (u *unitDeployer) deploy(ctx context.Context, params domain.EffectiveParameters, workDir string) domain.UnitReport {
	report := domain.UnitReport{
		Name:   params.Unit,
		Kind:   params.Kind,
		Params: &params,
	}
	log := u.logger.With().Str("unit", params.Unit).Str("kind", string(params.Kind)).Logger()
	log.Info().
		Str("source", params.SourceDir).
		Str("destination", params.Destination()).
		Bool("dry_run", params.DryRun).
		Msg("deploying")

	// 1. Transfer
	result := u.syncer.Sync(ctx, transfer.RequestFor(params, workDir))
	report.Transfer = &result
	if result.Failed() {
		report.Status = domain.UnitFailed
		report.Err = result.Err
		if report.Err == nil {
			report.Err = domain.NewDeployError("sync", params.Unit,
				fmt.Sprintf("exit code %d", result.ExitCode), domain.ErrTransfer)
		}
		log.Error().Err(report.Err).Msg("transfer failed, remote command not run")
		return report
	}

	// 2. Remote command
	if !params.HasRemoteCommand() {
		report.Status = finalStatus(params)
		return report
	}

	dest := remote.DestinationFor(params)
	cmd := remote.CommandFor(params)

	if params.DryRun {
		rendered := u.runner.Render(dest, cmd)
		log.Info().Str("command", rendered).Msg("dry run")
		report.Remote = &domain.RemoteCommandResult{Command: rendered, Skipped: true}
		report.Status = domain.UnitPlanned
		return report
	}

	log.Info().Str("command", cmd.Script()).Msg("running remote command")
	remoteResult, err := u.runner.Execute(ctx, dest, cmd)
	report.Remote = &remoteResult
	if err != nil {
		report.Status = domain.UnitFailed
		report.Err = err
		log.Error().Err(err).
			Int("exit_code", remoteResult.ExitCode).
			Str("stdout", remoteResult.Stdout).
			Msg("remote command failed")
		return report
	}

	log.Info().
		Int("exit_code", remoteResult.ExitCode).
		Int("attempts", remoteResult.Attempts).
		Str("stdout", remoteResult.Stdout).
		Msg("remote command finished")
	report.Status = finalStatus(params)
	return report
}

func finalStatus(params domain.EffectiveParameters) domain.UnitStatus {
	if params.DryRun {
		return domain.UnitPlanned
	}
	return domain.UnitSucceeded
}
