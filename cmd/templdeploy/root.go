package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/artpar/templdeploy/internal/core/deployment"
	"github.com/artpar/templdeploy/internal/shell/deploy"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// options holds the parsed command line.
type options struct {
	dir          string
	settingsPath string
	verbosity    int

	dry        bool
	skipRsync  bool
	rsyncFlags string
	sshCmd     string

	deployDeps string
	depsOnly   bool
	depSsh     string
	depsGit    string

	plan    bool
	history int
}

// flagAliases maps legacy flag names to their current name.
var flagAliases = map[string]string{
	"run": "sshCmd",
	"cmd": "sshCmd",
}

func normalizeFlag(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if alias, ok := flagAliases[name]; ok {
		name = alias
	}
	return pflag.NormalizedName(name)
}

// newRootCommand builds the templdeploy command. Output goes to stdout, logs
// to stderr.
func newRootCommand(fs afero.Fs, stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "templdeploy [target]",
		Short: "Sync a build directory to a remote host and run a post-deploy command",
		Long: `templdeploy reads .templ.yaml (or .yml, .json, .toml) from the project
directory, resolves the named target (the current git branch when omitted),
syncs the source directory to the target with rsync and runs the configured
remote command over SSH. Declared dependencies can be deployed first.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			return execute(cmd, fs, opts, target, stdout, stderr)
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.SetNormalizeFunc(normalizeFlag)

	flags.BoolVar(&opts.dry, "dry", false, "Render the transfer and remote command without running them")
	flags.BoolVar(&opts.skipRsync, "skipRsync", false, "Skip the transfer and only run the remote command")
	flags.StringVar(&opts.rsyncFlags, "rsyncFlags", "", "Override the rsync flags (default avzh)")
	flags.StringVar(&opts.sshCmd, "sshCmd", "", "Override the remote post-deploy command (aliases --run, --cmd)")

	flags.StringVar(&opts.deployDeps, "deployDeps", "", `Deploy dependencies first: "`+deployment.SelectAll+`" or a path pattern`)
	flags.BoolVar(&opts.depsOnly, "depsOnly", false, "Deploy dependencies only, not the main target")
	flags.StringVar(&opts.depSsh, "depSsh", "", "Override the remote command of every dependency")
	flags.StringVar(&opts.depsGit, "depsGit", "", `Run a git check in every dependency: "`+deploy.GitStatusCommand+`" or git arguments`)

	flags.StringVar(&opts.dir, "dir", "", "Project directory (default: current directory)")
	flags.BoolVar(&opts.plan, "plan", false, "Print the resolved parameters of every unit as YAML and exit")
	flags.IntVar(&opts.history, "history", 0, "Print the last N recorded runs (of the target when given) and exit")

	cmd.PersistentFlags().StringVar(&opts.settingsPath, "settings", "", "Path to a settings file")
	cmd.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG)")

	return cmd
}

// execute runs one invocation. Every returned error is an *AppError.
func execute(cmd *cobra.Command, fs afero.Fs, opts *options, target string, stdout, stderr io.Writer) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Settings and logging
	settings, err := LoadSettings(fs, opts.settingsPath)
	if err != nil {
		return &AppError{Op: "load_settings", Err: err, ExitCode: ExitConfigError}
	}
	logger := SetupLogger(settings.Log, opts.verbosity, stderr, isTerminal(stderr))

	// Nothing is recorded for runs that deploy nothing
	if opts.plan || opts.depsGit != "" {
		settings.History.Enabled = false
	}

	// 2. Components
	app := NewApp(settings, fs, logger)
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close history")
		}
	}()

	printer := NewPrinter(stdout)

	// 3. Request
	dir := opts.dir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return &AppError{Op: "getwd", Err: err, ExitCode: ExitConfigError}
		}
	}
	req := deploy.Request{
		Dir:    dir,
		Target: target,
		CLI: deployment.CLIOptions{
			DryRun:            opts.dry,
			RsyncFlags:        opts.rsyncFlags,
			RemoteCommand:     opts.sshCmd,
			DependencyCommand: opts.depSsh,
		},
		DeployDeps: opts.deployDeps,
		DepsOnly:   opts.depsOnly,
		DepsGit:    opts.depsGit,
	}
	if cmd.Flags().Changed("skipRsync") {
		skip := opts.skipRsync
		req.CLI.SkipTransfer = &skip
	}

	// 4. Terminal modes
	switch {
	case cmd.Flags().Changed("history"):
		runs, err := app.History(ctx, opts.history, target)
		if err != nil {
			return err
		}
		printer.History(runs)
		return nil

	case opts.depsGit != "":
		results, err := app.CheckDependencies(ctx, req)
		if err != nil {
			return err
		}
		printer.GitChecks(results)
		return nil

	case opts.plan:
		report, err := app.Plan(ctx, req)
		if err != nil {
			return err
		}
		if err := printer.Plan(report); err != nil {
			return &AppError{Op: "plan", Err: err, ExitCode: ExitConfigError}
		}
		return nil
	}

	// 5. Deploy
	report, err := app.Deploy(ctx, req)
	if report != nil {
		printer.Report(report)
	}
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printError reports a failed invocation on stderr.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "templdeploy: %v\n", err)
}
