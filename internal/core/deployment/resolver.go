package deployment

import (
	"github.com/artpar/templdeploy/internal/core/domain"
)

// Built-in defaults, the lowest precedence layer.
const (
	DefaultSourceDir     = "dist"
	DefaultTransferFlags = "avzh"
)

// CLIOptions holds the values given explicitly on the command line. Empty
// strings and nil pointers mean "not given".
type CLIOptions struct {
	DryRun        bool
	RsyncFlags    string
	SkipTransfer  *bool
	RemoteCommand string // --sshCmd, main target only

	// DependencyCommand overrides the remote command of every dependency
	// (--depSsh).
	DependencyCommand string
}

// Dependency carries the layer a dependency contributes to resolution.
type Dependency struct {
	// Path is the dependency path as declared, relative to the parent
	// configuration directory.
	Path string

	// Options is the dependency's own option block, already merged from its
	// configuration file.
	Options domain.Options
}

// =============================================================================
// Resolution
// =============================================================================

// Resolve builds the effective parameters of one deployment unit. dep is nil
// for the main target. Precedence, per field: CLI flag, dependency options,
// target options, global options, built-in default.
//
// Every error returned wraps domain.ErrConfiguration.
func Resolve(cli CLIOptions, targetName string, target domain.Target, global domain.Options, dep *Dependency) (domain.EffectiveParameters, error) {
	if err := target.Validate(); err != nil {
		return domain.EffectiveParameters{}, err
	}

	var depOpts *domain.Options
	unit, kind := targetName, domain.UnitMain
	if dep != nil {
		depOpts = &dep.Options
		unit, kind = dep.Path, domain.UnitDependency
	}

	dst, err := resolveDestinationDir(target, global, depOpts)
	if err != nil {
		return domain.EffectiveParameters{}, err
	}
	user, err := ResolveUser(target)
	if err != nil {
		return domain.EffectiveParameters{}, err
	}

	return domain.EffectiveParameters{
		Unit:           unit,
		Kind:           kind,
		SourceDir:      resolveSourceDir(target, global, dep),
		Excludes:       resolveExcludes(target, global, depOpts),
		TransferFlags:  resolveTransferFlags(cli, target, global, depOpts),
		SkipTransfer:   resolveSkipTransfer(cli, target, global, depOpts),
		DryRun:         cli.DryRun,
		RemoteCommand:  resolveRemoteCommand(cli, target, global, dep),
		DestinationDir: dst,
		User:           user,
		Host:           target.Host,
		Port:           resolvePort(target),
		Identity: domain.Identity{
			PrivateKey: target.PrivateKey,
			KeyFile:    target.IdentityFile(),
		},
	}, nil
}

// resolveSourceDir picks the local directory to transfer. A dependency's
// source lives under the dependency path.
func resolveSourceDir(target domain.Target, global domain.Options, dep *Dependency) string {
	if dep != nil {
		dir := firstNonEmpty(dep.Options.Dir, target.Dir, global.Dir, DefaultSourceDir)
		return sourcePath(dep.Path, dir)
	}
	return NormalizeDir(firstNonEmpty(target.Dir, global.Dir, DefaultSourceDir))
}

// resolveExcludes takes the whole list from the highest layer that declares
// one. Lists are copied so the result never aliases configuration values.
func resolveExcludes(target domain.Target, global domain.Options, dep *domain.Options) []string {
	switch {
	case dep != nil && dep.Exclude != nil:
		return cloneStrings(dep.Exclude)
	case target.Exclude != nil:
		return cloneStrings(target.Exclude)
	default:
		return cloneStrings(global.Exclude)
	}
}

func resolveTransferFlags(cli CLIOptions, target domain.Target, global domain.Options, dep *domain.Options) string {
	depFlags := ""
	if dep != nil {
		depFlags = dep.RsyncFlags
	}
	return firstNonEmpty(cli.RsyncFlags, depFlags, target.RsyncFlags, global.RsyncFlags, DefaultTransferFlags)
}

func resolveSkipTransfer(cli CLIOptions, target domain.Target, global domain.Options, dep *domain.Options) bool {
	if cli.SkipTransfer != nil {
		return *cli.SkipTransfer
	}
	if dep != nil {
		if v := dep.SkipTransfer(); v != nil {
			return *v
		}
	}
	if v := target.SkipTransfer(); v != nil {
		return *v
	}
	if v := global.SkipTransfer(); v != nil {
		return *v
	}
	return false
}

// resolveRemoteCommand picks the post-deploy command. The main target uses
// --sshCmd, then the target, then the global command. A dependency only runs
// --depSsh or its own declared command; it never inherits the main one.
func resolveRemoteCommand(cli CLIOptions, target domain.Target, global domain.Options, dep *Dependency) string {
	if dep != nil {
		return firstNonEmpty(cli.DependencyCommand, dep.Options.RemoteCommand())
	}
	return firstNonEmpty(cli.RemoteCommand, target.RemoteCommand(), global.RemoteCommand())
}

func resolveDestinationDir(target domain.Target, global domain.Options, dep *domain.Options) (string, error) {
	template := ""
	if dep != nil {
		template = dep.Dst
	}
	template = firstNonEmpty(template, target.Dst, global.Dst)
	return ExpandDestination(template, target.App)
}

// ResolveUser returns the explicit user, else user_<app>.
func ResolveUser(target domain.Target) (string, error) {
	if target.User != "" {
		return target.User, nil
	}
	if target.App != "" {
		return AppUser(target.App), nil
	}
	return "", domain.ErrNoUser
}

func resolvePort(target domain.Target) int {
	if target.Port != 0 {
		return target.Port
	}
	return domain.DefaultPort
}

// =============================================================================
// Option Merging
// =============================================================================

// MergeOptions returns base overlaid with every field over declares. Neither
// argument is modified.
func MergeOptions(base, over domain.Options) domain.Options {
	out := domain.Options{
		Dir:        firstNonEmpty(over.Dir, base.Dir),
		Exclude:    cloneStrings(base.Exclude),
		Run:        base.Run,
		SSHCmd:     base.SSHCmd,
		Deps:       cloneStrings(base.Deps),
		SkipRsync:  cloneBool(base.SkipTransfer()),
		RsyncFlags: firstNonEmpty(over.RsyncFlags, base.RsyncFlags),
		Dst:        firstNonEmpty(over.Dst, base.Dst),
	}
	if over.Exclude != nil {
		out.Exclude = cloneStrings(over.Exclude)
	}
	if over.RemoteCommand() != "" {
		out.Run, out.SSHCmd = over.Run, over.SSHCmd
	}
	if over.Deps != nil {
		out.Deps = cloneStrings(over.Deps)
	}
	if v := over.SkipTransfer(); v != nil {
		out.SkipRsync = cloneBool(v)
	}
	return out
}

// =============================================================================
// Helpers
// =============================================================================

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
