// Package deployment provides pure functions for deployment planning.
//
// This package contains the functional core of a deployment run: turning
// the layered configuration (CLI flags, dependency options, target options,
// global options, built-in defaults) into one immutable
// domain.EffectiveParameters value per deployment unit. All functions are
// pure (no I/O, no side effects) and never mutate caller-owned values.
//
// # Functions
//
//   - Resolve: build the effective parameters of a unit, field by field
//   - ExpandDestination: substitute {app} and {appDir} in a destination template
//   - NormalizeDir: ensure a trailing path separator (idempotent)
//   - SelectDependency: apply a --deployDeps selector to a dependency path
//   - MergeOptions: overlay one option block on another
//
// # Usage
//
// The imperative shell (internal/shell/deploy) resolves every unit before
// touching the network, then hands the parameters to the sync invoker and
// the remote executor.
//
//	params, err := deployment.Resolve(cli, "prod", target, cfg.Options, nil)
//	if err != nil {
//	    return err // always a configuration error
//	}
package deployment
