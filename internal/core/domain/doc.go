// Package domain contains the core domain types of a deployment run.
// This is part of the Functional Core - all functions are pure with no I/O.
//
// A run deploys one Target (a named remote destination from the
// configuration file) and, optionally, the dependencies declared in the
// global options. Each deployment unit is described by an immutable
// EffectiveParameters value built fresh by the resolver in
// internal/core/deployment.
package domain
