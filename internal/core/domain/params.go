package domain

import (
	"net"
	"strconv"
)

// UnitKind distinguishes the main target from its dependencies.
type UnitKind string

const (
	UnitMain       UnitKind = "main"
	UnitDependency UnitKind = "dependency"
)

// Identity is the key material declared for a deployment unit.
type Identity struct {
	PrivateKey string `yaml:"-"`
	KeyFile    string `yaml:"keyFile,omitempty"`
}

// EffectiveParameters is the fully resolved parameter set of one deployment
// unit. It is built once per unit and never mutated afterwards.
type EffectiveParameters struct {
	Unit           string   `yaml:"unit"`
	Kind           UnitKind `yaml:"kind"`
	SourceDir      string   `yaml:"source"`
	Excludes       []string `yaml:"exclude,omitempty"`
	TransferFlags  string   `yaml:"rsyncFlags"`
	SkipTransfer   bool     `yaml:"skipRsync"`
	DryRun         bool     `yaml:"dry"`
	RemoteCommand  string   `yaml:"run,omitempty"`
	DestinationDir string   `yaml:"dst"`
	User           string   `yaml:"user"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Identity       Identity `yaml:"identity,omitempty"`
}

// Destination returns the sync engine destination (user@host:dir/).
func (p EffectiveParameters) Destination() string {
	return p.User + "@" + p.Host + ":" + p.DestinationDir
}

// Address returns the SSH address in host:port format.
func (p EffectiveParameters) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// HasRemoteCommand reports whether a post-deploy command is configured.
func (p EffectiveParameters) HasRemoteCommand() bool {
	return p.RemoteCommand != ""
}
