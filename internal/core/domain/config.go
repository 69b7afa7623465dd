package domain

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultPort is the SSH port used when a target does not declare one.
const DefaultPort = 22

// =============================================================================
// Options
// =============================================================================

// Options is the option block shared by the global section of a
// configuration file, by each target and by a dependency's own configuration.
// Zero values mean "not declared" so that a lower precedence layer can supply
// the value.
type Options struct {
	// Dir is the local source directory to transfer. Default: dist.
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`

	// Exclude lists patterns the sync engine must skip.
	Exclude []string `mapstructure:"exclude" yaml:"exclude,omitempty"`

	// Run and SSHCmd are the remote post-deploy command. Run wins when both
	// are set; SSHCmd is the older spelling.
	Run    string `mapstructure:"run" yaml:"run,omitempty"`
	SSHCmd string `mapstructure:"sshCmd" yaml:"sshCmd,omitempty"`

	// Deps lists dependency paths, relative to the configuration directory.
	Deps []string `mapstructure:"deps" yaml:"deps,omitempty"`

	// SkipRsync disables the transfer and only runs the remote command.
	// skip_rsync is accepted as an alias.
	SkipRsync      *bool `mapstructure:"skipRsync" yaml:"skipRsync,omitempty"`
	SkipRsyncSnake *bool `mapstructure:"skip_rsync" yaml:"skip_rsync,omitempty"`

	// RsyncFlags overrides the transfer flags. Default: avzh.
	RsyncFlags string `mapstructure:"rsyncFlags" yaml:"rsyncFlags,omitempty"`

	// Dst is the destination directory template. It may embed {app} or
	// {appDir}.
	Dst string `mapstructure:"dst" yaml:"dst,omitempty"`
}

// RemoteCommand returns the declared remote command, if any.
func (o Options) RemoteCommand() string {
	if o.Run != "" {
		return o.Run
	}
	return o.SSHCmd
}

// SkipTransfer returns the declared skip flag, or nil when undeclared.
func (o Options) SkipTransfer() *bool {
	if o.SkipRsync != nil {
		return o.SkipRsync
	}
	return o.SkipRsyncSnake
}

// =============================================================================
// Target
// =============================================================================

// Target is a named remote destination. Its options override the global
// options of the configuration file.
type Target struct {
	Options `mapstructure:",squash" yaml:",inline"`

	// Host is the remote host name or address. Required.
	Host string `mapstructure:"host" yaml:"host"`

	// App is the application identifier used to derive the default user
	// (user_<app>) and destination directory (app_<app>).
	App string `mapstructure:"app" yaml:"app,omitempty"`

	// Port is the SSH port. Default: 22.
	Port int `mapstructure:"port" yaml:"port,omitempty"`

	// User is the SSH user. Default: user_<app>.
	User string `mapstructure:"user" yaml:"user,omitempty"`

	// SSHID and KeyFile are paths to a private key file. SSHID wins.
	SSHID   string `mapstructure:"sshId" yaml:"sshId,omitempty"`
	KeyFile string `mapstructure:"keyFile" yaml:"keyFile,omitempty"`

	// PrivateKey is an inline private key. It wins over any key file.
	PrivateKey string `mapstructure:"privateKey" yaml:"-"`
}

// IdentityFile returns the private key file declared by the target.
func (t Target) IdentityFile() string {
	if t.SSHID != "" {
		return t.SSHID
	}
	return t.KeyFile
}

// Validate checks that the target declares enough identity to build a
// destination: a host and either an app identifier or an explicit user.
func (t Target) Validate() error {
	if err := ValidateHost(t.Host); err != nil {
		return err
	}
	if t.Port != 0 {
		if err := ValidatePort(t.Port); err != nil {
			return err
		}
	}
	if t.App == "" && t.User == "" {
		return ErrIdentityRequired
	}
	return nil
}

// =============================================================================
// Config
// =============================================================================

// Config is a parsed deployment configuration file.
type Config struct {
	Options Options           `mapstructure:"options" yaml:"options,omitempty"`
	Templs  map[string]Target `mapstructure:"templs" yaml:"templs,omitempty"`

	// Dir is the directory the configuration was loaded from. Dependency and
	// source paths are relative to it.
	Dir string `mapstructure:"-" yaml:"-"`
}

// TargetNames returns the configured target names in sorted order.
func (c *Config) TargetNames() []string {
	names := make([]string, 0, len(c.Templs))
	for name := range c.Templs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Target looks up a target by name.
func (c *Config) Target(name string) (Target, error) {
	t, ok := c.Templs[name]
	if !ok {
		available := strings.Join(c.TargetNames(), ", ")
		if available == "" {
			available = "none"
		}
		return Target{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownTarget, name, available)
	}
	return t, nil
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateHost validates a remote host. Anything that would break a
// user@host:dir destination is rejected.
func ValidateHost(host string) error {
	if host == "" {
		return ErrHostRequired
	}
	if strings.ContainsAny(host, " \t\n@/") {
		return fmt.Errorf("%w: invalid host %q", ErrConfiguration, host)
	}
	return nil
}

// ValidatePort validates an SSH port.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return ErrInvalidPort
	}
	return nil
}
