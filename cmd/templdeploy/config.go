package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// =============================================================================
// Settings Types
// =============================================================================

// Settings holds the tool settings. Deployment targets live in the
// per-project configuration file, not here.
type Settings struct {
	Log     LogSettings     `mapstructure:"log"`
	SSH     SSHSettings     `mapstructure:"ssh"`
	Rsync   RsyncSettings   `mapstructure:"rsync"`
	Git     GitSettings     `mapstructure:"git"`
	History HistorySettings `mapstructure:"history"`
}

// LogSettings holds logging configuration.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// SSHSettings holds remote execution configuration.
type SSHSettings struct {
	// Testing skips every remote command (SSH_TESTING).
	Testing bool `mapstructure:"testing"`

	// Fallback identity (SSH_USER, SSH_PRIVATEKEY, SSH_KEYFILE).
	User       string `mapstructure:"user"`
	PrivateKey string `mapstructure:"private_key"`
	KeyFile    string `mapstructure:"key_file"`

	// KeyPassphrase decrypts a passphrase protected identity.
	KeyPassphrase string `mapstructure:"key_passphrase"`

	KnownHosts     string        `mapstructure:"known_hosts"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	Attempts       int           `mapstructure:"attempts"`
	InitialDelay   time.Duration `mapstructure:"initial_delay"`
}

// RsyncSettings holds sync engine configuration.
type RsyncSettings struct {
	Binary string `mapstructure:"binary"`
}

// GitSettings holds git configuration.
type GitSettings struct {
	Binary string `mapstructure:"binary"`
}

// HistorySettings holds deployment history configuration.
type HistorySettings struct {
	Enabled bool `mapstructure:"enabled"`

	// DSN is the SQLite database path. Empty means the XDG state directory.
	DSN string `mapstructure:"dsn"`
}

// =============================================================================
// Settings Loading
// =============================================================================

// legacyEnv maps the environment variables the remote executor has always
// honoured to their settings keys.
var legacyEnv = map[string]string{
	"ssh.testing":     "SSH_TESTING",
	"ssh.user":        "SSH_USER",
	"ssh.private_key": "SSH_PRIVATEKEY",
	"ssh.key_file":    "SSH_KEYFILE",
}

// LoadSettings loads settings from file and environment. A missing settings
// file is not an error; an unparsable one is.
func LoadSettings(fs afero.Fs, path string) (*Settings, error) {
	v := viper.New()
	if fs != nil {
		v.SetFs(fs)
	}

	// Set defaults
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("ssh.testing", false)
	v.SetDefault("ssh.user", "")
	v.SetDefault("ssh.private_key", "")
	v.SetDefault("ssh.key_file", "")
	v.SetDefault("ssh.key_passphrase", "")
	v.SetDefault("ssh.known_hosts", "")
	v.SetDefault("ssh.connect_timeout", "10s")
	v.SetDefault("ssh.command_timeout", "10m")
	v.SetDefault("ssh.attempts", 5)
	v.SetDefault("ssh.initial_delay", "2s")
	v.SetDefault("rsync.binary", "rsync")
	v.SetDefault("git.binary", "git")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.dsn", "")

	// Load from file if provided
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse settings file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("TEMPLDEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range legacyEnv {
		prefixed := "TEMPLDEPLOY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return &settings, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger writing to w. Each -v raises the level one
// step above the configured one (-v info, -vv debug). Colour is used only
// when color is true.
func SetupLogger(cfg LogSettings, verbosity int, w io.Writer, color bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}
	switch {
	case verbosity >= 2:
		level = min(level, zerolog.DebugLevel)
	case verbosity == 1:
		level = min(level, zerolog.InfoLevel)
	}

	out := w
	if strings.ToLower(cfg.Format) != "json" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.Kitchen,
			NoColor:    !color,
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if verbosity >= 2 {
		logger = logger.With().Caller().Logger()
	}
	return logger
}
