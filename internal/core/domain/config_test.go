package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

// =============================================================================
// Options Tests
// =============================================================================

func TestOptions_RemoteCommand(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"none", Options{}, ""},
		{"run only", Options{Run: "make restart"}, "make restart"},
		{"sshCmd only", Options{SSHCmd: "pm2 reload all"}, "pm2 reload all"},
		{"run wins over sshCmd", Options{Run: "a", SSHCmd: "b"}, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.RemoteCommand())
		})
	}
}

func TestOptions_SkipTransfer(t *testing.T) {
	assert.Nil(t, Options{}.SkipTransfer())
	assert.True(t, *Options{SkipRsync: boolPtr(true)}.SkipTransfer())
	assert.True(t, *Options{SkipRsyncSnake: boolPtr(true)}.SkipTransfer())
	assert.False(t, *Options{SkipRsync: boolPtr(false), SkipRsyncSnake: boolPtr(true)}.SkipTransfer())
}

// =============================================================================
// Target Tests
// =============================================================================

func TestTarget_Validate(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		wantErr error
	}{
		{"app and host", Target{Host: "h", App: "7"}, nil},
		{"user and host", Target{Host: "h", User: "deploy"}, nil},
		{"mock host", Target{Host: "mock_ip", App: "1"}, nil},
		{"missing host", Target{App: "7"}, ErrHostRequired},
		{"missing identity", Target{Host: "h"}, ErrIdentityRequired},
		{"bad port", Target{Host: "h", App: "7", Port: 70000}, ErrInvalidPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestTarget_IdentityFile(t *testing.T) {
	assert.Equal(t, "", Target{}.IdentityFile())
	assert.Equal(t, "k", Target{KeyFile: "k"}.IdentityFile())
	assert.Equal(t, "id", Target{SSHID: "id", KeyFile: "k"}.IdentityFile())
}

func TestValidateHost_RejectsDestinationSeparators(t *testing.T) {
	for _, host := range []string{"a b", "user@host", "host/dir"} {
		assert.Error(t, ValidateHost(host), host)
	}
	assert.NoError(t, ValidateHost("10.0.0.1"))
	assert.NoError(t, ValidateHost("deploy.example.com"))
}

// =============================================================================
// Config Tests
// =============================================================================

func TestConfig_Target(t *testing.T) {
	cfg := &Config{Templs: map[string]Target{
		"prod":    {Host: "h", App: "7"},
		"staging": {Host: "s", App: "8"},
	}}

	target, err := cfg.Target("prod")
	require.NoError(t, err)
	assert.Equal(t, "h", target.Host)

	_, err = cfg.Target("qa")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTarget))
	assert.Contains(t, err.Error(), "prod, staging")
}

func TestConfig_TargetNoneConfigured(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.Target("prod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: none")
}

func TestDeployError_Unwrap(t *testing.T) {
	err := NewDeployError("sync", "prod", "rsync exited 23", ErrTransfer)
	assert.Equal(t, "sync prod: rsync exited 23", err.Error())
	assert.ErrorIs(t, err, ErrTransfer)

	noUnit := NewDeployError("load", "", "boom", ErrConfigNotFound)
	assert.Equal(t, "load: boom", noUnit.Error())
	assert.True(t, IsConfigurationError(noUnit))
}
