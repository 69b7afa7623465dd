package deployment

import (
	"testing"

	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDir(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"dist", "dist/"},
		{"dist/", "dist/"},
		{"app_7", "app_7/"},
		{"/srv/www/", "/srv/www/"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeDir(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeDir(got), "normalization must be idempotent")
		})
	}
}

func TestExpandDestination(t *testing.T) {
	tests := []struct {
		name     string
		template string
		app      string
		want     string
		wantErr  bool
	}{
		{"default from app", "", "7", "app_7/", false},
		{"no template no app", "", "", "", true},
		{"app placeholder", "sites/{app}", "7", "sites/7/", false},
		{"appDir placeholder", "{appDir}/public", "7", "app_7/public/", false},
		{"literal template", "www", "", "www/", false},
		{"placeholder without app", "sites/{app}", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandDestination(tt.template, tt.app)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrNoDestination)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSourcePath(t *testing.T) {
	assert.Equal(t, "dist/", sourcePath("", "dist"))
	assert.Equal(t, "../lib/dist/", sourcePath("../lib", "dist"))
	assert.Equal(t, "/abs/out/", sourcePath("../lib", "/abs/out"))
}

func TestResolveUser(t *testing.T) {
	user, err := ResolveUser(domain.Target{User: "deploy", App: "7"})
	require.NoError(t, err)
	assert.Equal(t, "deploy", user)

	user, err = ResolveUser(domain.Target{App: "7"})
	require.NoError(t, err)
	assert.Equal(t, "user_7", user)

	_, err = ResolveUser(domain.Target{})
	assert.ErrorIs(t, err, domain.ErrNoUser)
}
