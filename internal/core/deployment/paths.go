package deployment

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/artpar/templdeploy/internal/core/domain"
)

// Destination template placeholders.
const (
	PlaceholderApp    = "{app}"
	PlaceholderAppDir = "{appDir}"
)

// NormalizeDir returns path with exactly one trailing "/". Calling it on an
// already normalized path returns the path unchanged.
func NormalizeDir(path string) string {
	if path == "" || strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

// AppDir returns the default destination directory for an app.
func AppDir(app string) string {
	return "app_" + app
}

// AppUser returns the default SSH user for an app.
func AppUser(app string) string {
	return "user_" + app
}

// ExpandDestination resolves a destination directory from an optional
// template and an optional app identifier.
//
// With a template, {app} and {appDir} are substituted; a template that uses
// a placeholder requires an app. Without a template the default is app_<app>.
// When neither is available ErrNoDestination is returned.
func ExpandDestination(template, app string) (string, error) {
	if template == "" {
		if app == "" {
			return "", domain.ErrNoDestination
		}
		return NormalizeDir(AppDir(app)), nil
	}

	usesPlaceholder := strings.Contains(template, PlaceholderApp) ||
		strings.Contains(template, PlaceholderAppDir)
	if usesPlaceholder && app == "" {
		return "", fmt.Errorf("%w: template %q needs an app", domain.ErrNoDestination, template)
	}

	dst := strings.ReplaceAll(template, PlaceholderAppDir, AppDir(app))
	dst = strings.ReplaceAll(dst, PlaceholderApp, app)
	return NormalizeDir(dst), nil
}

// sourcePath places dir under base unless dir is absolute.
func sourcePath(base, dir string) string {
	if base == "" || filepath.IsAbs(dir) {
		return NormalizeDir(dir)
	}
	return NormalizeDir(filepath.ToSlash(filepath.Join(base, dir)))
}
