package deployment

import (
	"path"
	"strings"
)

// SelectAll is the --deployDeps selector that deploys every dependency.
const SelectAll = "all"

// SelectDependency reports whether a dependency path passes a --deployDeps
// selector. The selector is "all", a glob matched against the whole path, or
// a plain substring of the path.
func SelectDependency(selector, depPath string) bool {
	if selector == "" {
		return false
	}
	if selector == SelectAll {
		return true
	}
	if ok, err := path.Match(selector, depPath); err == nil && ok {
		return true
	}
	return strings.Contains(depPath, selector)
}

// SelectDependencies filters deps by selector, preserving declaration order.
func SelectDependencies(selector string, deps []string) []string {
	var selected []string
	for _, dep := range deps {
		if SelectDependency(selector, dep) {
			selected = append(selected, dep)
		}
	}
	return selected
}
