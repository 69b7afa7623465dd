// Package config loads deployment configuration files (.templ.yaml,
// .templ.yml, .templ.json or .templ.toml) from a directory.
package config

import (
	"fmt"
)

// ParseError wraps errors with the file that could not be decoded.
type ParseError struct {
	File    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
