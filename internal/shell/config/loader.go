package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// candidate is a configuration file name and its format, in lookup order.
type candidate struct {
	name   string
	format Format
}

var candidates = []candidate{
	{".templ.yaml", FormatYAML},
	{".templ.yml", FormatYAML},
	{".templ.json", FormatJSON},
	{".templ.toml", FormatTOML},
}

// FileNames returns the configuration file names in lookup order.
func FileNames() []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.name
	}
	return names
}

// Loader reads deployment configuration through an afero filesystem.
type Loader struct {
	fs afero.Fs
}

// NewLoader creates a loader. A nil fs means the OS filesystem.
func NewLoader(fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{fs: fs}
}

// =============================================================================
// Loading
// =============================================================================

// Find returns the path of the configuration file in dir. When several
// candidates exist the first in lookup order wins.
func (l *Loader) Find(dir string) (string, Format, error) {
	for _, c := range candidates {
		path := filepath.Join(dir, c.name)
		info, err := l.fs.Stat(path)
		if err == nil && !info.IsDir() {
			return path, c.format, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", "", fmt.Errorf("%w: %s: %v", domain.ErrConfigNotFound, path, err)
		}
	}
	return "", "", fmt.Errorf("%w in %s (looked for %s)", domain.ErrConfigNotFound, dir, strings.Join(FileNames(), ", "))
}

// Load reads and decodes the configuration file in dir. The returned
// config's Dir is set to dir.
func (l *Loader) Load(dir string) (*domain.Config, error) {
	path, format, err := l.Find(dir)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrConfigNotFound, path, err)
	}

	cfg, err := Parse(data, format)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.File = path
		}
		return nil, err
	}
	cfg.Dir = dir
	return cfg, nil
}

// LoadDependency loads the configuration of a dependency declared as depPath
// by the configuration in baseDir.
func (l *Loader) LoadDependency(baseDir, depPath string) (*domain.Config, error) {
	dir := depPath
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(baseDir, depPath)
	}
	return l.Load(dir)
}

// =============================================================================
// Parsing
// =============================================================================

// Parse decodes configuration data of the given format.
// This is a pure function - no I/O, no side effects.
func Parse(data []byte, format Format) (*domain.Config, error) {
	raw, err := unmarshal(data, format)
	if err != nil {
		return nil, &ParseError{Message: err.Error(), Err: fmt.Errorf("%w: %v", domain.ErrConfigParse, err)}
	}

	var cfg domain.Config
	if err := decode(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func unmarshal(data []byte, format Format) (map[string]any, error) {
	raw := make(map[string]any)
	if len(bytes.TrimSpace(data)) == 0 {
		return raw, nil
	}

	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	case FormatJSON:
		err = json.Unmarshal(data, &raw)
	case FormatTOML:
		err = toml.Unmarshal(data, &raw)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	return raw, err
}

// decode maps the raw document onto the typed configuration. Weak typing
// accepts a numeric app id, a quoted port and a single exclude pattern
// given as a string.
func decode(raw map[string]any, cfg *domain.Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(raw); err != nil {
		return &ParseError{Message: err.Error(), Err: fmt.Errorf("%w: %v", domain.ErrConfigParse, err)}
	}
	return nil
}
