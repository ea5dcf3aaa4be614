// Package config holds the run configuration of xinfo. A Config is built
// once by the command line layer (defaults, then the YAML file, then the
// environment, then flags) and passed explicitly to every component.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name under the user config directory.
const DefaultFile = "config.yaml"

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputHTML  = "html"
)

var (
	ErrOracleHome = errors.New("config: ORACLE_HOME")
	ErrOraVersion = errors.New("config: oraversion")
	ErrInvalid    = errors.New("config: invalid")
)

// Config is the run configuration.
type Config struct {
	// Binary is the engine executable to decode.
	Binary string `yaml:"ora_binary"`
	// Version is the engine major version (19, 23, ...).
	Version int `yaml:"ora_version"`
	// Refresh bypasses and rewrites the persistent cache.
	Refresh bool `yaml:"-"`
	// CacheDir is the root of the persistent cache.
	CacheDir string `yaml:"cache_dir"`
	// Output is the output format: table, json or html.
	Output string `yaml:"output"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Output:   OutputTable,
		LogLevel: "info",
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/xinfo/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "xinfo", DefaultFile), nil
}

// LoadFile reads a YAML config file. A missing file yields a zero Config
// unless required is set.
func LoadFile(fs afero.Fs, path string, required bool) (Config, error) {
	var c Config
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return c, nil
		}
		return c, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return c, nil
}

// Merge overrides c with the non-zero fields of o.
func (c *Config) Merge(o Config) {
	if o.Binary != "" {
		c.Binary = o.Binary
	}
	if o.Version != 0 {
		c.Version = o.Version
	}
	if o.Refresh {
		c.Refresh = true
	}
	if o.CacheDir != "" {
		c.CacheDir = o.CacheDir
	}
	if o.Output != "" {
		c.Output = o.Output
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
}

// Validate checks the values that do not need the filesystem.
func (c Config) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("%w: engine binary is not set", ErrInvalid)
	}
	if c.Version <= 0 {
		return fmt.Errorf("%w: engine version %d", ErrInvalid, c.Version)
	}
	if !slices.Contains([]string{OutputTable, OutputJSON, OutputHTML}, c.Output) {
		return fmt.Errorf("%w: output %q (want table, json or html)", ErrInvalid, c.Output)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel) {
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	return nil
}
