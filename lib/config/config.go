// Package config loads the asn1der command configuration.
//
// Configuration is a single YAML file named by the ASN1DER_CONFIG environment
// variable or passed with --config. There is no search path: a command either
// gets an explicit file or runs on defaults plus flags. Command-line flags
// override file values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ENV_CONFIG names the environment variable holding the config file path.
const ENV_CONFIG = "ASN1DER_CONFIG"

// Output selects how encoded bytes are written.
type Output string

const (
	// OutputHex writes lower-case hex followed by a newline.
	OutputHex Output = "hex"
	// OutputRaw writes the DER bytes unchanged.
	OutputRaw Output = "raw"
	// OutputAuto writes hex to a terminal and raw bytes otherwise.
	OutputAuto Output = "auto"
)

// Config holds the settings of the asn1der command.
type Config struct {
	// Schema is the path of the YAML schema document. Relative paths in a
	// config file are resolved against the file's directory.
	Schema string `yaml:"schema"`

	// Type is the schema type to encode.
	Type string `yaml:"type"`

	// InputFormat is the value document format: yaml, json or cbor. Empty
	// means detect from the value file extension, falling back to yaml.
	InputFormat string `yaml:"input_format"`

	// Output is hex, raw or auto.
	// Default: auto
	Output Output `yaml:"output"`

	// LogLevel is debug, info, warn or error.
	// Default: warn
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Output:   OutputAuto,
		LogLevel: "warn",
	}
}

// Load reads the file named by ASN1DER_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(ENV_CONFIG)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of a config file, or use --config flag", ENV_CONFIG)
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Schema = expandVars(cfg.Schema)
	if cfg.Schema != "" && !filepath.IsAbs(cfg.Schema) {
		cfg.Schema = filepath.Join(filepath.Dir(path), cfg.Schema)
	}
	return cfg, nil
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

// Validate checks the configuration for errors. Schema and Type are only
// required by commands that encode, so they are not checked here.
func (c *Config) Validate() error {
	var errs []error

	switch c.Output {
	case OutputHex, OutputRaw, OutputAuto:
	default:
		errs = append(errs, fmt.Errorf("invalid output: %q (want hex, raw or auto)", c.Output))
	}

	switch strings.ToLower(c.InputFormat) {
	case "", "yaml", "yml", "json", "jsonc", "cbor":
	default:
		errs = append(errs, fmt.Errorf("invalid input_format: %q", c.InputFormat))
	}

	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
