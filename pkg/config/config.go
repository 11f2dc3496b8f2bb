package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/linescan/pkg/types"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "linescan-config.schema.json"

// Output formats.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
)

// Config holds all configuration for linescan
type Config struct {
	// Pattern configuration
	Patterns []Pattern `yaml:"patterns" toml:"patterns"`

	// Scanning
	Workers int  `yaml:"workers" toml:"workers" env:"LINESCAN_WORKERS"`
	Follow  bool `yaml:"follow" toml:"follow"`

	// Output
	Output      OutputConfig  `yaml:"output" toml:"output"`
	BatchWindow time.Duration `yaml:"batch_window" toml:"batch_window" env:"LINESCAN_BATCH_WINDOW"`

	Debug bool `yaml:"debug" toml:"debug" env:"LINESCAN_DEBUG"`
}

// Pattern enables or overrides one pattern kind. Name is the result field
// name of the kind, e.g. "ip" or "user_agent".
type Pattern struct {
	Name        string `yaml:"name" toml:"name"`
	Regex       string `yaml:"regex" toml:"regex"`
	Description string `yaml:"description" toml:"description"`
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
}

// OutputConfig selects where extracted spans go.
type OutputConfig struct {
	Format   string `yaml:"format" toml:"format" env:"LINESCAN_FORMAT"`
	Database string `yaml:"database" toml:"database"`
	// All also emits lines without any match.
	All bool `yaml:"all" toml:"all"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{
		Workers: 1,
		Output: OutputConfig{
			Format:   FormatText,
			Database: "linescan.db",
		},
	}
	for _, k := range types.PublicKinds {
		cfg.Patterns = append(cfg.Patterns, Pattern{Name: k.Field(), Enabled: true})
	}
	return cfg
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Try to load from config file
	configPath := getConfigPath()
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	// Validate configuration
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// EnabledKinds returns the set of kinds with an enabled pattern entry.
func (c *Config) EnabledKinds() types.KindSet {
	var set types.KindSet
	for _, p := range c.Patterns {
		if !p.Enabled {
			continue
		}
		if k, err := types.ParseKind(p.Name); err == nil {
			set = set.Add(k)
		}
	}
	return set
}

// Overrides returns the custom expressions of enabled patterns, keyed by kind.
func (c *Config) Overrides() map[types.PatternKind]string {
	out := make(map[types.PatternKind]string)
	for _, p := range c.Patterns {
		if !p.Enabled || p.Regex == "" {
			continue
		}
		if k, err := types.ParseKind(p.Name); err == nil {
			out[k] = p.Regex
		}
	}
	return out
}

// SetKinds enables exactly the kinds in set.
func (c *Config) SetKinds(set types.KindSet) {
	seen := make(map[string]bool)
	for i := range c.Patterns {
		p := &c.Patterns[i]
		k, err := types.ParseKind(p.Name)
		if err != nil {
			continue
		}
		p.Enabled = set.Contains(k)
		seen[k.Field()] = true
	}
	for _, k := range set.Kinds() {
		if !seen[k.Field()] {
			c.Patterns = append(c.Patterns, Pattern{Name: k.Field(), Enabled: true})
		}
	}
}

// getConfigPath returns the config file path
func getConfigPath() string {
	// Check for explicit config path
	if path := os.Getenv("LINESCAN_CONFIG"); path != "" {
		return path
	}

	// Check XDG config directory
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "linescan", "config.yaml")
	}

	// Fall back to home directory
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "linescan", "config.yaml")
	}

	return ""
}

// loadFromFile loads configuration from a YAML or TOML file
func loadFromFile(cfg *Config, path string) error {
	// #nosec G304 - The config file path comes from trusted sources (env var, flag or standard locations)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	isTOML := strings.EqualFold(filepath.Ext(path), ".toml")

	var doc interface{}
	if isTOML {
		var m map[string]interface{}
		if err := toml.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("parse toml: %w", err)
		}
		doc = m
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
	}
	if err := validateDocument(doc); err != nil {
		return err
	}

	if isTOML {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// validateDocument checks a decoded config document against the embedded
// JSON schema.
func validateDocument(doc interface{}) error {
	if doc == nil {
		// empty file
		return nil
	}

	// round-trip through JSON so the validator sees plain JSON values
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config document is not representable as JSON: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var instance interface{}
	if err := dec.Decode(&instance); err != nil {
		return err
	}

	schema, err := compileSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) error {
	if kinds := os.Getenv("LINESCAN_KINDS"); kinds != "" {
		set, err := types.ParseKindSet(kinds)
		if err != nil {
			return fmt.Errorf("invalid LINESCAN_KINDS: %w", err)
		}
		if !set.Empty() {
			cfg.SetKinds(set)
		}
	}

	if workers := os.Getenv("LINESCAN_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return fmt.Errorf("invalid LINESCAN_WORKERS: %w", err)
		}
		cfg.Workers = n
	}

	if format := os.Getenv("LINESCAN_FORMAT"); format != "" {
		cfg.Output.Format = format
	}

	if window := os.Getenv("LINESCAN_BATCH_WINDOW"); window != "" {
		d, err := time.ParseDuration(window)
		if err != nil {
			return fmt.Errorf("invalid LINESCAN_BATCH_WINDOW: %w", err)
		}
		cfg.BatchWindow = d
	}

	if debug := os.Getenv("LINESCAN_DEBUG"); debug != "" {
		switch debug {
		case "true", "1", "yes":
			cfg.Debug = true
		case "false", "0", "no":
			cfg.Debug = false
		default:
			return fmt.Errorf("invalid LINESCAN_DEBUG value: %q (use true/false)", debug)
		}
	}

	return nil
}

// Validate checks a configuration assembled outside Load, e.g. after flags
// were applied.
func Validate(cfg *Config) error {
	return validate(cfg)
}

// validate validates the configuration
func validate(cfg *Config) error {
	for _, p := range cfg.Patterns {
		if _, err := types.ParseKind(p.Name); err != nil {
			return fmt.Errorf("patterns: %w", err)
		}
	}

	if cfg.EnabledKinds().Empty() {
		return fmt.Errorf("at least one pattern must be enabled")
	}

	if cfg.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}

	switch cfg.Output.Format {
	case FormatText, FormatJSON:
	case FormatSQLite:
		if cfg.Output.Database == "" {
			return fmt.Errorf("output.database is required for the sqlite format")
		}
	default:
		return fmt.Errorf("unknown output format %q", cfg.Output.Format)
	}

	if cfg.BatchWindow < 0 {
		return fmt.Errorf("batch_window must be non-negative")
	}

	return nil
}
