// Package config loads and validates the client configuration.
//
// Configuration is YAML on disk, validated against an embedded CUE schema so
// a bad file fails at startup with a field-level message instead of at the
// first remote call.
package config

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Config is the full client configuration.
type Config struct {
	Remote   RemoteConfig   `yaml:"remote" json:"remote"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Backoff  BackoffConfig  `yaml:"backoff" json:"backoff"`
	Network  NetworkConfig  `yaml:"network" json:"network"`
}

// RemoteConfig points at the sync backend.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// DatabaseConfig locates the durable mutation queue.
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// BackoffConfig bounds the retry schedule for failed syncs.
type BackoffConfig struct {
	BaseMS int64 `yaml:"base_ms" json:"base_ms"`
	CapMS  int64 `yaml:"cap_ms" json:"cap_ms"`
}

// Base returns the initial retry delay.
func (b BackoffConfig) Base() time.Duration { return time.Duration(b.BaseMS) * time.Millisecond }

// Cap returns the maximum retry delay.
func (b BackoffConfig) Cap() time.Duration { return time.Duration(b.CapMS) * time.Millisecond }

// NetworkConfig controls reachability probing. An empty ProbeURL disables the
// prober; the manager then relies on manual online/offline signals.
type NetworkConfig struct {
	ProbeURL   string `yaml:"probe_url" json:"probe_url"`
	IntervalMS int64  `yaml:"interval_ms" json:"interval_ms"`
}

// Interval returns the probe period.
func (n NetworkConfig) Interval() time.Duration {
	return time.Duration(n.IntervalMS) * time.Millisecond
}

// schema is the CUE contract every loaded Config must satisfy.
const schema = `
remote: {
	base_url: string & !=""
}
database: {
	path: string & !=""
}
backoff: {
	base_ms: int & >0
	cap_ms:  int & >=base_ms
}
network: {
	probe_url:   string
	interval_ms: int & >0
}
`

// Default returns the configuration used when a field is absent from the
// loaded file.
func Default() Config {
	return Config{
		Remote:   RemoteConfig{BaseURL: "http://localhost:8080"},
		Database: DatabaseConfig{Path: "roadbook.db"},
		Backoff:  BackoffConfig{BaseMS: 1000, CapMS: 30000},
		Network:  NetworkConfig{ProbeURL: "", IntervalMS: 5000},
	}
}

// Load reads a YAML config file, fills absent fields with defaults, and
// validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate unifies the configuration with the embedded CUE schema and reports
// the first constraint violation.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	constraint := ctx.CompileString(schema)
	if err := constraint.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	unified := constraint.Unify(ctx.Encode(cfg))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
