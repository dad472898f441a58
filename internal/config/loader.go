package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is consulted when no config path is given. The EVENTTAP_CONFIG
// environment variable overrides it.
const DefaultPath = "configs/eventtap.yaml"

// resolvePath picks the config file to read: explicit path, then
// EVENTTAP_CONFIG, then DefaultPath.
func resolvePath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("EVENTTAP_CONFIG"); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads a YAML config file and expands environment variables inside it.
// An empty path falls back to EVENTTAP_CONFIG, then DefaultPath.
func Load(path string) (*ClientConfig, error) {
	path = resolvePath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg ClientConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*ClientConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*ClientConfig, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", resolvePath(path), err)
	}
	return cfg, nil
}
