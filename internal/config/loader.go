package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/martijn-on-fhir/fhir-mcp-sub001/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/fhir-mcp"
	configFileName = "config.yaml"
)

// Environment variables that override file-borne secrets, so credentials
// never have to live on disk.
const (
	envBearerToken  = "FHIR_MCP_BEARER_TOKEN"
	envClientSecret = "FHIR_MCP_CLIENT_SECRET"
)

// DefaultConfigPath returns the user-level configuration directory.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// Load reads config.yaml from the given directory, applies defaults and
// environment overrides. A missing file yields the defaults.
func Load(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	cfg := Default()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "No config.yaml found at %s, using defaults", configFilePath)
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	applyEnvOverrides(&cfg)
	logging.Info("Config", "Loaded configuration from %s", configFilePath)
	return cfg, nil
}

// applyEnvOverrides replaces secret fields from the environment when set.
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv(envBearerToken); token != "" {
		cfg.Auth.BearerToken = token
	}
	if secret := os.Getenv(envClientSecret); secret != "" {
		cfg.Auth.OAuth.ClientSecret = secret
	}
}
