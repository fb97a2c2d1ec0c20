package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Environment variables used by the env-only fallback mode. These are the
// names the service has always honored, so a config file is optional for the
// single-endpoint case.
const (
	EnvSecret = "WEBHOOK_SECRET"
	EnvScript = "WEBHOOK_SCRIPT"
)

// Load reads and parses configuration from a file.
// Endpoint secrets support ${VAR} interpolation from the environment.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		// Directory provided - look for hookrun.yaml inside
		absPath = filepath.Join(absPath, "hookrun.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but hookrun.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Apply environment variable interpolation before parsing
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	// Hash-verify the config file when a .checksums manifest exists beside it
	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds a single-endpoint configuration from WEBHOOK_SECRET and
// WEBHOOK_SCRIPT. Used when no config file is present. Absence of either
// variable is a configuration error, never a verification error.
func FromEnv() (*Config, error) {
	secret := os.Getenv(EnvSecret)
	if secret == "" {
		return nil, fmt.Errorf("environment variable %s is not set", EnvSecret)
	}
	script := os.Getenv(EnvScript)
	if script == "" {
		return nil, fmt.Errorf("environment variable %s is not set", EnvScript)
	}

	cfg := Defaults()
	cfg.Endpoints = []HookEndpoint{
		{
			Path:   "/",
			Script: script,
			Secret: secret,
		},
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover resolves configuration from standard locations.
// Priority order: explicit path, $HOOKRUN_CONFIG, ./hookrun.yaml,
// ~/.config/hookrun/hookrun.yaml, then the env-only fallback.
func Discover(configPath string) (*Config, error) {
	if configPath != "" {
		return Load(configPath)
	}

	if p := os.Getenv("HOOKRUN_CONFIG"); p != "" {
		return Load(p)
	}

	if _, err := os.Stat("./hookrun.yaml"); err == nil {
		return Load("./hookrun.yaml")
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "hookrun", "hookrun.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return Load(userConfig)
		}
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, fmt.Errorf("no config file found and env fallback failed: %w", err)
	}
	return cfg, nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (caught later by validation).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// applyDefaults merges default values into cfg where not explicitly set.
func applyDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Listen == "" {
		cfg.Listen = defaults.Listen
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if len(cfg.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}

	seen := make(map[string]int)
	for i, ep := range cfg.Endpoints {
		if ep.Path == "" {
			return fmt.Errorf("endpoints[%d].path is required", i)
		}
		if ep.Script == "" {
			return fmt.Errorf("endpoints[%d].script is required", i)
		}
		if ep.Secret == "" {
			return fmt.Errorf("endpoints[%d].secret is required", i)
		}
		// Unresolved ${VAR} means the env var was not set. Report the name,
		// never the value.
		if envVarPattern.MatchString(ep.Secret) {
			matches := envVarPattern.FindStringSubmatch(ep.Secret)
			return fmt.Errorf("endpoints[%d].secret: environment variable ${%s} is not set", i, matches[1])
		}
		if prev, dup := seen[ep.Path]; dup {
			return fmt.Errorf("endpoints[%d].path %q conflicts with endpoints[%d]", i, ep.Path, prev)
		}
		seen[ep.Path] = i
	}

	return nil
}
