package config

// Config represents the complete hookrun configuration.
type Config struct {
	Service   ServiceConfig  `yaml:"service"`
	Listen    string         `yaml:"listen"`
	State     StateConfig    `yaml:"state"`
	Endpoints []HookEndpoint `yaml:"endpoints"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines delivery log storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// HookEndpoint defines a single webhook endpoint and the script it triggers.
type HookEndpoint struct {
	// Path is the URL path for this webhook (e.g., "/hooks/deploy")
	Path string `yaml:"path"`

	// Script is the filesystem path to the executable run on a verified delivery
	Script string `yaml:"script"`

	// Interpreter optionally names a program to run the script with (e.g., "bash").
	// Empty means the script is executed directly.
	Interpreter string `yaml:"interpreter,omitempty"`

	// Secret is the HMAC shared secret. Supports ${VAR} env interpolation.
	Secret string `yaml:"secret"`

	// SignatureHeader is the HTTP header carrying the HMAC signature
	// (default: "X-Hub-Signature-256")
	SignatureHeader string `yaml:"signature_header,omitempty"`

	// MaxBodySize is the maximum request body size (e.g., "32KB", "1MB")
	MaxBodySize string `yaml:"max_body_size,omitempty"`

	// Timeout bounds script execution (e.g., "2m"). Zero means no limit.
	Timeout string `yaml:"timeout,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "hookrun",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Listen: "127.0.0.1:8000",
		State: StateConfig{
			Path: "./data/hookrun.db",
		},
	}
}
