package webhook

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"hookrun/internal/config"
)

// FromGlobalConfig converts the loaded service configuration into the webhook
// server's resolved form, parsing size and duration strings.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}

	out := Config{
		Listen:    cfg.Listen,
		Endpoints: make([]EndpointConfig, len(cfg.Endpoints)),
	}

	for i, ep := range cfg.Endpoints {
		maxBodySize, err := parseMaxBodySize(ep.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("endpoint %q: invalid max_body_size %q: %w", ep.Path, ep.MaxBodySize, err)
		}

		var timeout time.Duration
		if ep.Timeout != "" {
			timeout, err = time.ParseDuration(ep.Timeout)
			if err != nil {
				return Config{}, fmt.Errorf("endpoint %q: invalid timeout %q: %w", ep.Path, ep.Timeout, err)
			}
			if timeout < 0 {
				return Config{}, fmt.Errorf("endpoint %q: timeout must not be negative", ep.Path)
			}
		}

		out.Endpoints[i] = EndpointConfig{
			Path:            ep.Path,
			Script:          ep.Script,
			Interpreter:     ep.Interpreter,
			Secret:          ep.Secret,
			SignatureHeader: ep.SignatureHeader,
			MaxBodySize:     maxBodySize,
			Timeout:         timeout,
		}
	}

	return out, nil
}

// parseMaxBodySize parses size strings like "32KB", "1MB", "65536" to bytes.
// Returns DefaultMaxBodySize if empty.
func parseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	// Handle unit suffixes (KB, MB, GB)
	upper := strings.ToUpper(size)
	multiplier := int64(1)

	if strings.HasSuffix(upper, "KB") {
		multiplier = 1024
		size = strings.TrimSuffix(upper, "KB")
	} else if strings.HasSuffix(upper, "MB") {
		multiplier = 1024 * 1024
		size = strings.TrimSuffix(upper, "MB")
	} else if strings.HasSuffix(upper, "GB") {
		multiplier = 1024 * 1024 * 1024
		size = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}

	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result < 0 { // Check for overflow
		return 0, fmt.Errorf("size too large")
	}

	return result, nil
}
