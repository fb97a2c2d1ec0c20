// Package doctor validates hookrun configuration and endpoint setup.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"hookrun/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration against the host environment.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validateListen(r)
	d.validateEndpoints(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateServiceConfig checks required service fields.
func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "service", "state.path", "state.path is required")
	}
	switch d.cfg.Service.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		d.addError(r, "service", "service.log_level",
			fmt.Sprintf("unknown log level %q (expected debug, info, warn, or error)", d.cfg.Service.LogLevel))
	}
}

// validateListen checks the listen address is parseable.
func (d *Doctor) validateListen(r *Result) {
	if d.cfg.Listen == "" {
		d.addError(r, "listen", "listen", "listen address is required")
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.Listen)
	if err != nil {
		d.addError(r, "listen", "listen",
			fmt.Sprintf("invalid listen address %q: %v", d.cfg.Listen, err))
		return
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		d.addWarning(r, "listen", "listen",
			"listening on all interfaces; prefer binding to localhost behind a reverse proxy")
	}
}

// validateEndpoints checks each webhook endpoint for path conflicts, scripts,
// secrets, and parseable limits.
func (d *Doctor) validateEndpoints(r *Result) {
	if len(d.cfg.Endpoints) == 0 {
		d.addError(r, "endpoints", "endpoints", "at least one endpoint is required")
		return
	}

	seen := make(map[string]int)
	for i, ep := range d.cfg.Endpoints {
		field := fmt.Sprintf("endpoints[%d]", i)

		if ep.Path == "" {
			d.addError(r, "endpoints", field+".path", "path is required")
		} else if !strings.HasPrefix(ep.Path, "/") {
			d.addError(r, "endpoints", field+".path",
				fmt.Sprintf("path %q must start with /", ep.Path))
		}

		// Check for path conflicts
		normalized := strings.TrimSuffix(ep.Path, "/")
		if prevIdx, exists := seen[normalized]; exists {
			d.addError(r, "endpoints", field+".path",
				fmt.Sprintf("path %q conflicts with endpoints[%d]", ep.Path, prevIdx))
		}
		seen[normalized] = i

		d.validateScript(r, field, ep)

		if ep.Secret == "" {
			d.addError(r, "endpoints", field+".secret",
				fmt.Sprintf("endpoint %q: secret is required", ep.Path))
		}

		if ep.Timeout != "" {
			if dur, err := time.ParseDuration(ep.Timeout); err != nil {
				d.addError(r, "endpoints", field+".timeout",
					fmt.Sprintf("invalid timeout %q: %v", ep.Timeout, err))
			} else if dur < time.Second {
				d.addWarning(r, "endpoints", field+".timeout",
					fmt.Sprintf("timeout %q is very short (< 1s)", ep.Timeout))
			}
		}
	}
}

// validateScript checks the action script exists and is runnable.
func (d *Doctor) validateScript(r *Result, field string, ep config.HookEndpoint) {
	if ep.Script == "" {
		d.addError(r, "scripts", field+".script",
			fmt.Sprintf("endpoint %q: script is required", ep.Path))
		return
	}

	info, err := os.Stat(ep.Script)
	if err != nil {
		if os.IsNotExist(err) {
			d.addError(r, "scripts", field+".script",
				fmt.Sprintf("script %q does not exist", ep.Script))
		} else {
			d.addError(r, "scripts", field+".script",
				fmt.Sprintf("script %q: %v", ep.Script, err))
		}
		return
	}

	if info.IsDir() {
		d.addError(r, "scripts", field+".script",
			fmt.Sprintf("script %q is a directory", ep.Script))
		return
	}

	// With an interpreter the script only needs to be readable
	if ep.Interpreter == "" && info.Mode().Perm()&0o111 == 0 {
		d.addError(r, "scripts", field+".script",
			fmt.Sprintf("script %q is not executable (and no interpreter is set)", ep.Script))
	}
}

// warnMissingEnvVars warns about ${VAR} references where VAR is not set.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	envVarRe := regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)

	for i, ep := range d.cfg.Endpoints {
		if ep.Secret == "" || !envVarRe.MatchString(ep.Secret) {
			continue
		}
		for _, m := range envVarRe.FindAllStringSubmatch(ep.Secret, -1) {
			if os.Getenv(m[1]) == "" {
				d.addWarning(r, "env_vars", fmt.Sprintf("endpoints[%d].secret", i),
					fmt.Sprintf("environment variable ${%s} not set", m[1]))
			}
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
