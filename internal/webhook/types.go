package webhook

import (
	"context"
	"time"

	"hookrun/internal/runner"
)

// ActionLauncher defines the interface for launching the action behind a
// verified delivery. Launch must not block on the action completing; it
// returns once the process has started (or failed to start).
type ActionLauncher interface {
	Launch(ctx context.Context, req runner.LaunchRequest) (string, error)
}

// Config holds webhook server configuration.
type Config struct {
	Listen    string
	Endpoints []EndpointConfig
}

// EndpointConfig defines a single webhook endpoint.
type EndpointConfig struct {
	// Path is the URL path for this webhook (e.g., "/hooks/deploy")
	Path string

	// Script is the executable launched on a verified delivery
	Script string

	// Interpreter optionally wraps the script (e.g., "bash")
	Interpreter string

	// Secret is the HMAC shared secret for signature verification
	Secret string

	// SignatureHeader is the HTTP header containing the HMAC signature
	SignatureHeader string

	// MaxBodySize is the maximum allowed request body size in bytes
	MaxBodySize int64

	// Timeout bounds the action's execution. Zero means unlimited.
	Timeout time.Duration
}

// TriggerResponse is the JSON response for accepted deliveries.
type TriggerResponse struct {
	DeliveryID string `json:"delivery_id"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default values
const (
	// DefaultMaxBodySize bounds CPU/memory cost per verification (32 KiB).
	DefaultMaxBodySize = 32 * 1024

	DefaultSignatureHeader = "X-Hub-Signature-256"
)
