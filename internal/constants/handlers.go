// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100

	// SSEKeepAliveInterval is how often an idle event stream receives a comment line
	SSEKeepAliveInterval = 15 * time.Second
)

// Request body constants
const (
	// MaxRequestBodySize is the maximum JSON request body in bytes (1MB)
	MaxRequestBodySize = 1 << 20
)
