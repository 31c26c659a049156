package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown of services.
	shutdownTimeout = 30 * time.Second
)

// Version is reported by the health endpoint and the OpenAPI document.
// Release builds set it with -ldflags.
var Version = "dev"
