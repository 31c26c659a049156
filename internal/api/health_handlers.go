package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Version    string                     `json:"version" doc:"Server version"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	backend := s.checkBackend(ctx)

	overall := "healthy"
	switch backend.Status {
	case "unhealthy":
		overall = "unhealthy"
	case "degraded":
		overall = "degraded"
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Version:    s.opts.Version,
			Components: map[string]ComponentHealth{"backend": backend},
		},
	}, nil
}

// checkBackend pings the remote store when it supports it.
func (s *Server) checkBackend(ctx context.Context) ComponentHealth {
	if s.opts.Backend == nil {
		return ComponentHealth{Status: "degraded", Message: "backend not configured"}
	}
	pinger, ok := s.opts.Backend.(Pinger)
	if !ok {
		return ComponentHealth{Status: "healthy", Message: "ping not supported"}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := pinger.Ping(ctx)
	latency := time.Since(start)
	if err != nil {
		s.logger.Warn("Backend ping failed", "error", err)
		return ComponentHealth{Status: "unhealthy", Latency: latency.String(), Message: "backend unreachable"}
	}
	return ComponentHealth{Status: "healthy", Latency: latency.String()}
}
