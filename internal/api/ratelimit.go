package api

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/townsquareapp/townsquare-server/internal/ratelimit"
)

// NewRateLimiter creates a per-IP limiter allowing ratePerInterval requests
// per interval with the given burst.
func NewRateLimiter(ratePerInterval int, interval time.Duration, burst int) *ratelimit.KeyedRateLimiter {
	rps := float64(ratePerInterval) / interval.Seconds()
	return ratelimit.New(rps, burst)
}

// allowClient consumes a token for the caller's IP, returning a 429 when the
// bucket is empty. A nil limiter allows everything.
func (s *Server) allowClient(ctx context.Context, limiter *ratelimit.KeyedRateLimiter, operation string) error {
	if limiter == nil {
		return nil
	}
	ip := ClientIPFrom(ctx)
	if limiter.Allow(ip) {
		return nil
	}
	s.logger.Warn("Rate limit exceeded", "ip", ip, "operation", operation)
	return huma.Error429TooManyRequests("Too many requests. Please try again later.")
}
