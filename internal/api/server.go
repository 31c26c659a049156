// Package api exposes the TownSquare services over HTTP.
//
// Routes are registered with huma on a chi router. Every body is wrapped in a
// versioned envelope by EnvelopeTransformer, and domain errors are mapped to
// status codes through RegisterErrorHandler.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/townsquareapp/townsquare-server/internal/ratelimit"
)

// Options configures a Server.
type Options struct {
	Version     string
	CORSOrigins []string
	// LoginPerMinute and LoginBurst bound login attempts per client IP.
	// Zero disables limiting.
	LoginPerMinute int
	LoginBurst     int
	// Backend is checked by the health endpoint when it implements Pinger.
	Backend any
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services     *Services
	opts         Options
	router       *chi.Mux
	api          huma.API
	logger       *slog.Logger
	loginLimiter *ratelimit.KeyedRateLimiter
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(services *Services, opts Options, logger *slog.Logger) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(requestID)
	router.Use(clientIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerRequestID},
		ExposedHeaders:   []string{headerRequestID},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(authMiddleware(services.Auth))

	humaConfig := huma.DefaultConfig("TownSquare API", opts.Version)
	humaConfig.Info.Description = "Neighborhood community, vendor directory and civic reporting API"
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = []huma.Transformer{EnvelopeTransformer}

	RegisterErrorHandler()
	api := humachi.New(router, humaConfig)

	s := &Server{
		services: services,
		opts:     opts,
		router:   router,
		api:      api,
		logger:   logger,
	}
	if opts.LoginPerMinute > 0 {
		s.loginLimiter = NewRateLimiter(opts.LoginPerMinute, time.Minute, max(opts.LoginBurst, 1))
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerPostRoutes()
	s.registerEventRoutes()
	s.registerVendorRoutes()
	s.registerAnnouncementRoutes()
	s.registerReportRoutes()
	s.registerAdminRoutes()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, used to export the OpenAPI document.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	if s.loginLimiter != nil {
		s.loginLimiter.Stop()
	}
}

// bearerAuth marks an operation as accepting a bearer token.
var bearerAuth = []map[string][]string{{"bearer": {}}}

// MessageResponse is returned by operations with no other payload.
type MessageResponse struct {
	Message string `json:"message" doc:"Outcome description"`
}

// MessageOutput wraps MessageResponse for Huma.
type MessageOutput struct {
	Body MessageResponse
}

func message(text string) *MessageOutput {
	return &MessageOutput{Body: MessageResponse{Message: text}}
}

// IDInput is the path parameter shared by item operations.
type IDInput struct {
	ID string `path:"id" doc:"Item ID"`
}
