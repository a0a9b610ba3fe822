// Package api serves the search service over HTTP: REST, JSON-RPC, GraphQL and a
// WebSocket progress stream share one chi router and middleware stack.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/0xmhha/chainprobe/pkg/api/graphql"
	"github.com/0xmhha/chainprobe/pkg/api/jsonrpc"
	apimiddleware "github.com/0xmhha/chainprobe/pkg/api/middleware"
	"github.com/0xmhha/chainprobe/pkg/api/websocket"
	"github.com/0xmhha/chainprobe/pkg/search"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Name is reported by the version endpoint
const Name = "chainprobe"

// Server represents the API server
type Server struct {
	config      *Config
	logger      *zap.Logger
	service     *search.Service
	hub         *websocket.Hub
	health      *HealthChecker
	rateLimiter *apimiddleware.RateLimiter
	version     string
	gatherer    prometheus.Gatherer
	router      *chi.Mux
	server      *http.Server
}

// Options holds the collaborators of the server
type Options struct {
	// Service is required
	Service *search.Service

	// Hub feeds the WebSocket endpoint. Required when WebSocket is enabled; the
	// caller runs it, the server stops it on shutdown.
	Hub *websocket.Hub

	// Version is reported by /version and /health
	Version string

	// Gatherer is served on /metrics. Default: prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer
}

// NewServer creates a new API server
func NewServer(config *Config, logger *zap.Logger, opts Options) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Service == nil {
		return nil, errors.New("search service cannot be nil")
	}
	if config.EnableWebSocket && opts.Hub == nil {
		return nil, errors.New("websocket enabled without a hub")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:   config,
		logger:   logger.With(zap.String("component", "api")),
		service:  opts.Service,
		hub:      opts.Hub,
		version:  opts.Version,
		gatherer: opts.Gatherer,
		router:   chi.NewRouter(),
	}
	s.health = NewHealthChecker(s.service, s.hub, s.version)

	s.setupMiddleware()
	if err := s.setupRoutes(); err != nil {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		return nil, err
	}

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	// Recovery must be first
	s.router.Use(apimiddleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.LoggerWithLevel(s.logger))

	if s.config.EnableRateLimit {
		s.rateLimiter = apimiddleware.NewRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst, s.logger)
		s.router.Use(s.rateLimiter.Handler)
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}

	if s.config.EnableCORS {
		s.router.Use(cors(s.config.AllowedOrigins))
	}
}

// cors adds CORS headers to every response and answers preflight requests
func cors(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}

			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Upgrade, Connection")
					w.Header().Set("Access-Control-Max-Age", "300")
					break
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() error {
	if s.config.EnableWebSocket {
		s.router.Get(s.config.WebSocketPath, websocket.NewServer(s.hub, s.logger).ServeHTTP)
		s.logger.Info("WebSocket API enabled", zap.String("path", s.config.WebSocketPath))
	}

	s.router.Get("/health", s.health.DetailedHealthHandler())
	s.router.Get("/health/live", s.health.LivenessHandler())
	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	rest := &restHandler{service: s.service, prefix: s.config.RESTPrefix, logger: s.logger}
	s.router.Mount(s.config.RESTPrefix, rest.routes())

	if s.config.EnableGraphQL {
		handler, err := graphql.NewHandler(s.service, s.logger)
		if err != nil {
			return fmt.Errorf("failed to create GraphQL handler: %w", err)
		}
		s.router.Handle(s.config.GraphQLPath, handler)
		s.router.Get(s.config.GraphQLPlaygroundPath, handler.ServeHTTP)
		s.logger.Info("GraphQL API enabled",
			zap.String("path", s.config.GraphQLPath),
			zap.String("playground", s.config.GraphQLPlaygroundPath))
	}

	if s.config.EnableJSONRPC {
		s.router.Post(s.config.JSONRPCPath, jsonrpc.NewServer(s.service, s.logger).ServeHTTP)
		s.logger.Info("JSON-RPC API enabled", zap.String("path", s.config.JSONRPCPath))
	}
	return nil
}

// handleVersion handles the version endpoint
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    Name,
		"version": s.version,
	})
}

// Start starts the API server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		zap.String("address", s.config.Address()),
		zap.String("rest", s.config.RESTPrefix),
		zap.Bool("graphql", s.config.EnableGraphQL),
		zap.Bool("jsonrpc", s.config.EnableJSONRPC),
		zap.Bool("websocket", s.config.EnableWebSocket),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	// WebSocket connections are hijacked and not tracked by Shutdown
	if s.hub != nil {
		s.hub.Stop()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
