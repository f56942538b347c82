// Package http exposes the simulator over a JSON API together with the
// health, readiness and metrics endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/crisis-sim/internal/assistant"
	"github.com/couchcryptid/crisis-sim/internal/domain"
	"github.com/couchcryptid/crisis-sim/internal/resolver"
	"github.com/couchcryptid/crisis-sim/internal/state"
	"github.com/couchcryptid/crisis-sim/internal/synthesis"
)

// Synthesizer runs scenarios against the shared state.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string) (synthesis.Report, error)
	Tick(ctx context.Context) domain.TableSnapshot
	Reset(ctx context.Context)
	CheckReadiness(ctx context.Context) error
}

// StateReader reads copies of the simulation tables.
type StateReader interface {
	Snapshot() state.Snapshot
	Alerts() []domain.Alert
	Facilities() []domain.Facility
	Resources() []domain.ResourceStatus
	Social() []domain.SocialUpdate
}

// FacilityResolver answers nearest-facility, routing and location queries.
type FacilityResolver interface {
	Guide(ctx context.Context, origin resolver.Origin, category *domain.FacilityCategory) (resolver.Guidance, error)
	Route(ctx context.Context, origin, destination domain.Coordinate) resolver.RouteResult
	Locate(ctx context.Context) resolver.Origin
	Label(ctx context.Context, c domain.Coordinate) string
}

// Asker answers free-text questions.
type Asker interface {
	Ask(ctx context.Context, query string) (assistant.Answer, error)
}

// Deps are the services behind the API. Assistant may be nil, which
// disables /api/ask and /api/ask/voice. Transcriber may be nil, which
// disables /api/ask/voice.
type Deps struct {
	Synthesizer Synthesizer
	State       StateReader
	Resolver    FacilityResolver
	Assistant   Asker
	Transcriber domain.Transcriber
}

// Options tunes the HTTP layer.
type Options struct {
	// RateLimit and RateBurst bound requests to the model-backed endpoints.
	RateLimit float64
	RateBurst int
	// SynthesisTimeout bounds a whole POST /api/scenario request.
	SynthesisTimeout time.Duration
}

// Server serves the JSON API plus /healthz, /readyz and /metrics.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the gin engine and the underlying http.Server.
func NewServer(addr string, deps Deps, opts Options, logger *slog.Logger) *Server {
	if opts.SynthesisTimeout <= 0 {
		opts.SynthesisTimeout = 2 * time.Minute
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	engine.GET("/healthz", gin.WrapF(sharedobs.LivenessHandler()))
	engine.GET("/readyz", gin.WrapF(sharedobs.ReadinessHandler(deps.Synthesizer)))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handler{deps: deps, opts: opts, logger: logger}
	h.register(engine, RateLimitMiddleware(opts.RateLimit, opts.RateBurst))

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       10 * time.Second,
			// Synthesis waits on three model calls.
			WriteTimeout: opts.SynthesisTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// requestLogger logs one line per request with slog.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
