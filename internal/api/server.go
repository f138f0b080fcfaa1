// Package api exposes the engine over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/sells-group/juror-match/internal/config"
	"github.com/sells-group/juror-match/internal/engine"
	"github.com/sells-group/juror-match/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 4 << 20

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	engine   *engine.Engine
	store    store.Store
	cfg      config.ServerConfig
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables candidate persistence and weight reloads. Without a store
// the candidate status and reload routes answer 503.
func WithStore(st store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewServer creates a Server.
func NewServer(eng *engine.Engine, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{engine: eng, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(burst, 1))
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimit(s.limiter))
		r.Use(middleware.AllowContentType("application/json"))

		r.Post("/names/parse", s.handleParseName)

		r.Post("/identity/score", s.handleScoreCandidates)
		r.Get("/identity/jurors/{jurorID}/candidates", s.handleListCandidates)
		r.Post("/identity/candidates/{candidateID}/confirm", s.handleConfirmCandidate)
		r.Post("/identity/candidates/{candidateID}/reject", s.handleRejectCandidate)

		r.Post("/personas/classify", s.handleClassify)
		r.Post("/personas/classify/batch", s.handleClassifyBatch)

		r.Get("/weights", s.handleGetWeights)
		r.Post("/weights/reload", s.handleReloadWeights)
	})

	return r
}
