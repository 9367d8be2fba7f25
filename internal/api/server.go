// Package api serves the enrichment pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/enrich"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/resilience"
	"github.com/sells-group/company-intel/internal/store"
)

// Enricher runs a full enrichment pass. *enrich.Orchestrator satisfies it.
type Enricher interface {
	Run(ctx context.Context, names []string) (*model.Report, enrich.Stats)
}

// Options configures a Server.
type Options struct {
	// MaxUploadBytes caps request bodies. Default: 10 MiB.
	MaxUploadBytes int64
	// MaxNames caps the names accepted per request. Zero means no cap.
	MaxNames int
	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins []string
	// Breakers, when set, is reported per provider by /health.
	Breakers *resilience.ProviderBreakers
}

// Server exposes synchronous enrichment and asynchronous runs.
type Server struct {
	enricher Enricher
	store    store.Store
	opts     Options

	// ctx outlives individual requests so async runs survive the handler.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Server. st may be nil, which disables the /v1/runs routes.
func New(e Enricher, st store.Store, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{enricher: e, store: st, opts: opts, ctx: ctx, cancel: cancel}
}

// Routes returns the router for all endpoints.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/enrich", s.handleEnrich)
		r.Post("/report", s.handleReport)
		if s.store != nil {
			r.Post("/runs", s.handleCreateRun)
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{id}", s.handleGetRun)
		}
	})
	return r
}

// Close cancels in-flight async runs and waits for them to record their
// outcome. Runs requested after Close are refused.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// begin registers a background run. It returns false once Close has started.
func (s *Server) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

type healthResponse struct {
	Status    string            `json:"status"`
	Providers map[string]string `json:"providers,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.opts.Breakers != nil {
		states := s.opts.Breakers.States()
		resp.Providers = make(map[string]string, len(states))
		for name, st := range states {
			resp.Providers[name] = st.String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
