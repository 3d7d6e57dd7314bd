// Package dashboard serves the review API: upload CRM exports, run the
// de-duplication pipeline and browse clusters or download the results.
package dashboard

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/crm-dedupe/internal/monitoring"
	"github.com/sells-group/crm-dedupe/internal/pipeline"
	"github.com/sells-group/crm-dedupe/internal/store"
)

// Origin recorded for runs started through the API.
const Origin = "dashboard"

// Options configures the HTTP API.
type Options struct {
	MaxUploadBytes int64
	AllowedOrigins []string
	MaxSessions    int
	// ResultTTL bounds how long a run's full result stays browsable.
	ResultTTL time.Duration
	// Health, when set, adds the latest run-health snapshot to /health.
	Health HealthSource
	// Encoding is the charset assumed for uploaded CSV files.
	Encoding string
}

// HealthSource reports the most recent run-health snapshot, or nil before
// the first check. *monitoring.Checker satisfies it.
type HealthSource interface {
	Last() *monitoring.MetricsSnapshot
}

// Server handles dashboard API requests.
type Server struct {
	pipeline *pipeline.Pipeline
	store    store.Store
	metrics  *monitoring.Metrics
	results  *resultCache
	opts     Options
}

// New creates a Server. metrics may be nil.
func New(p *pipeline.Pipeline, st store.Store, metrics *monitoring.Metrics, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 20
	}
	return &Server{
		pipeline: p,
		store:    st,
		metrics:  metrics,
		results:  newResultCache(opts.MaxSessions, opts.ResultTTL),
		opts:     opts,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.handleCreateRun)
		r.Get("/", s.handleListRuns)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Get("/download/{file}", s.handleDownload)
			r.Get("/{kind}/clusters", s.handleClusters)
			r.Get("/{kind}/top-names", s.handleTopNames)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.opts.Health != nil {
		if snap := s.opts.Health.Last(); snap != nil {
			body["monitor"] = snap
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// requestLogger logs one line per request with the zap global logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		zap.L().Debug("dashboard: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("dashboard: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
