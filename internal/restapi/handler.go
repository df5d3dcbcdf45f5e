// Package restapi implements the REST gateway for site optimization and run history.
package restapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mtiwari1/siteopt/internal/artifact"
	"github.com/mtiwari1/siteopt/internal/ingest"
	"github.com/mtiwari1/siteopt/internal/metrics"
	"github.com/mtiwari1/siteopt/internal/pipeline"
	"github.com/mtiwari1/siteopt/internal/repository"
	"github.com/mtiwari1/siteopt/internal/transformer"
	pb "github.com/mtiwari1/siteopt/proto"
)

// Deps are the collaborators a Handler needs. Publisher and Metrics may be nil.
type Deps struct {
	Pipeline       *pipeline.Pipeline
	Transformer    transformer.Service
	Runs           pb.RunServiceServer
	Repo           repository.Repository
	Fetcher        *ingest.Fetcher
	Publisher      artifact.Publisher
	Metrics        *metrics.Metrics
	MaxUploadBytes int64
	TempDir        string
	Logger         *slog.Logger
}

// Handler holds dependencies for REST endpoints.
type Handler struct {
	Deps
}

// NewHandler creates a new REST handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// Routes builds the chi router with every endpoint mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)

	r.Route("/optimize", func(r chi.Router) {
		r.Post("/upload", h.optimizeUpload)
		r.Post("/github", h.optimizeGitHub)
	})
	r.Route("/ai", func(r chi.Router) {
		r.Post("/analyze", h.analyze)
		r.Post("/convert", h.convert)
		r.Post("/suggest", h.suggest)
		r.Post("/seo-analyze", h.seoAnalyze)
		r.Post("/complexity", h.complexity)
		r.Post("/accessibility", h.accessibility)
		r.Post("/react-convert", h.reactConvert)
	})
	r.Get("/runs", h.listRuns)
	r.Get("/runs/{id}", h.getRun)
	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", h.Metrics.Handler())
	return r
}

// instrument logs every request and records it in the HTTP metrics under its route pattern.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.Metrics.ObserveHTTP(r.Method, route, strconv.Itoa(status), time.Since(start))
		h.Logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
		)
	})
}

// requestLogger tags a logger with a fresh request_id.
func (h *Handler) requestLogger() *slog.Logger {
	return h.Logger.With(slog.String("request_id", uuid.New().String()))
}

// ---------- GET /healthz ----------

// healthz verifies the run history store and the scratch directory.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	result := map[string]string{"status": "ok"}
	httpStatus := http.StatusOK

	if err := h.Repo.Ping(ctx); err != nil {
		result["status"] = "degraded"
		result["database"] = "unreachable: " + err.Error()
		httpStatus = http.StatusServiceUnavailable
	} else {
		result["database"] = "connected"
	}

	if _, err := os.Stat(h.TempDir); err != nil {
		result["status"] = "degraded"
		result["disk"] = "temp dir inaccessible: " + err.Error()
		httpStatus = http.StatusServiceUnavailable
	} else {
		result["disk"] = "ok"
	}

	writeJSON(w, httpStatus, result)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
