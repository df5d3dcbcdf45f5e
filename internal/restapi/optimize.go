package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtiwari1/siteopt/internal/artifact"
	"github.com/mtiwari1/siteopt/internal/ingest"
	"github.com/mtiwari1/siteopt/internal/report"
	"github.com/mtiwari1/siteopt/internal/repository"
)

// multipartSlack covers the multipart framing around the file part.
const multipartSlack = 1 << 20

// ---------- POST /optimize/upload ----------

func (h *Handler) optimizeUpload(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger()
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+multipartSlack)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		logger.Warn("form file error", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid multipart form: expected a zip in field \"file\"")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		writeError(w, http.StatusBadRequest, "only zip archives are supported")
		return
	}

	data, err := ingest.ReadUpload(file, h.MaxUploadBytes)
	if err != nil {
		code, msg := httpStatusFor(err)
		writeError(w, code, msg)
		return
	}

	opts, err := formOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.optimize(w, r, ingest.Upload{Filename: header.Filename, Data: data}, opts, logger)
}

// ---------- POST /optimize/github ----------

type githubRequest struct {
	RepoURL            string `json:"repo_url"`
	Aggressive         bool   `json:"aggressive"`
	SEOFocus           *bool  `json:"seo_focus"`
	AccessibilityFocus *bool  `json:"accessibility_focus"`
}

func (h *Handler) optimizeGitHub(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger()

	var req githubRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, _, err := ingest.ParseRepoURL(req.RepoURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := report.DefaultOptions()
	opts.Aggressive = req.Aggressive
	if req.SEOFocus != nil {
		opts.SEOFocus = *req.SEOFocus
	}
	if req.AccessibilityFocus != nil {
		opts.AccessibilityFocus = *req.AccessibilityFocus
	}
	h.optimize(w, r, ingest.Repository{URL: req.RepoURL, Fetcher: h.Fetcher}, opts, logger)
}

// optimize runs the pipeline for one request, records the run and streams the archive.
func (h *Handler) optimize(w http.ResponseWriter, r *http.Request, src ingest.Source, opts report.Options, logger *slog.Logger) {
	runID := uuid.New().String()
	logger = logger.With(slog.String("run_id", runID))
	logger.Info("optimization request received",
		slog.String("source", src.Name()),
		slog.Bool("aggressive", opts.Aggressive),
	)

	h.recordStart(runID, src.Name(), opts, logger)

	res, err := h.Pipeline.Process(r.Context(), src, opts)
	if err != nil {
		status := repository.StatusFailed
		if errors.Is(err, context.Canceled) {
			status = repository.StatusCancelled
		}
		h.persist(logger, func(ctx context.Context) error {
			return h.Repo.UpdateStatus(ctx, runID, status, err.Error())
		})
		code, msg := httpStatusFor(err)
		logger.Error("optimization failed", slog.String("error", err.Error()), slog.Int("http_status", code))
		writeError(w, code, msg)
		return
	}

	stats, err := json.Marshal(res.Report.Stats)
	if err != nil {
		logger.Error("encode stats", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "optimization failed")
		return
	}

	archiveURL := h.publish(r.Context(), runID, res.Archive, logger)
	h.persist(logger, func(ctx context.Context) error {
		return h.Repo.Complete(ctx, runID, stats, archiveURL)
	})

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.ArchiveName))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Archive)))
	w.Header().Set("X-Optimization-Report", string(stats))
	w.Header().Set("X-Run-ID", runID)
	if archiveURL != "" {
		w.Header().Set("X-Archive-URL", archiveURL)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Archive); err != nil {
		logger.Warn("write archive", slog.String("error", err.Error()))
	}
}

// publish uploads the archive when a store is configured. Failures only cost the URL.
func (h *Handler) publish(ctx context.Context, runID string, data []byte, logger *slog.Logger) string {
	if h.Publisher == nil {
		return ""
	}
	url, err := h.Publisher.Publish(ctx, runID, data)
	if err != nil {
		logger.Warn("archive publication failed", slog.String("error", err.Error()))
		return ""
	}
	return url
}

// recordStart stores the running row. Run history is best effort and never fails a request.
func (h *Handler) recordStart(runID, source string, opts report.Options, logger *slog.Logger) {
	raw, _ := json.Marshal(opts)
	h.persist(logger, func(ctx context.Context) error {
		return h.Repo.Create(ctx, &repository.Run{
			ID:      runID,
			Source:  source,
			Status:  repository.StatusRunning,
			Options: raw,
		})
	})
}

// persist runs a repository write on its own deadline so a cancelled request still
// leaves a terminal status behind.
func (h *Handler) persist(logger *slog.Logger, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("run history write failed", slog.String("error", err.Error()))
	}
}

// formOptions reads the run options from query or form values, defaulting focus flags on.
func formOptions(r *http.Request) (report.Options, error) {
	opts := report.DefaultOptions()
	for _, f := range []struct {
		key string
		dst *bool
	}{
		{"aggressive", &opts.Aggressive},
		{"seo_focus", &opts.SEOFocus},
		{"accessibility_focus", &opts.AccessibilityFocus},
	} {
		raw := r.FormValue(f.key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid %s: %q", f.key, raw)
		}
		*f.dst = v
	}
	return opts, nil
}
