package restapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	pb "github.com/mtiwari1/siteopt/proto"
)

// ---------- GET /runs ----------

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger()

	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	resp, err := h.Runs.ListRuns(r.Context(), &pb.ListRunsRequest{Limit: int32(limit)})
	if err != nil {
		logger.Error("list runs", slog.String("error", err.Error()))
		writeError(w, grpcToHTTPStatus(err), "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, resp.Runs)
}

// ---------- GET /runs/{id} ----------

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger()
	id := chi.URLParam(r, "id")

	resp, err := h.Runs.GetRun(r.Context(), &pb.GetRunRequest{Id: id})
	if err != nil {
		code := grpcToHTTPStatus(err)
		if code == http.StatusNotFound {
			writeError(w, code, "run not found")
			return
		}
		logger.Error("get run", slog.String("run_id", id), slog.String("error", err.Error()))
		writeError(w, code, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, resp.Run)
}
