package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/gobarber/libs/auth"
	"github.com/md-rashed-zaman/gobarber/libs/httpx"
	"github.com/md-rashed-zaman/gobarber/libs/jobqueue"
)

const (
	defaultDeadLimit = 50
	maxDeadLimit     = 500
)

type JobAdmin interface {
	Stats(ctx context.Context, kind string) (jobqueue.Stats, error)
	Dead(ctx context.Context, kind string, limit int) ([]jobqueue.Job, error)
	Redrive(ctx context.Context, kind, id string) error
}

// OpsHandler lets operators look into the dead set and push jobs back.
type OpsHandler struct {
	queue  JobAdmin
	token  string
	kinds  map[string]bool
	logger *slog.Logger
}

func NewOpsHandler(queue JobAdmin, token string, kinds []string, logger *slog.Logger) *OpsHandler {
	known := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		known[k] = true
	}
	return &OpsHandler{queue: queue, token: token, kinds: known, logger: logger}
}

func (h *OpsHandler) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/ops/jobs/{kind}/stats", h.guard(h.Stats))
	mux.Handle("GET /api/v1/ops/jobs/{kind}/dead", h.guard(h.Dead))
	mux.Handle("POST /api/v1/ops/jobs/{kind}/dead/{id}/redrive", h.guard(h.Redrive))
}

// guard checks the shared operator token and the job kind. An empty token
// disables the endpoints.
func (h *OpsHandler) guard(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		given := auth.BearerToken(r)
		if h.token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.token)) != 1 {
			httpx.WriteError(w, http.StatusUnauthorized, "operator token invalid")
			return
		}
		if !h.kinds[r.PathValue("kind")] {
			httpx.WriteError(w, http.StatusNotFound, "unknown job kind")
			return
		}
		next(w, r)
	})
}

func (h *OpsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context(), r.PathValue("kind"))
	if err != nil {
		h.internal(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *OpsHandler) Dead(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeadLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = min(n, maxDeadLimit)
	}
	jobs, err := h.queue.Dead(r.Context(), r.PathValue("kind"), limit)
	if err != nil {
		h.internal(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []jobqueue.Job{}
	}
	httpx.WriteJSON(w, http.StatusOK, jobs)
}

func (h *OpsHandler) Redrive(w http.ResponseWriter, r *http.Request) {
	kind, id := r.PathValue("kind"), r.PathValue("id")
	err := h.queue.Redrive(r.Context(), kind, id)
	if errors.Is(err, jobqueue.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "job not in dead set")
		return
	}
	if err != nil {
		h.internal(w, r, err)
		return
	}
	h.logger.Info("job redriven", "kind", kind, "job_id", id)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "waiting"})
}

func (h *OpsHandler) internal(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("ops request failed", "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
}
