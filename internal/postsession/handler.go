package postsession

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/tutoring-ai-platform/pkg/logging"
)

// Handler wires HTTP requests to the update pipeline.
type Handler struct {
	dispatcher *Dispatcher
	jobs       JobRecorder
	logger     *logging.Logger
}

// NewHandler creates a post-session update handler. The job recorder may
// be nil when status polling is not exposed.
func NewHandler(dispatcher *Dispatcher, jobs JobRecorder, logger *logging.Logger) *Handler {
	if dispatcher == nil {
		panic("postsession: dispatcher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{dispatcher: dispatcher, jobs: jobs, logger: logger}
}

// Analyze handles POST /sessions/{sessionID}/analyze. The update runs
// asynchronously; the response carries the job id to poll.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid session id", http.StatusBadRequest)
		return
	}

	jobID, err := h.dispatcher.Enqueue(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to enqueue update job", "session_id", sessionID, "error", err)
		http.Error(w, "Failed to schedule update", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     jobID,
		"session_id": sessionID,
		"status":     string(JobStatusPending),
	})
}

// GetJob handles GET /jobs/{jobID}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "Job tracking disabled", http.StatusNotFound)
		return
	}
	jobID := chi.URLParam(r, "jobID")

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load job", "job_id", jobID, "error", err)
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, job)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
