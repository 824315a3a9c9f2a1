package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/apperrors"
	"github.com/fsayahmob/DataTalk-sub001/pkg/events"
	"github.com/fsayahmob/DataTalk-sub001/pkg/services"
)

// JobsHandler exposes catalog job submission, status, cancellation, and the
// progress event stream.
type JobsHandler struct {
	catalog services.CatalogService
	redis   *redis.Client // nil disables the event stream
	logger  *zap.Logger
}

// NewJobsHandler creates a new jobs handler. redisClient may be nil.
func NewJobsHandler(catalog services.CatalogService, redisClient *redis.Client, logger *zap.Logger) *JobsHandler {
	return &JobsHandler{
		catalog: catalog,
		redis:   redisClient,
		logger:  logger,
	}
}

// RegisterRoutes registers the jobs handler's routes on the given mux.
func (h *JobsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/catalog/extract", h.SubmitExtraction)
	mux.HandleFunc("POST /api/catalog/enrich", h.SubmitEnrichment)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", h.Cancel)
	mux.HandleFunc("GET /api/jobs/{id}/events", h.StreamEvents)
}

type submitExtractionRequest struct {
	RunID string `json:"run_id"`
}

type submitEnrichmentRequest struct {
	RunID    string      `json:"run_id"`
	TableIDs []uuid.UUID `json:"table_ids,omitempty"`
}

// SubmitExtraction handles POST /api/catalog/extract
func (h *JobsHandler) SubmitExtraction(w http.ResponseWriter, r *http.Request) {
	var req submitExtractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.RunID == "" {
		ErrorResponse(w, http.StatusBadRequest, "invalid_parameters", "run_id is required")
		return
	}

	job, err := h.catalog.SubmitExtraction(r.Context(), req.RunID)
	if err != nil {
		h.logger.Error("Failed to submit extraction",
			zap.String("run_id", req.RunID),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to submit extraction")
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, job); err != nil {
		h.logger.Error("Failed to write job response", zap.Error(err))
	}
}

// SubmitEnrichment handles POST /api/catalog/enrich
func (h *JobsHandler) SubmitEnrichment(w http.ResponseWriter, r *http.Request) {
	var req submitEnrichmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.RunID == "" {
		ErrorResponse(w, http.StatusBadRequest, "invalid_parameters", "run_id is required")
		return
	}

	job, err := h.catalog.SubmitEnrichment(r.Context(), req.RunID, req.TableIDs)
	if err != nil {
		h.logger.Error("Failed to submit enrichment",
			zap.String("run_id", req.RunID),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to submit enrichment")
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, job); err != nil {
		h.logger.Error("Failed to write job response", zap.Error(err))
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := h.catalog.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			ErrorResponse(w, http.StatusNotFound, "not_found", "Job not found")
			return
		}
		h.logger.Error("Failed to get job",
			zap.String("job_id", jobID.String()),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to get job")
		return
	}

	if err := WriteJSON(w, http.StatusOK, job); err != nil {
		h.logger.Error("Failed to write job response", zap.Error(err))
	}
}

// Cancel handles POST /api/jobs/{id}/cancel
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	if err := h.catalog.Cancel(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			ErrorResponse(w, http.StatusNotFound, "not_found", "Job not found")
		case errors.Is(err, apperrors.ErrJobTerminal):
			ErrorResponse(w, http.StatusConflict, "job_terminal", "Job already finished")
		default:
			h.logger.Error("Failed to cancel job",
				zap.String("job_id", jobID.String()),
				zap.Error(err))
			ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to cancel job")
		}
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"}); err != nil {
		h.logger.Error("Failed to write cancel response", zap.Error(err))
	}
}

// StreamEvents handles GET /api/jobs/{id}/events as a server-sent event
// stream of progress events published for the job.
func (h *JobsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	if h.redis == nil {
		ErrorResponse(w, http.StatusServiceUnavailable, "events_unavailable", "Event streaming is not configured")
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Streaming unsupported")
		return
	}

	sub := h.redis.Subscribe(r.Context(), events.ChannelForJob(jobID))
	defer func() { _ = sub.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := sub.Channel()
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			if _, err := w.Write([]byte("data: " + msg.Payload + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// parseJobID extracts and validates the {id} path value. Writes an error
// response and returns false when the value is not a UUID.
func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid_parameters", "Invalid job ID")
		return uuid.Nil, false
	}
	return jobID, true
}
