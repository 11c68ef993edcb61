// Package httpx provides the operational HTTP surface for the link
// processing system.
package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/briefcast/briefcast-go/internal/domain/model"
	apperrors "github.com/briefcast/briefcast-go/internal/errors"
	"github.com/briefcast/briefcast-go/internal/service"
)

// JobHandlers provides HTTP handlers for link job operations.
type JobHandlers struct {
	Queue    *service.QueueService
	Fallback *service.FallbackService
}

// CreateJobRequest is the submission payload for a shared link.
type CreateJobRequest struct {
	URL            string `json:"url"`
	ThreadID       string `json:"thread_id"`
	ChannelID      string `json:"channel_id"`
	TeamID         string `json:"team_id"`
	ExternalTeamID string `json:"external_team_id,omitempty"`
	Priority       int    `json:"priority,omitempty"`
	DelaySeconds   int    `json:"delay_seconds,omitempty"`
}

// CreateJobResponse reports how a submission was dispatched. JobID is empty
// when the queue was unavailable and the job ran on the direct path instead.
type CreateJobResponse struct {
	JobID string `json:"job_id,omitempty"`
	Mode  string `json:"mode"`
}

// CreateJob enqueues a link job, degrading to direct in-process execution
// when the queue is unavailable.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	payload := &model.LinkJobPayload{
		URL:            req.URL,
		ThreadID:       req.ThreadID,
		ChannelID:      req.ChannelID,
		TeamID:         req.TeamID,
		ExternalTeamID: req.ExternalTeamID,
	}
	opts := model.EnqueueOptions{
		Priority: req.Priority,
		Delay:    time.Duration(req.DelaySeconds) * time.Second,
	}

	jobID, err := service.EnqueueOrRun(r.Context(), h.Queue, h.Fallback, payload, opts)
	if err != nil {
		code := http.StatusInternalServerError
		errCode := "enqueue_failed"
		if isValidationError(err) {
			code = http.StatusBadRequest
			errCode = "invalid_payload"
		}
		WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: err})
		return
	}

	resp := CreateJobResponse{JobID: jobID, Mode: "queued"}
	if jobID == "" {
		resp.Mode = "direct"
	}
	WriteJSON(w, http.StatusAccepted, resp)
}

// GetJob returns the status of a single job.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("job id is required"),
		})
		return
	}

	status, err := h.Queue.GetStatus(r.Context(), id)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "status_failed", Err: err})
		return
	}
	if status == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "not_found",
			Err:     errors.New("job not found"),
		})
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// isValidationError checks for payload validation failures to decide 400 vs 5xx.
func isValidationError(err error) bool {
	return apperrors.IsValidation(err)
}
