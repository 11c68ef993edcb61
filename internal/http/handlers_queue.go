package httpx

import (
	"net/http"

	"github.com/briefcast/briefcast-go/internal/service"
)

// QueueHandlers provides HTTP handlers for queue management operations.
type QueueHandlers struct {
	Svc *service.QueueService
}

// Stats returns queue depth counters by state.
func (h *QueueHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "stats_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// Pause stops workers from reserving new jobs. In-flight jobs finish.
func (h *QueueHandlers) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Pause(r.Context()); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "pause_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

// Resume lifts a pause.
func (h *QueueHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Resume(r.Context()); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "resume_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"paused": false})
}
