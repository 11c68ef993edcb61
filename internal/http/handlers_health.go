package httpx

import (
	"net/http"

	"github.com/briefcast/briefcast-go/internal/service"
)

// HealthHandlers reports process and queue health.
type HealthHandlers struct {
	Queue *service.QueueService
}

// Healthz returns the queue manager's operational state. The process is
// considered live even when the broker is down; orchestration watches the
// broker_connected flag.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Queue == nil {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	health := h.Queue.Health(r.Context())
	code := http.StatusOK
	if !health.Healthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, health)
}
