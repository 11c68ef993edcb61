package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/briefcast/briefcast-go/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Queue    *service.QueueService
	Fallback *service.FallbackService
	Logger   *slog.Logger

	// AudioDir and AudioURLPrefix enable static serving of locally stored
	// audio files. Both must be set; when the S3 store is active they are
	// left empty and audio URLs point at object storage.
	AudioDir       string
	AudioURLPrefix string
}

// NewRouter creates and configures the operational HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	jobHandlers := &JobHandlers{Queue: services.Queue, Fallback: services.Fallback}
	queueHandlers := &QueueHandlers{Svc: services.Queue}
	healthHandlers := &HealthHandlers{Queue: services.Queue}

	mux.HandleFunc("GET /healthz", healthHandlers.Healthz)
	mux.HandleFunc("HEAD /healthz", healthHandlers.Healthz)

	mux.HandleFunc("POST /api/jobs", jobHandlers.CreateJob)
	mux.HandleFunc("GET /api/jobs/{id}", jobHandlers.GetJob)

	mux.HandleFunc("GET /api/queue/stats", queueHandlers.Stats)
	mux.HandleFunc("POST /api/queue/pause", queueHandlers.Pause)
	mux.HandleFunc("POST /api/queue/resume", queueHandlers.Resume)

	if services.AudioDir != "" && services.AudioURLPrefix != "" {
		prefix := "/" + strings.Trim(services.AudioURLPrefix, "/") + "/"
		fileServer := http.StripPrefix(prefix, http.FileServer(http.Dir(services.AudioDir)))
		mux.Handle("GET "+prefix, fileServer)
	}

	return Logging(logger)(Recover(logger)(mux))
}
