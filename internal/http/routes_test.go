package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/briefcast/briefcast-go/internal/domain/model"
	apperrors "github.com/briefcast/briefcast-go/internal/errors"
	"github.com/briefcast/briefcast-go/internal/mocks"
	"github.com/briefcast/briefcast-go/internal/service"
)

func newTestRouter(t *testing.T, repo *mocks.MockJobRepository) http.Handler {
	t.Helper()
	queue := service.MustNewQueueService(service.QueueServiceOptions{
		Repo:         repo,
		DefaultLease: 30 * time.Second,
	})
	return NewRouter(RouterServices{Queue: queue})
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateJob(t *testing.T) {
	validBody := `{
		"url": "https://example.com/article",
		"thread_id": "1724450000.000100",
		"channel_id": "C0123456789",
		"team_id": "team-1",
		"priority": 8
	}`

	t.Run("enqueues and returns job id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, req *model.CreateJobRequest) (*model.Job, error) {
				assert.Equal(t, model.JobTypeLink, req.Type)
				assert.Equal(t, 3, req.Priority) // caller 8 inverted
				return &model.Job{ID: "job-1", Type: model.JobTypeLink}, nil
			})

		rec := doJSON(t, newTestRouter(t, repo), http.MethodPost, "/api/jobs", validBody)
		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp CreateJobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "job-1", resp.JobID)
		assert.Equal(t, "queued", resp.Mode)
	})

	t.Run("rejects invalid payload", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)

		rec := doJSON(t, newTestRouter(t, repo), http.MethodPost, "/api/jobs",
			`{"url": "ftp://example.com/file", "thread_id": "t", "channel_id": "c", "team_id": "x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_payload")
	})

	t.Run("rejects payload with missing fields", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)

		rec := doJSON(t, newTestRouter(t, repo), http.MethodPost, "/api/jobs",
			`{"url": "https://example.com/article", "channel_id": "c", "team_id": "x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_payload")
	})

	t.Run("broker error mentioning required fields is not a client error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			Return(nil, errors.New(`null value in column "payload" violates not-null constraint; a value is required`))

		rec := doJSON(t, newTestRouter(t, repo), http.MethodPost, "/api/jobs", validBody)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "enqueue_failed")
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)

		rec := doJSON(t, newTestRouter(t, repo), http.MethodPost, "/api/jobs", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_json")
	})

	t.Run("surfaces enqueue failure without fallback", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			Return(nil, errors.New("relation jobs does not exist"))

		rec := doJSON(t, newTestRouter(t, repo), http.MethodPost, "/api/jobs", validBody)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "enqueue_failed")
	})
}

func TestGetJob(t *testing.T) {
	t.Run("returns job status", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().
			GetByID(gomock.Any(), "job-1").
			Return(&model.Job{
				ID:         "job-1",
				Type:       model.JobTypeLink,
				Status:     model.JobStatusCompleted,
				RetryCount: 0,
			}, nil)

		rec := doJSON(t, newTestRouter(t, repo), http.MethodGet, "/api/jobs/job-1", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp model.JobStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, model.JobStatusCompleted, resp.Status)
		assert.Equal(t, 1, resp.AttemptsMade)
	})

	t.Run("returns 404 for missing job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().
			GetByID(gomock.Any(), "missing").
			Return(nil, apperrors.NotFound("Job not found"))

		rec := doJSON(t, newTestRouter(t, repo), http.MethodGet, "/api/jobs/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestQueueEndpoints(t *testing.T) {
	t.Run("stats", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().
			Stats(gomock.Any(), model.JobTypeLink).
			Return(&model.JobStats{Waiting: 3, Active: 1, Completed: 10, Failed: 2, Delayed: 1}, nil)

		rec := doJSON(t, newTestRouter(t, repo), http.MethodGet, "/api/queue/stats", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var stats model.JobStats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, 3, stats.Waiting)
		assert.Equal(t, 1, stats.Active)
	})

	t.Run("pause and resume", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := mocks.NewMockJobRepository(ctrl)
		router := newTestRouter(t, repo)

		rec := doJSON(t, router, http.MethodPost, "/api/queue/pause", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"paused":true`)

		rec = doJSON(t, router, http.MethodPost, "/api/queue/resume", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"paused":false`)
	})
}

func TestHealthz(t *testing.T) {
	t.Run("healthy broker", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().Ping(gomock.Any()).Return(nil)

		rec := doJSON(t, newTestRouter(t, repo), http.MethodGet, "/healthz", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var health model.QueueHealth
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.True(t, health.Healthy)
		assert.True(t, health.BrokerConnected)
		assert.False(t, health.Paused)
	})

	t.Run("broker down", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))

		rec := doJSON(t, newTestRouter(t, repo), http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestStaticAudioServing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "brief.mp3"), []byte("ID3audio"), 0o644))

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := service.MustNewQueueService(service.QueueServiceOptions{
		Repo:         mocks.NewMockJobRepository(ctrl),
		DefaultLease: 30 * time.Second,
	})
	router := NewRouter(RouterServices{
		Queue:          queue,
		AudioDir:       dir,
		AudioURLPrefix: "/uploads/audio",
	})

	rec := doJSON(t, router, http.MethodGet, "/uploads/audio/brief.mp3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3audio", rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/uploads/audio/missing.mp3", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
