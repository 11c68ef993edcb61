package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefcast/briefcast-go/config"
	"github.com/briefcast/briefcast-go/internal/core"
	"github.com/briefcast/briefcast-go/internal/domain/model"
)

// mockReaperRepo is a simple mock implementation for testing.
type mockReaperRepo struct {
	requeueExpiredLeasesCalled int
	requeueExpiredLeasesCount  int64
	requeueExpiredLeasesError  error

	failStalePendingJobsCalled int
	failStalePendingJobsCount  int64
	failStalePendingJobsError  error

	deleteOldJobsCalled   int
	deleteOldJobsCount    int64
	deleteOldJobsError    error
	deleteOldJobsStatuses []model.JobStatus

	cleanTerminalJobsCalled int
	cleanTerminalJobsCounts map[model.JobStatus]int64
	cleanTerminalJobsKeeps  map[model.JobStatus]int
	cleanTerminalJobsError  error
}

func (m *mockReaperRepo) RequeueExpiredLeases(
	ctx context.Context,
	jobType model.JobType,
) (int64, error) {
	m.requeueExpiredLeasesCalled++
	if m.requeueExpiredLeasesError != nil {
		return 0, m.requeueExpiredLeasesError
	}
	return m.requeueExpiredLeasesCount, nil
}

func (m *mockReaperRepo) FailStalePendingJobs(
	ctx context.Context,
	maxAge time.Duration,
	batchSize int,
) (int64, error) {
	m.failStalePendingJobsCalled++
	if m.failStalePendingJobsError != nil {
		return 0, m.failStalePendingJobsError
	}
	// Return count on first call, then 0 to simulate batch exhaustion
	if m.failStalePendingJobsCalled == 1 {
		return m.failStalePendingJobsCount, nil
	}
	return 0, nil
}

func (m *mockReaperRepo) DeleteOldJobs(
	ctx context.Context,
	params core.DeleteOldJobsParams,
) (int64, error) {
	m.deleteOldJobsCalled++
	m.deleteOldJobsStatuses = append(m.deleteOldJobsStatuses, params.Status)
	if m.deleteOldJobsError != nil {
		return 0, m.deleteOldJobsError
	}
	// Return count on odd calls (1st, 3rd, 5th...), then 0 on even calls to simulate batch exhaustion
	// This allows multiple cleanup operations (completed, failed) to each get their batch
	if m.deleteOldJobsCalled%2 == 1 {
		return m.deleteOldJobsCount, nil
	}
	return 0, nil
}

func (m *mockReaperRepo) CleanTerminalJobs(
	ctx context.Context,
	params core.CleanTerminalJobsParams,
) (int64, error) {
	if m.cleanTerminalJobsKeeps == nil {
		m.cleanTerminalJobsKeeps = make(map[model.JobStatus]int)
	}
	m.cleanTerminalJobsCalled++
	m.cleanTerminalJobsKeeps[params.Status] = params.Keep
	if m.cleanTerminalJobsError != nil {
		return 0, m.cleanTerminalJobsError
	}
	return m.cleanTerminalJobsCounts[params.Status], nil
}

var _ core.ReaperRepository = (*mockReaperRepo)(nil)

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:        5 * time.Minute,
		PendingMaxAge:   1 * time.Hour,
		CompletedMaxAge: 1 * time.Hour,
		FailedMaxAge:    72 * time.Hour,
		KeepCompleted:   5,
		KeepFailed:      50,
		BatchSize:       1000,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &mockReaperRepo{},
			Config: testReaperConfig(),
			Logger: slog.Default(),
		})

		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when repo is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{
			Config: testReaperConfig(),
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "ReaperRepository is required")
	})
}

func TestReaperService_runCleanup(t *testing.T) {
	t.Run("runs all cleanup operations successfully", func(t *testing.T) {
		repo := &mockReaperRepo{
			requeueExpiredLeasesCount: 2,
			failStalePendingJobsCount: 5,
			deleteOldJobsCount:        10,
			cleanTerminalJobsCounts: map[model.JobStatus]int64{
				model.JobStatusCompleted: 3,
				model.JobStatusFailed:    1,
			},
		}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(context.Background()))

		assert.Equal(t, 1, repo.requeueExpiredLeasesCalled)
		// Each batched operation is called until it returns 0
		assert.Equal(t, 2, repo.failStalePendingJobsCalled)
		// DeleteOldJobs is called twice per status (completed, failed): 2 * 2 = 4
		assert.Equal(t, 4, repo.deleteOldJobsCalled)
		// Retention runs once per terminal status
		assert.Equal(t, 2, repo.cleanTerminalJobsCalled)
		assert.Equal(t, 5, repo.cleanTerminalJobsKeeps[model.JobStatusCompleted])
		assert.Equal(t, 50, repo.cleanTerminalJobsKeeps[model.JobStatusFailed])
	})

	t.Run("continues on partial errors", func(t *testing.T) {
		repo := &mockReaperRepo{
			failStalePendingJobsError: errors.New("fail error"),
			deleteOldJobsCount:        10,
			cleanTerminalJobsCounts:   map[model.JobStatus]int64{},
		}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})
		require.NoError(t, err)

		// Should return error but still call all cleanup methods
		require.Error(t, svc.runCleanup(context.Background()))

		assert.Equal(t, 1, repo.requeueExpiredLeasesCalled)
		// FailStalePendingJobs called once (returns error immediately)
		assert.Equal(t, 1, repo.failStalePendingJobsCalled)
		assert.Equal(t, 4, repo.deleteOldJobsCalled)
		assert.Equal(t, 2, repo.cleanTerminalJobsCalled)
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops on context cancellation", func(t *testing.T) {
		repo := &mockReaperRepo{}
		cfg := testReaperConfig()
		cfg.Interval = 100 * time.Millisecond

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- svc.Run(ctx)
		}()

		// Wait a bit to ensure at least one cleanup runs
		time.Sleep(150 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			// Should return nil on graceful shutdown
			require.NoError(t, err)
		case <-time.After(1 * time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}

		assert.GreaterOrEqual(t, repo.requeueExpiredLeasesCalled, 1)
	})

	t.Run("continues running despite cleanup errors", func(t *testing.T) {
		repo := &mockReaperRepo{
			failStalePendingJobsError: errors.New("test error"),
		}
		cfg := testReaperConfig()
		cfg.Interval = 50 * time.Millisecond

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		err = svc.Run(ctx)

		// Should return context deadline exceeded, not the cleanup error
		require.Error(t, err)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		// Verify cleanup was called multiple times despite errors
		assert.GreaterOrEqual(t, repo.failStalePendingJobsCalled, 2)
	})
}

func TestReaperService_requeueStalledJobs(t *testing.T) {
	t.Run("returns stalled jobs to the queue", func(t *testing.T) {
		repo := &mockReaperRepo{requeueExpiredLeasesCount: 4}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})
		require.NoError(t, err)

		count, err := svc.requeueStalledJobs(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
		assert.Equal(t, 1, repo.requeueExpiredLeasesCalled)
	})

	t.Run("propagates repository errors", func(t *testing.T) {
		repo := &mockReaperRepo{requeueExpiredLeasesError: errors.New("lease scan failed")}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})
		require.NoError(t, err)

		count, err := svc.requeueStalledJobs(context.Background())
		require.Error(t, err)
		assert.Equal(t, int64(0), count)
	})
}

func TestReaperService_failStalePendingJobs(t *testing.T) {
	t.Run("loops batches until exhausted", func(t *testing.T) {
		repo := &mockReaperRepo{failStalePendingJobsCount: 3}
		cfg := testReaperConfig()
		cfg.PendingMaxAge = 2 * time.Hour

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: cfg,
		})
		require.NoError(t, err)

		count, err := svc.failStalePendingJobs(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
		// Called twice: once returning count, once returning 0
		assert.Equal(t, 2, repo.failStalePendingJobsCalled)
	})
}

func TestReaperService_deleteOldJobs(t *testing.T) {
	t.Run("deletes old completed jobs", func(t *testing.T) {
		repo := &mockReaperRepo{deleteOldJobsCount: 5}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})
		require.NoError(t, err)

		count, err := svc.deleteOldCompletedJobs(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(5), count)
		assert.Equal(t, 2, repo.deleteOldJobsCalled)
		assert.Equal(t, model.JobStatusCompleted, repo.deleteOldJobsStatuses[0])
	})

	t.Run("deletes old failed jobs", func(t *testing.T) {
		repo := &mockReaperRepo{deleteOldJobsCount: 7}

		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   repo,
			Config: testReaperConfig(),
		})
		require.NoError(t, err)

		count, err := svc.deleteOldFailedJobs(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(7), count)
		assert.Equal(t, model.JobStatusFailed, repo.deleteOldJobsStatuses[0])
	})
}

func TestReaperService_cleanTerminalJobs(t *testing.T) {
	repo := &mockReaperRepo{
		cleanTerminalJobsCounts: map[model.JobStatus]int64{
			model.JobStatusCompleted: 6,
			model.JobStatusFailed:    2,
		},
	}

	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:   repo,
		Config: testReaperConfig(),
	})
	require.NoError(t, err)

	count, err := svc.cleanTerminalJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), count)
	assert.Equal(t, 2, repo.cleanTerminalJobsCalled)
	assert.Equal(t, 5, repo.cleanTerminalJobsKeeps[model.JobStatusCompleted])
	assert.Equal(t, 50, repo.cleanTerminalJobsKeeps[model.JobStatusFailed])
}
