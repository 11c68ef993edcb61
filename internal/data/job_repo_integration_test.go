package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefcast/briefcast-go/internal/domain/model"
	"github.com/briefcast/briefcast-go/internal/testutil"
)

const testLeaseSeconds = 30

func TestJobRepo_ReserveNext_PriorityOrder(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewJobRepo(db, RepoConfig{})

		// Insert the low-priority job first so creation order cannot mask
		// priority ordering.
		low, err := repo.Create(ctx, testutil.LowPriorityJobRequest())
		require.NoError(t, err)
		high, err := repo.Create(ctx, testutil.HighPriorityJobRequest())
		require.NoError(t, err)

		first, err := repo.ReserveNext(ctx, model.JobTypeLink, testLeaseSeconds)
		require.NoError(t, err)
		assert.Equal(t, high.ID, first.ID)
		assert.Equal(t, model.JobStatusRunning, first.Status)
		assert.NotNil(t, first.LeaseExpiresAt)

		second, err := repo.ReserveNext(ctx, model.JobTypeLink, testLeaseSeconds)
		require.NoError(t, err)
		assert.Equal(t, low.ID, second.ID)

		_, err = repo.ReserveNext(ctx, model.JobTypeLink, testLeaseSeconds)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})
}

func TestJobRepo_ScheduledJobsCountAsDelayed(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewJobRepo(db, RepoConfig{})

		future := time.Now().Add(time.Hour)
		_, err := repo.Create(ctx, testutil.NewJobRequest().WithScheduledAt(future).Build())
		require.NoError(t, err)

		_, err = repo.ReserveNext(ctx, model.JobTypeLink, testLeaseSeconds)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)

		stats, err := repo.Stats(ctx, model.JobTypeLink)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Delayed)
		assert.Equal(t, 0, stats.Waiting)
	})
}

func TestJobRepo_FailSchedulesRetryThenTerminal(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewJobRepo(db, RepoConfig{RetryBackoffBaseSeconds: 4})

		created, err := repo.Create(ctx, testutil.NewJobRequest().WithMaxRetries(2).Build())
		require.NoError(t, err)

		reserved, err := repo.ReserveNext(ctx, model.JobTypeLink, testLeaseSeconds)
		require.NoError(t, err)
		require.Equal(t, created.ID, reserved.ID)

		before := time.Now()
		ok, err := repo.Fail(ctx, created.ID, "extraction failed")
		require.NoError(t, err)
		require.True(t, ok)

		// First failure goes back to pending, delayed by base * 2^0.
		job, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, job.Status)
		assert.Equal(t, 1, job.RetryCount)
		assert.True(t, job.ScheduledAt.After(time.Now()), "retry should be delayed")
		delay := job.ScheduledAt.Sub(before)
		assert.InDelta(t, (4 * time.Second).Seconds(), delay.Seconds(), 2)

		// Make the retry due immediately instead of waiting out the backoff.
		_, err = db.ExecContext(ctx, "UPDATE jobs SET scheduled_at = now() WHERE id = $1", created.ID)
		require.NoError(t, err)

		_, err = repo.ReserveNext(ctx, model.JobTypeLink, testLeaseSeconds)
		require.NoError(t, err)
		ok, err = repo.Fail(ctx, created.ID, "extraction failed again")
		require.NoError(t, err)
		require.True(t, ok)

		job, err = repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, job.Status)
		assert.Equal(t, 2, job.RetryCount)
		assert.NotNil(t, job.CompletedAt)
		require.NotNil(t, job.LastError)
		assert.Equal(t, "extraction failed again", *job.LastError)
	})
}

func TestJobRepo_RequeueExpiredLeases(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewJobRepo(db, RepoConfig{})

		created, err := repo.Create(ctx, testutil.LinkJobRequest())
		require.NoError(t, err)

		_, err = repo.ReserveNext(ctx, model.JobTypeLink, testLeaseSeconds)
		require.NoError(t, err)

		// Simulate a crashed worker by expiring the lease.
		_, err = db.ExecContext(ctx,
			"UPDATE jobs SET lease_expires_at = now() - interval '1 minute' WHERE id = $1", created.ID)
		require.NoError(t, err)

		requeued, err := repo.RequeueExpiredLeases(ctx, model.JobTypeLink)
		require.NoError(t, err)
		assert.Equal(t, int64(1), requeued)

		job, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, job.Status)
		assert.Nil(t, job.LeaseExpiresAt)
	})
}

func TestJobRepo_CompleteAndHeartbeat(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewJobRepo(db, RepoConfig{})

		created, err := repo.Create(ctx, testutil.LinkJobRequest())
		require.NoError(t, err)

		reserved, err := repo.ReserveNext(ctx, model.JobTypeLink, testLeaseSeconds)
		require.NoError(t, err)
		require.NotNil(t, reserved.LeaseExpiresAt)

		ok, err := repo.Heartbeat(ctx, created.ID, 300)
		require.NoError(t, err)
		assert.True(t, ok)

		extended, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, extended.LeaseExpiresAt)
		assert.True(t, extended.LeaseExpiresAt.After(*reserved.LeaseExpiresAt))

		ok, err = repo.Complete(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		done, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, done.Status)
		assert.NotNil(t, done.CompletedAt)

		// Completing a job that is no longer running is a no-op.
		ok, err = repo.Complete(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestJobRepo_GetByID_NotFound(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		_, err := repo.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}
