package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefcast/briefcast-go/internal/domain/model"
	apperrors "github.com/briefcast/briefcast-go/internal/errors"
	"github.com/briefcast/briefcast-go/internal/service"
)

type failCall struct {
	jobID   string
	errMsg  string
	details service.JobFailureDetails
}

// fakeQueue scripts ReserveNext and records lifecycle calls.
type fakeQueue struct {
	mu         sync.Mutex
	reserveFn  func(call int) (*model.Job, error)
	calls      int
	heartbeats int
	completed  []string
	failures   []failCall
	notify     chan struct{}
}

func newFakeQueue(reserveFn func(call int) (*model.Job, error)) *fakeQueue {
	return &fakeQueue{reserveFn: reserveFn, notify: make(chan struct{}, 1)}
}

func (q *fakeQueue) ReserveNext(ctx context.Context, lease time.Duration) (*model.Job, error) {
	q.mu.Lock()
	call := q.calls
	q.calls++
	q.mu.Unlock()
	return q.reserveFn(call)
}

func (q *fakeQueue) Subscribe() (func(), <-chan struct{}) {
	return func() {}, q.notify
}

func (q *fakeQueue) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heartbeats++
	return true, nil
}

func (q *fakeQueue) Complete(ctx context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, id)
	return true, nil
}

func (q *fakeQueue) FailWithDetails(
	ctx context.Context,
	id, errMsg string,
	details service.JobFailureDetails,
) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failures = append(q.failures, failCall{jobID: id, errMsg: errMsg, details: details})
	return true, nil
}

func (q *fakeQueue) snapshot() (completed []string, failures []failCall, heartbeats int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.completed...), append([]failCall(nil), q.failures...), q.heartbeats
}

// fakePipeline records payloads and returns a scripted error.
type fakePipeline struct {
	mu       sync.Mutex
	payloads []*model.LinkJobPayload
	runErr   error
	block    time.Duration
	done     chan struct{} // closed after the first run
	once     sync.Once
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{done: make(chan struct{})}
}

func (p *fakePipeline) Run(ctx context.Context, payload *model.LinkJobPayload, onProgress func(int)) error {
	p.mu.Lock()
	p.payloads = append(p.payloads, payload)
	p.mu.Unlock()
	if onProgress != nil {
		onProgress(20)
	}
	if p.block > 0 {
		select {
		case <-time.After(p.block):
		case <-ctx.Done():
		}
	}
	p.once.Do(func() { close(p.done) })
	return p.runErr
}

func linkJob(id string) *model.Job {
	payload, _ := json.Marshal(model.LinkJobPayload{
		URL:       "https://example.com/article",
		ThreadID:  "1724450000.000100",
		ChannelID: "C0123456789",
		TeamID:    "team-1",
	})
	return &model.Job{ID: id, Type: model.JobTypeLink, Status: model.JobStatusRunning, Payload: payload}
}

// oneJobThenEmpty serves the job on the first reserve and reports an empty
// queue afterwards.
func oneJobThenEmpty(job *model.Job) func(int) (*model.Job, error) {
	return func(call int) (*model.Job, error) {
		if call == 0 {
			return job, nil
		}
		return nil, model.ErrNoJobsAvailable
	}
}

func newTestRunner(t *testing.T, q *fakeQueue, p *fakePipeline) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerOptions{
		Queue:        q,
		Pipeline:     p,
		Concurrency:  1,
		Lease:        90 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return r
}

// runUntil runs the runner in the background and cancels it once trigger
// fires.
func runUntil(t *testing.T, r *Runner, trigger <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- r.Run(ctx) }()

	select {
	case <-trigger:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for runner activity")
	}
	cancel()

	select {
	case err := <-finished:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestNewRunner(t *testing.T) {
	t.Run("requires queue", func(t *testing.T) {
		_, err := NewRunner(RunnerOptions{Pipeline: newFakePipeline()})
		assert.ErrorContains(t, err, "queue is required")
	})

	t.Run("requires pipeline", func(t *testing.T) {
		_, err := NewRunner(RunnerOptions{Queue: newFakeQueue(nil)})
		assert.ErrorContains(t, err, "pipeline is required")
	})

	t.Run("applies defaults", func(t *testing.T) {
		r, err := NewRunner(RunnerOptions{Queue: newFakeQueue(nil), Pipeline: newFakePipeline()})
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, r.lease)
		assert.Equal(t, 2, r.workers)
		assert.Equal(t, 4*time.Minute, r.jobTimeout)
		assert.Equal(t, 5*time.Second, r.pollInterval)
	})
}

func TestRunner_ProcessesJob(t *testing.T) {
	queue := newFakeQueue(oneJobThenEmpty(linkJob("job-1")))
	pipeline := newFakePipeline()
	r := newTestRunner(t, queue, pipeline)

	runUntil(t, r, pipeline.done)

	completed, failures, _ := queue.snapshot()
	assert.Equal(t, []string{"job-1"}, completed)
	assert.Empty(t, failures)

	require.Len(t, pipeline.payloads, 1)
	assert.Equal(t, "https://example.com/article", pipeline.payloads[0].URL)
}

func TestRunner_PipelineErrorFailsJob(t *testing.T) {
	queue := newFakeQueue(oneJobThenEmpty(linkJob("job-1")))
	pipeline := newFakePipeline()
	pipeline.runErr = apperrors.RateLimited("Rate limit exceeded while fetching")
	r := newTestRunner(t, queue, pipeline)

	runUntil(t, r, pipeline.done)

	completed, failures, _ := queue.snapshot()
	assert.Empty(t, completed)
	require.Len(t, failures, 1)
	assert.Equal(t, "job-1", failures[0].jobID)
	assert.Contains(t, failures[0].errMsg, "Rate limit")
	assert.NotEmpty(t, failures[0].details.ErrorClass)
	assert.Equal(t, "link_runner", failures[0].details.Metadata["component"])
}

func TestRunner_UndecodablePayloadFailsWithoutPipeline(t *testing.T) {
	job := &model.Job{ID: "job-1", Type: model.JobTypeLink, Payload: []byte("{not json")}
	failed := make(chan struct{})

	queue := newFakeQueue(nil)
	queue.reserveFn = func(call int) (*model.Job, error) {
		if call == 0 {
			return job, nil
		}
		return nil, model.ErrNoJobsAvailable
	}

	pipeline := newFakePipeline()
	r := newTestRunner(t, queue, pipeline)

	// Watch for the failure instead of pipeline completion.
	go func() {
		for {
			_, failures, _ := queue.snapshot()
			if len(failures) > 0 {
				close(failed)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	runUntil(t, r, failed)

	_, failures, _ := queue.snapshot()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].errMsg, "decode link payload")
	assert.Empty(t, pipeline.payloads)
}

func TestRunner_PausedQueueKeepsPolling(t *testing.T) {
	enoughPolls := make(chan struct{})
	var once sync.Once

	queue := newFakeQueue(nil)
	queue.reserveFn = func(call int) (*model.Job, error) {
		if call >= 3 {
			once.Do(func() { close(enoughPolls) })
		}
		// Paused queue reserves as nil, nil.
		return nil, nil
	}

	r := newTestRunner(t, queue, newFakePipeline())
	runUntil(t, r, enoughPolls)
}

func TestRunner_NotificationWakesWorker(t *testing.T) {
	job := linkJob("job-1")
	pipeline := newFakePipeline()

	queue := newFakeQueue(nil)
	queue.reserveFn = func(call int) (*model.Job, error) {
		if call == 1 {
			return job, nil
		}
		return nil, model.ErrNoJobsAvailable
	}

	r, err := NewRunner(RunnerOptions{
		Queue:        queue,
		Pipeline:     pipeline,
		Concurrency:  1,
		PollInterval: time.Hour, // only a notification can wake the worker
	})
	require.NoError(t, err)

	queue.notify <- struct{}{}
	runUntil(t, r, pipeline.done)

	completed, _, _ := queue.snapshot()
	assert.Equal(t, []string{"job-1"}, completed)
}

func TestRunner_ReserveErrorStopsRunner(t *testing.T) {
	boom := errors.New("connection refused")
	queue := newFakeQueue(func(call int) (*model.Job, error) { return nil, boom })
	r := newTestRunner(t, queue, newFakePipeline())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := r.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestRunner_HeartbeatsDuringLongRun(t *testing.T) {
	job := linkJob("job-1")
	pipeline := newFakePipeline()
	pipeline.block = 1300 * time.Millisecond

	queue := newFakeQueue(oneJobThenEmpty(job))

	// A short lease floors the heartbeat interval at one second.
	r, err := NewRunner(RunnerOptions{
		Queue:        queue,
		Pipeline:     pipeline,
		Concurrency:  1,
		Lease:        2 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- r.Run(ctx) }()

	select {
	case <-pipeline.done:
	case <-time.After(3 * time.Second):
		t.Fatal("pipeline did not finish")
	}
	cancel()
	<-finished

	_, _, heartbeats := queue.snapshot()
	assert.GreaterOrEqual(t, heartbeats, 1)

	completed, _, _ := queue.snapshot()
	assert.Equal(t, []string{"job-1"}, completed)
}
