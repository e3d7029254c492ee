package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
	"github.com/bamtlabs/wsiflow/internal/registry"
	"github.com/bamtlabs/wsiflow/internal/services/jobs"
	"github.com/bamtlabs/wsiflow/internal/store"
)

type workerFixture struct {
	store *store.RedisStore
	jobs  *jobs.Service
	reg   *registry.Registry
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.NewRedisStoreFromClient(client)
	return &workerFixture{
		store: st,
		jobs:  jobs.NewService(st, arbor.NewLogger()),
		reg:   registry.New(),
	}
}

func (f *workerFixture) worker(userID string) *Worker {
	return newWorker(userID, f.store, f.jobs, f.reg, 5*time.Millisecond, arbor.NewLogger())
}

func (f *workerFixture) createJob(t *testing.T, userID, template string, payload map[string]interface{}) string {
	t.Helper()
	jobID, err := f.jobs.Create(context.Background(), interfaces.CreateJobParams{
		UserID:       userID,
		WorkflowID:   "wf_1",
		RunID:        "run_1",
		BranchID:     "main",
		TemplateID:   template,
		InputPayload: payload,
	})
	require.NoError(t, err)
	return jobID
}

// flakyMetadataStore fails a fixed number of HGetAll calls, then delegates
type flakyMetadataStore struct {
	interfaces.StateStore
	mu       sync.Mutex
	failures int
}

func (s *flakyMetadataStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("connection reset")
	}
	return s.StateStore.HGetAll(ctx, key)
}

func TestMetadataFailureRequeuesAtHead(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	first := f.createJob(t, "alice", "echo", nil)
	second := f.createJob(t, "alice", "echo", nil)
	queue := models.UserQueueKey("alice")
	require.NoError(t, f.store.RPush(ctx, queue, second))

	flaky := &flakyMetadataStore{StateStore: f.store, failures: 1}
	w := newWorker("alice", flaky, f.jobs, f.reg, time.Millisecond, arbor.NewLogger())
	w.process(ctx, first)

	// The failed job lands ahead of work admitted after it
	ids, err := f.store.LRange(ctx, queue, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, ids)

	job, err := f.jobs.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
}

func TestProcessSuccess(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.reg.Register("echo", registry.HandlerFunc(
		func(ctx context.Context, jobID string, payload map[string]interface{}, progress registry.ProgressReporter) (map[string]interface{}, error) {
			return map[string]interface{}{"result": "fake job success!"}, nil
		})))

	jobID := f.createJob(t, "alice", "echo", nil)
	f.worker("alice").process(ctx, jobID)

	job, err := f.jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, job.Status)
	assert.Equal(t, map[string]interface{}{"result": "fake job success!"}, job.OutputPayload)
	assert.False(t, job.StartedAt.IsZero())
	assert.False(t, job.FinishedAt.IsZero())

	// Global sets are clean again
	running, err := f.store.SMembers(ctx, models.KeyRunningJobs)
	require.NoError(t, err)
	assert.Empty(t, running)

	active, err := f.store.SMembers(ctx, models.KeyActiveUsers)
	require.NoError(t, err)
	assert.Empty(t, active)

	status, err := f.store.HGet(ctx, models.UserKey("alice"), "status")
	require.NoError(t, err)
	assert.Equal(t, "idle", status)

	// Terminal progress record
	raw, err := f.store.HGet(ctx, models.KeyJobProgress, jobID)
	require.NoError(t, err)
	record, err := models.DecodeProgressRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, record.Status)
	assert.Equal(t, 1.0, record.Percent)
}

func TestProcessUnknownTemplate(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	jobID := f.createJob(t, "alice", "does_not_exist", nil)
	f.worker("alice").process(ctx, jobID)

	job, err := f.jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ProgressMessage, "NotRegistered")
	assert.Contains(t, job.ProgressMessage, "does_not_exist")

	// The error lands in the output payload too
	assert.Contains(t, job.OutputPayload["error"], "does_not_exist")

	// Cleanup still happened
	running, err := f.store.SMembers(ctx, models.KeyRunningJobs)
	require.NoError(t, err)
	assert.Empty(t, running)
}

func TestProcessHandlerError(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.reg.Register("broken", registry.HandlerFunc(
		func(ctx context.Context, jobID string, payload map[string]interface{}, progress registry.ProgressReporter) (map[string]interface{}, error) {
			return nil, errors.New("boom")
		})))

	jobID := f.createJob(t, "alice", "broken", nil)
	f.worker("alice").process(ctx, jobID)

	job, err := f.jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "HandlerError: boom", job.ProgressMessage)
}

func TestProcessHandlerPanicIsContained(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.reg.Register("panics", registry.HandlerFunc(
		func(ctx context.Context, jobID string, payload map[string]interface{}, progress registry.ProgressReporter) (map[string]interface{}, error) {
			panic("unexpected")
		})))

	jobID := f.createJob(t, "alice", "panics", nil)
	f.worker("alice").process(ctx, jobID)

	job, err := f.jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ProgressMessage, "handler panic")
}

func TestUserStaysActiveWithOtherRunningJob(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.reg.Register("echo", registry.HandlerFunc(
		func(ctx context.Context, jobID string, payload map[string]interface{}, progress registry.ProgressReporter) (map[string]interface{}, error) {
			return map[string]interface{}{}, nil
		})))

	// Another job of alice's is still in flight on a second worker
	otherID := f.createJob(t, "alice", "echo", nil)
	require.NoError(t, f.store.SAdd(ctx, models.KeyRunningJobs, otherID))
	require.NoError(t, f.store.SAdd(ctx, models.KeyActiveUsers, "alice"))

	jobID := f.createJob(t, "alice", "echo", nil)
	f.worker("alice").process(ctx, jobID)

	active, err := f.store.SIsMember(ctx, models.KeyActiveUsers, "alice")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestRunDrainsQueueInOrder(t *testing.T) {
	f := newWorkerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var order []string
	require.NoError(t, f.reg.Register("record", registry.HandlerFunc(
		func(ctx context.Context, jobID string, payload map[string]interface{}, progress registry.ProgressReporter) (map[string]interface{}, error) {
			mu.Lock()
			order = append(order, jobID)
			mu.Unlock()
			return map[string]interface{}{}, nil
		})))

	first := f.createJob(t, "alice", "record", nil)
	second := f.createJob(t, "alice", "record", nil)
	require.NoError(t, f.store.RPush(ctx, models.UserQueueKey("alice"), first, second))

	w := f.worker("alice")
	done := make(chan struct{})
	go func() {
		w.run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, []string{first, second}, order)
}

func TestProgressReporterWritesGlobalRecord(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.reg.Register("steps", registry.HandlerFunc(
		func(ctx context.Context, jobID string, payload map[string]interface{}, progress registry.ProgressReporter) (map[string]interface{}, error) {
			if err := progress.Report(ctx, models.ProgressUpdate{Current: 1, Total: 4, Message: "tick"}); err != nil {
				return nil, err
			}
			return map[string]interface{}{}, nil
		})))

	jobID := f.createJob(t, "alice", "steps", nil)
	f.worker("alice").process(ctx, jobID)

	// The terminal record overwrote the mid-run one; the job hash keeps the
	// last handler-reported message
	job, err := f.jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, job.Status)
	assert.Equal(t, "tick", job.ProgressMessage)
}
