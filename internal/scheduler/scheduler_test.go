package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/common"
	"github.com/bamtlabs/wsiflow/internal/models"
	"github.com/bamtlabs/wsiflow/internal/store"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.NewRedisStoreFromClient(client)
	cfg := common.SchedulerConfig{
		MaxActiveUsers:    3,
		PendingPopTimeout: "50ms",
		DeferSleep:        "5ms",
		PausedSleep:       "10ms",
	}
	return New(st, cfg, arbor.NewLogger()), st
}

func seedJob(t *testing.T, st *store.RedisStore, jobID, userID string) {
	t.Helper()
	require.NoError(t, st.HSet(context.Background(), models.JobKey(jobID), map[string]interface{}{
		"job_id":  jobID,
		"user_id": userID,
		"status":  string(models.JobStatusPending),
	}))
}

func TestDispatchAdmitsUnderCap(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	seedJob(t, st, "job_1", "alice")
	s.dispatch("job_1")

	queued, err := st.LRange(ctx, models.UserQueueKey("alice"), 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"job_1"}, queued)

	pending, err := st.LLen(ctx, models.KeyPendingJobs)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestDispatchDefersAtCap(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, st.SAdd(ctx, models.KeyActiveUsers, "u1", "u2", "u3"))
	seedJob(t, st, "job_1", "dave")

	s.dispatch("job_1")

	// Deferred to the pending tail, not admitted
	pending, err := st.LRange(ctx, models.KeyPendingJobs, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"job_1"}, pending)

	length, err := st.LLen(ctx, models.UserQueueKey("dave"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestDispatchAdmitsActiveUserAtCap(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	// u1 is one of the three active users; their next job passes the cap
	require.NoError(t, st.SAdd(ctx, models.KeyActiveUsers, "u1", "u2", "u3"))
	seedJob(t, st, "job_1", "u1")

	s.dispatch("job_1")

	queued, err := st.LRange(ctx, models.UserQueueKey("u1"), 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"job_1"}, queued)
}

func TestDispatchDropsJobWithoutMetadata(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	s.dispatch("job_ghost")

	pending, err := st.LLen(ctx, models.KeyPendingJobs)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestDispatchDropsJobWithoutUser(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, st.HSet(ctx, models.JobKey("job_1"), map[string]interface{}{
		"job_id": "job_1",
		"status": string(models.JobStatusPending),
	}))

	s.dispatch("job_1")

	pending, err := st.LLen(ctx, models.KeyPendingJobs)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestLoopRespectsPause(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	seedJob(t, st, "job_1", "alice")
	require.NoError(t, st.RPush(ctx, models.KeyPendingJobs, "job_1"))

	s.Run()
	defer s.Stop()

	// Boot default is paused: nothing may be admitted
	time.Sleep(100 * time.Millisecond)
	pending, err := st.LLen(ctx, models.KeyPendingJobs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	// Unpause and the job flows to the user queue
	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool {
		queued, err := st.LRange(ctx, models.UserQueueKey("alice"), 0, -1)
		return err == nil && len(queued) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStateDefaultsToPaused(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	state, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SchedulerPaused, state)

	require.NoError(t, s.Start(ctx))
	state, err = s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SchedulerRunning, state)

	require.NoError(t, s.Pause(ctx))
	state, err = s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SchedulerPaused, state)
}

func TestGlobalStatus(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, st.SAdd(ctx, models.KeyRunningJobs, "job_1"))
	require.NoError(t, st.SAdd(ctx, models.KeyActiveUsers, "alice"))
	require.NoError(t, st.RPush(ctx, models.KeyPendingJobs, "job_2"))

	record := &models.ProgressRecord{
		JobID:   "job_1",
		UserID:  "alice",
		Status:  models.JobStatusRunning,
		Percent: 0.5,
	}
	require.NoError(t, st.HSetField(ctx, models.KeyJobProgress, "job_1", record.Encode()))
	require.NoError(t, st.HSetField(ctx, models.KeyJobProgress, "job_bad", "not json"))

	status, err := s.GlobalStatus(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"job_1"}, status.RunningJobs)
	assert.Equal(t, []string{"alice"}, status.ActiveUsers)
	assert.Equal(t, []string{"job_2"}, status.PendingJobs)

	require.Contains(t, status.Progress, "job_1")
	assert.Equal(t, models.JobStatusRunning, status.Progress["job_1"].Status)
	assert.Equal(t, 0.5, status.Progress["job_1"].Percent)

	// Corrupt records surface as placeholders instead of vanishing
	require.Contains(t, status.Progress, "job_bad")
	assert.Equal(t, models.JobStatus("UNKNOWN"), status.Progress["job_bad"].Status)
}
