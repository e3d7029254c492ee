package workers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
	"github.com/bamtlabs/wsiflow/internal/registry"
	"github.com/bamtlabs/wsiflow/internal/services/branches"
	"github.com/bamtlabs/wsiflow/internal/services/jobs"
	"github.com/bamtlabs/wsiflow/internal/services/slides"
	"github.com/bamtlabs/wsiflow/internal/services/users"
	"github.com/bamtlabs/wsiflow/internal/services/workflows"
	"github.com/bamtlabs/wsiflow/internal/store"
)

func TestPoolStartsWorkerPerUser(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.NewRedisStoreFromClient(client)
	logger := arbor.NewLogger()
	jobSvc := jobs.NewService(st, logger)
	workflowSvc := workflows.NewService(st, logger)
	branchSvc := branches.NewService(st, logger)
	slideSvc := slides.NewService(st, t.TempDir(), logger)
	userSvc := users.NewService(st, workflowSvc, branchSvc, slideSvc, logger)

	ctx := context.Background()
	require.NoError(t, userSvc.Register(ctx, "alice"))
	require.NoError(t, userSvc.Register(ctx, "bob"))

	reg := registry.New()
	require.NoError(t, reg.Register("echo", registry.HandlerFunc(
		func(ctx context.Context, jobID string, payload map[string]interface{}, progress registry.ProgressReporter) (map[string]interface{}, error) {
			return map[string]interface{}{}, nil
		})))

	pool := NewPool(st, jobSvc, userSvc, reg, 5*time.Millisecond, logger)
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	// Each user's queue is drained by their own worker
	aliceJob, err := jobSvc.Create(ctx, jobParams("alice"))
	require.NoError(t, err)
	bobJob, err := jobSvc.Create(ctx, jobParams("bob"))
	require.NoError(t, err)
	require.NoError(t, st.RPush(ctx, models.UserQueueKey("alice"), aliceJob))
	require.NoError(t, st.RPush(ctx, models.UserQueueKey("bob"), bobJob))

	require.Eventually(t, func() bool {
		a, err := jobSvc.Get(ctx, aliceJob)
		if err != nil || a == nil {
			return false
		}
		b, err := jobSvc.Get(ctx, bobJob)
		if err != nil || b == nil {
			return false
		}
		return a.Status.IsTerminal() && b.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPoolEnsureIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.NewRedisStoreFromClient(client)
	logger := arbor.NewLogger()
	jobSvc := jobs.NewService(st, logger)
	workflowSvc := workflows.NewService(st, logger)
	branchSvc := branches.NewService(st, logger)
	slideSvc := slides.NewService(st, t.TempDir(), logger)
	userSvc := users.NewService(st, workflowSvc, branchSvc, slideSvc, logger)

	pool := NewPool(st, jobSvc, userSvc, registry.New(), 5*time.Millisecond, logger)
	defer pool.Stop()

	pool.Ensure("alice")
	pool.Ensure("alice")
	pool.Remove("alice")
	pool.Remove("alice")
}

func jobParams(userID string) interfaces.CreateJobParams {
	return interfaces.CreateJobParams{
		UserID:     userID,
		WorkflowID: "wf_1",
		RunID:      "run_1",
		BranchID:   "main",
		TemplateID: "echo",
	}
}
