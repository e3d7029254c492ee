package branches

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/models"
	"github.com/bamtlabs/wsiflow/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	st := store.NewRedisStoreFromClient(client)
	return NewService(st, arbor.NewLogger()), st
}

func TestCreateBranch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "wf_1", "main")
	require.NoError(t, err)
	assert.True(t, created)

	// Second create is a no-op
	created, err = svc.Create(ctx, "wf_1", "main")
	require.NoError(t, err)
	assert.False(t, created)

	branchIDs, err := svc.List(ctx, "wf_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, branchIDs)
}

func TestAddJobSpecPreservesOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "wf_1", "main")
	require.NoError(t, err)

	added, err := svc.AddJobSpec(ctx, "wf_1", "main", models.JobSpec{TemplateID: "init_wsi"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = svc.AddJobSpec(ctx, "wf_1", "main", models.JobSpec{
		TemplateID:   "tile_segmentation",
		InputPayload: map[string]interface{}{"batch_size": float64(4)},
	})
	require.NoError(t, err)
	assert.True(t, added)

	specs, err := svc.JobSpecs(ctx, "wf_1", "main")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "init_wsi", specs[0].TemplateID)
	assert.Equal(t, "tile_segmentation", specs[1].TemplateID)
	assert.Equal(t, map[string]interface{}{"batch_size": float64(4)}, specs[1].InputPayload)
}

func TestAddJobSpecUnknownBranch(t *testing.T) {
	svc, _ := newTestService(t)

	added, err := svc.AddJobSpec(context.Background(), "wf_1", "missing", models.JobSpec{TemplateID: "fake_sleep"})
	require.NoError(t, err)
	assert.False(t, added)
}

func TestJobSpecsDecodesLegacyEntries(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "wf_1", "main")
	require.NoError(t, err)

	// Entry written by the legacy deployment: bare template name
	require.NoError(t, st.RPush(ctx, models.WorkflowBranchKey("wf_1", "main"), "fake_sleep"))

	specs, err := svc.JobSpecs(ctx, "wf_1", "main")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "fake_sleep", specs[0].TemplateID)
	assert.Equal(t, map[string]interface{}{}, specs[0].InputPayload)
}

func TestRemoveJobSpecAt(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "wf_1", "main")
	require.NoError(t, err)
	for _, template := range []string{"a", "b", "c"} {
		_, err := svc.AddJobSpec(ctx, "wf_1", "main", models.JobSpec{TemplateID: template})
		require.NoError(t, err)
	}

	removed, err := svc.RemoveJobSpecAt(ctx, "wf_1", "main", 1)
	require.NoError(t, err)
	assert.True(t, removed)

	specs, err := svc.JobSpecs(ctx, "wf_1", "main")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "a", specs[0].TemplateID)
	assert.Equal(t, "c", specs[1].TemplateID)

	// Out of range
	removed, err = svc.RemoveJobSpecAt(ctx, "wf_1", "main", 5)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDeleteBranch(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "wf_1", "main")
	require.NoError(t, err)
	_, err = svc.AddJobSpec(ctx, "wf_1", "main", models.JobSpec{TemplateID: "fake_sleep"})
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, "wf_1", "main")
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, err := st.Exists(ctx, models.WorkflowBranchKey("wf_1", "main"))
	require.NoError(t, err)
	assert.False(t, exists)

	deleted, err = svc.Delete(ctx, "wf_1", "main")
	require.NoError(t, err)
	assert.False(t, deleted)
}
