package workflows

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/services/branches"
	"github.com/bamtlabs/wsiflow/internal/services/slides"
	"github.com/bamtlabs/wsiflow/internal/services/users"
	"github.com/bamtlabs/wsiflow/internal/store"
)

type loaderFixture struct {
	workflows *Service
	branches  *branches.Service
	users     *users.Service
	dir       string
}

func newLoaderFixture(t *testing.T) *loaderFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := store.NewRedisStoreFromClient(client)
	logger := arbor.NewLogger()
	workflowSvc := NewService(st, logger)
	branchSvc := branches.NewService(st, logger)
	slideSvc := slides.NewService(st, t.TempDir(), logger)
	userSvc := users.NewService(st, workflowSvc, branchSvc, slideSvc, logger)

	return &loaderFixture{
		workflows: workflowSvc,
		branches:  branchSvc,
		users:     userSvc,
		dir:       t.TempDir(),
	}
}

func (f *loaderFixture) writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0644))
}

func (f *loaderFixture) load(t *testing.T) {
	t.Helper()
	err := LoadDefinitionsFromFiles(context.Background(), f.workflows, f.branches, f.users, f.dir, arbor.NewLogger())
	require.NoError(t, err)
}

func TestLoadTOMLDefinition(t *testing.T) {
	f := newLoaderFixture(t)
	ctx := context.Background()

	f.writeFile(t, "pipeline.toml", `
workflow_id = "wf_demo"
name = "Demo"
owner_user_id = "alice"
entry_branch = "main"

[[branches]]
branch_id = "main"

[[branches.jobs]]
template_id = "fake_sleep"

[[branches.jobs]]
template_id = "fake_sleep"
input_payload = { steps = 2 }
`)

	f.load(t)

	registered, err := f.users.IsRegistered(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, registered)

	wf, err := f.workflows.Get(ctx, "wf_demo")
	require.NoError(t, err)
	require.NotNil(t, wf)
	assert.Equal(t, "Demo", wf.Name)
	assert.Equal(t, "alice", wf.OwnerUserID)
	assert.Equal(t, "main", wf.EntryBranch)

	specs, err := f.branches.JobSpecs(ctx, "wf_demo", "main")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "fake_sleep", specs[0].TemplateID)
	assert.Equal(t, map[string]interface{}{"steps": float64(2)}, specs[1].InputPayload)
}

func TestLoadYAMLDefinition(t *testing.T) {
	f := newLoaderFixture(t)
	ctx := context.Background()

	f.writeFile(t, "pipeline.yaml", `
workflow_id: wf_yaml
name: YAML pipeline
owner_user_id: bob
branches:
  - branch_id: main
    jobs:
      - template_id: wsi_initialize
        input_payload:
          slide_id: slide_1
`)

	f.load(t)

	wf, err := f.workflows.Get(ctx, "wf_yaml")
	require.NoError(t, err)
	require.NotNil(t, wf)

	specs, err := f.branches.JobSpecs(ctx, "wf_yaml", "main")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "wsi_initialize", specs[0].TemplateID)
	assert.Equal(t, "slide_1", specs[0].InputPayload["slide_id"])
}

func TestReloadDoesNotDuplicateSpecs(t *testing.T) {
	f := newLoaderFixture(t)
	ctx := context.Background()

	f.writeFile(t, "pipeline.toml", `
workflow_id = "wf_demo"
name = "Demo"
owner_user_id = "alice"

[[branches]]
branch_id = "main"

[[branches.jobs]]
template_id = "fake_sleep"
`)

	f.load(t)
	f.load(t)

	specs, err := f.branches.JobSpecs(ctx, "wf_demo", "main")
	require.NoError(t, err)
	assert.Len(t, specs, 1)
}

func TestLoadSkipsBrokenFiles(t *testing.T) {
	f := newLoaderFixture(t)
	ctx := context.Background()

	f.writeFile(t, "broken.toml", "not [valid toml")
	f.writeFile(t, "missing_owner.toml", `
workflow_id = "wf_no_owner"
name = "Orphan"
`)
	f.writeFile(t, "good.toml", `
workflow_id = "wf_ok"
name = "OK"
owner_user_id = "alice"

[[branches]]
branch_id = "main"
`)

	f.load(t)

	wf, err := f.workflows.Get(ctx, "wf_ok")
	require.NoError(t, err)
	assert.NotNil(t, wf)

	wf, err = f.workflows.Get(ctx, "wf_no_owner")
	require.NoError(t, err)
	assert.Nil(t, wf)
}

func TestLoadMissingDirIsNotAnError(t *testing.T) {
	f := newLoaderFixture(t)

	err := LoadDefinitionsFromFiles(context.Background(), f.workflows, f.branches, f.users, filepath.Join(f.dir, "absent"), arbor.NewLogger())
	assert.NoError(t, err)
}
