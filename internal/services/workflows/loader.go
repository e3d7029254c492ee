package workflows

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
)

// WorkflowFile is the on-disk workflow definition shape. Both TOML and
// YAML files in the definitions directory use it.
type WorkflowFile struct {
	WorkflowID  string       `toml:"workflow_id" yaml:"workflow_id"`
	Name        string       `toml:"name" yaml:"name"`
	OwnerUserID string       `toml:"owner_user_id" yaml:"owner_user_id"`
	EntryBranch string       `toml:"entry_branch" yaml:"entry_branch"`
	Branches    []BranchFile `toml:"branches" yaml:"branches"`
}

// BranchFile is one ordered job list inside a workflow definition file
type BranchFile struct {
	BranchID string        `toml:"branch_id" yaml:"branch_id"`
	Jobs     []JobSpecFile `toml:"jobs" yaml:"jobs"`
}

// JobSpecFile is one job entry inside a branch definition
type JobSpecFile struct {
	TemplateID   string                 `toml:"template_id" yaml:"template_id"`
	InputPayload map[string]interface{} `toml:"input_payload" yaml:"input_payload"`
}

// LoadDefinitionsFromFiles scans the definitions directory and upserts
// every .toml and .yaml/.yml workflow file into the store. Owners named
// by the files are registered first so their queues and workers exist.
func LoadDefinitionsFromFiles(ctx context.Context, workflows interfaces.WorkflowService, branches interfaces.BranchService, users interfaces.UserService, definitionsDir string, logger arbor.ILogger) error {
	if _, err := os.Stat(definitionsDir); os.IsNotExist(err) {
		logger.Debug().Str("dir", definitionsDir).Msg("Workflow definitions directory does not exist, skipping")
		return nil
	}

	logger.Info().Str("dir", definitionsDir).Msg("Loading workflow definitions from files")

	entries, err := os.ReadDir(definitionsDir)
	if err != nil {
		return fmt.Errorf("failed to read workflow definitions directory: %w", err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".toml" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		filePath := filepath.Join(definitionsDir, entry.Name())
		raw, err := os.ReadFile(filePath)
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read workflow definition file")
			continue
		}

		var file WorkflowFile
		if ext == ".toml" {
			err = toml.Unmarshal(raw, &file)
		} else {
			err = yaml.Unmarshal(raw, &file)
		}
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to parse workflow definition")
			continue
		}

		if err := applyDefinition(ctx, workflows, branches, users, &file, logger); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to apply workflow definition")
			continue
		}

		logger.Info().
			Str("file", entry.Name()).
			Str("workflow_id", file.WorkflowID).
			Int("branches", len(file.Branches)).
			Msg("Workflow definition loaded from file")
		loadedCount++
	}

	if loadedCount > 0 {
		logger.Info().Int("count", loadedCount).Msg("Workflow definitions loaded from files")
	} else {
		logger.Debug().Msg("No workflow definitions loaded from files")
	}
	return nil
}

// applyDefinition upserts one definition. Existing workflows are rebuilt
// from the file: branches named by the file are cleared and re-filled so
// the store matches the definition's job order.
func applyDefinition(ctx context.Context, workflows interfaces.WorkflowService, branches interfaces.BranchService, users interfaces.UserService, file *WorkflowFile, logger arbor.ILogger) error {
	if file.WorkflowID == "" {
		return fmt.Errorf("workflow definition missing workflow_id")
	}
	if file.OwnerUserID == "" {
		return fmt.Errorf("workflow %s missing owner_user_id", file.WorkflowID)
	}

	if err := users.Register(ctx, file.OwnerUserID); err != nil {
		return fmt.Errorf("failed to register owner %s: %w", file.OwnerUserID, err)
	}

	workflow := &models.Workflow{
		WorkflowID:  file.WorkflowID,
		Name:        file.Name,
		OwnerUserID: file.OwnerUserID,
		EntryBranch: file.EntryBranch,
	}
	created, err := workflows.Create(ctx, workflow)
	if err != nil {
		return err
	}
	if !created {
		logger.Debug().Str("workflow_id", file.WorkflowID).Msg("Workflow already exists, rebuilding branches from file")
	}

	for _, branch := range file.Branches {
		if branch.BranchID == "" {
			return fmt.Errorf("workflow %s has a branch without branch_id", file.WorkflowID)
		}
		// Drop any previous job list so re-loading a file never duplicates specs
		if _, err := branches.Delete(ctx, file.WorkflowID, branch.BranchID); err != nil {
			return err
		}
		if _, err := branches.Create(ctx, file.WorkflowID, branch.BranchID); err != nil {
			return err
		}
		for _, job := range branch.Jobs {
			if job.TemplateID == "" {
				return fmt.Errorf("workflow %s branch %s has a job without template_id", file.WorkflowID, branch.BranchID)
			}
			spec := models.JobSpec{
				TemplateID:   job.TemplateID,
				InputPayload: job.InputPayload,
			}
			if _, err := branches.AddJobSpec(ctx, file.WorkflowID, branch.BranchID, spec); err != nil {
				return err
			}
		}
	}
	return nil
}
