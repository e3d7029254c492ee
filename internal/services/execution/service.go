// -----------------------------------------------------------------------
// Execution service - expands a workflow into PENDING job instances and
// publishes them to the global pending queue. Per-job payload errors are
// logged and skipped; the execution continues.
// -----------------------------------------------------------------------

package execution

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/common"
	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
)

// Reserved template names that trigger slide payload expansion
const (
	TemplateInitWSI       = "init_wsi"
	TemplateWSIInitialize = "wsi_initialize"
)

// Default tiling parameters merged into slide-initialization payloads
// unless the spec overrides them.
const (
	defaultTileSize = 1024
	defaultOverlap  = 128
	defaultMinTile  = 512
	defaultMaxTile  = 1536
)

// Service implements interfaces.ExecutionService
type Service struct {
	store     interfaces.StateStore
	workflows interfaces.WorkflowService
	branches  interfaces.BranchService
	jobs      interfaces.JobService
	slides    interfaces.SlideService
	logger    arbor.ILogger
}

// NewService creates a new execution service
func NewService(store interfaces.StateStore, workflows interfaces.WorkflowService, branches interfaces.BranchService, jobs interfaces.JobService, slides interfaces.SlideService, logger arbor.ILogger) *Service {
	return &Service{
		store:     store,
		workflows: workflows,
		branches:  branches,
		jobs:      jobs,
		slides:    slides,
		logger:    logger,
	}
}

// ExecuteWorkflow materializes every branch's job specs into PENDING job
// instances and enqueues them globally.
func (s *Service) ExecuteWorkflow(ctx context.Context, workflowID string) (*interfaces.ExecutionResult, error) {
	workflow, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, interfaces.ErrWorkflowNotFound
	}

	runID := common.NewRunID()
	if err := s.store.SAdd(ctx, models.WorkflowRunsKey(workflowID), runID); err != nil {
		return nil, fmt.Errorf("failed to register run: %w", err)
	}

	runLogger := s.logger.WithCorrelationId(runID)
	runLogger.Info().
		Str("workflow_id", workflowID).
		Str("owner", workflow.OwnerUserID).
		Msg("Executing workflow")

	createdJobs := []string{}

	branchIDs, err := s.branches.List(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	for _, branchID := range branchIDs {
		specs, err := s.branches.JobSpecs(ctx, workflowID, branchID)
		if err != nil {
			return nil, err
		}

		for _, spec := range specs {
			payload, err := s.resolvePayload(ctx, spec)
			if err != nil {
				// Per-job error: skip this spec, keep expanding
				runLogger.Warn().
					Err(err).
					Str("branch_id", branchID).
					Str("template", spec.TemplateID).
					Msg("Skipping job spec")
				continue
			}

			jobID, err := s.jobs.Create(ctx, interfaces.CreateJobParams{
				UserID:       workflow.OwnerUserID,
				WorkflowID:   workflowID,
				RunID:        runID,
				BranchID:     branchID,
				TemplateID:   spec.TemplateID,
				InputPayload: payload,
			})
			if err != nil {
				return nil, err
			}

			createdJobs = append(createdJobs, jobID)

			// Track under the run, then publish for admission
			if err := s.store.RPush(ctx, models.WorkflowRunJobsKey(workflowID, runID), jobID); err != nil {
				return nil, err
			}
			if err := s.store.RPush(ctx, models.KeyPendingJobs, jobID); err != nil {
				return nil, err
			}
		}
	}

	runLogger.Info().
		Str("workflow_id", workflowID).
		Int("jobs", len(createdJobs)).
		Msg("Workflow expansion complete")

	return &interfaces.ExecutionResult{
		WorkflowID: workflowID,
		RunID:      runID,
		JobIDs:     createdJobs,
	}, nil
}

// resolvePayload derives the final input payload for a spec. Slide
// initialization templates require slide metadata; everything else passes
// through unchanged.
func (s *Service) resolvePayload(ctx context.Context, spec models.JobSpec) (map[string]interface{}, error) {
	payload := spec.InputPayload
	if payload == nil {
		payload = map[string]interface{}{}
	}

	if spec.TemplateID != TemplateInitWSI && spec.TemplateID != TemplateWSIInitialize {
		return payload, nil
	}

	slideID, _ := payload["slide_id"].(string)
	if slideID == "" {
		return nil, fmt.Errorf("%s template requires slide_id", spec.TemplateID)
	}

	slide, err := s.slides.Get(ctx, slideID)
	if err != nil {
		return nil, fmt.Errorf("failed to load slide %s: %w", slideID, err)
	}
	if slide == nil {
		return nil, fmt.Errorf("slide metadata missing for %s", slideID)
	}
	if slide.SlidePath == "" {
		return nil, fmt.Errorf("slide_path missing for slide %s", slideID)
	}

	return map[string]interface{}{
		"slide_id":   slideID,
		"slide_path": slide.SlidePath,
		"tile_size":  payloadInt(payload, "tile_size", defaultTileSize),
		"overlap":    payloadInt(payload, "overlap", defaultOverlap),
		"min_tile":   payloadInt(payload, "min_tile", defaultMinTile),
		"max_tile":   payloadInt(payload, "max_tile", defaultMaxTile),
	}, nil
}

// payloadInt reads a numeric payload value, tolerating the float64 typing
// JSON decoding produces.
func payloadInt(payload map[string]interface{}, key string, fallback int) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
