// -----------------------------------------------------------------------
// User service - registration plus cascading removal. Deletion walks the
// tracked sets (workflows -> branches -> runs -> jobs) rather than
// scanning the key space.
// -----------------------------------------------------------------------

package users

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
)

// Service implements interfaces.UserService
type Service struct {
	store     interfaces.StateStore
	workflows interfaces.WorkflowService
	branches  interfaces.BranchService
	slides    interfaces.SlideService
	logger    arbor.ILogger
}

// NewService creates a new user service
func NewService(store interfaces.StateStore, workflows interfaces.WorkflowService, branches interfaces.BranchService, slides interfaces.SlideService, logger arbor.ILogger) *Service {
	return &Service{
		store:     store,
		workflows: workflows,
		branches:  branches,
		slides:    slides,
		logger:    logger,
	}
}

// Register adds the user if not already registered
func (s *Service) Register(ctx context.Context, userID string) error {
	if err := s.store.SAdd(ctx, models.KeyUsers, userID); err != nil {
		return fmt.Errorf("failed to register user %s: %w", userID, err)
	}
	// Do not clobber an existing status
	if err := s.store.HSetFieldNX(ctx, models.UserKey(userID), "status", "idle"); err != nil {
		return fmt.Errorf("failed to initialize user %s: %w", userID, err)
	}
	return nil
}

// Delete removes the user and cascades through everything they own
func (s *Service) Delete(ctx context.Context, userID string) (bool, error) {
	registered, err := s.store.SIsMember(ctx, models.KeyUsers, userID)
	if err != nil {
		return false, err
	}
	if !registered {
		return false, nil
	}

	// Workflows (each cascades to its branches and runs' job instances)
	owned, err := s.workflows.ListByOwner(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to list workflows for %s: %w", userID, err)
	}
	for _, wf := range owned {
		if _, err := s.deleteWorkflowTree(ctx, wf.WorkflowID); err != nil {
			return false, err
		}
	}

	// Slide metadata and blobs
	slideIDs, err := s.store.SMembers(ctx, models.UserSlidesKey(userID))
	if err == nil {
		for _, slideID := range slideIDs {
			if _, err := s.slides.Delete(ctx, slideID); err != nil {
				s.logger.Warn().Err(err).Str("slide_id", slideID).Msg("Failed to delete slide during user removal")
			}
		}
	}

	// Execution queue, membership, metadata
	if err := s.store.Del(ctx, models.UserQueueKey(userID), models.UserKey(userID), models.UserSlidesKey(userID)); err != nil {
		return false, err
	}
	if err := s.store.SRem(ctx, models.KeyUsers, userID); err != nil {
		return false, err
	}
	// Both the live and the legacy active-user sets
	if err := s.store.SRem(ctx, models.KeyActiveUsers, userID); err != nil {
		return false, err
	}
	if err := s.store.SRem(ctx, models.KeyActiveUsersLegacy, userID); err != nil {
		return false, err
	}

	s.logger.Info().Str("user_id", userID).Int("workflows", len(owned)).Msg("User deleted")
	return true, nil
}

// deleteWorkflowTree removes a workflow, its branches, and the job
// instances its runs created.
func (s *Service) deleteWorkflowTree(ctx context.Context, workflowID string) (bool, error) {
	branchIDs, err := s.branches.List(ctx, workflowID)
	if err != nil {
		return false, err
	}
	for _, branchID := range branchIDs {
		if _, err := s.branches.Delete(ctx, workflowID, branchID); err != nil {
			return false, err
		}
	}

	runIDs, err := s.store.SMembers(ctx, models.WorkflowRunsKey(workflowID))
	if err != nil {
		return false, err
	}
	for _, runID := range runIDs {
		jobsKey := models.WorkflowRunJobsKey(workflowID, runID)
		jobIDs, err := s.store.LRange(ctx, jobsKey, 0, -1)
		if err != nil {
			return false, err
		}
		for _, jobID := range jobIDs {
			if err := s.store.Del(ctx, models.JobKey(jobID)); err != nil {
				return false, err
			}
			if err := s.store.HDel(ctx, models.KeyJobProgress, jobID); err != nil {
				return false, err
			}
		}
		if err := s.store.Del(ctx, jobsKey); err != nil {
			return false, err
		}
	}
	if err := s.store.Del(ctx, models.WorkflowRunsKey(workflowID)); err != nil {
		return false, err
	}

	return s.workflows.Delete(ctx, workflowID)
}

// IsRegistered reports membership in the user registry
func (s *Service) IsRegistered(ctx context.Context, userID string) (bool, error) {
	return s.store.SIsMember(ctx, models.KeyUsers, userID)
}

// List returns all registered user ids
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.store.SMembers(ctx, models.KeyUsers)
}

// Status returns the user metadata hash
func (s *Service) Status(ctx context.Context, userID string) (map[string]string, error) {
	return s.store.HGetAll(ctx, models.UserKey(userID))
}
