package workflows

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
)

// Service implements interfaces.WorkflowService
type Service struct {
	store  interfaces.StateStore
	logger arbor.ILogger
}

// NewService creates a new workflow service
func NewService(store interfaces.StateStore, logger arbor.ILogger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Create registers a workflow definition; false when the id already exists
func (s *Service) Create(ctx context.Context, workflow *models.Workflow) (bool, error) {
	exists, err := s.store.SIsMember(ctx, models.KeyWorkflows, workflow.WorkflowID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if err := s.store.SAdd(ctx, models.KeyWorkflows, workflow.WorkflowID); err != nil {
		return false, fmt.Errorf("failed to register workflow %s: %w", workflow.WorkflowID, err)
	}
	if err := s.store.HSet(ctx, models.WorkflowKey(workflow.WorkflowID), workflow.Fields()); err != nil {
		return false, fmt.Errorf("failed to store workflow %s: %w", workflow.WorkflowID, err)
	}

	s.logger.Debug().
		Str("workflow_id", workflow.WorkflowID).
		Str("owner", workflow.OwnerUserID).
		Msg("Workflow created")
	return true, nil
}

// Get returns the workflow, or nil when absent
func (s *Service) Get(ctx context.Context, workflowID string) (*models.Workflow, error) {
	fields, err := s.store.HGetAll(ctx, models.WorkflowKey(workflowID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return models.WorkflowFromFields(workflowID, fields), nil
}

// Exists reports membership in the workflow registry
func (s *Service) Exists(ctx context.Context, workflowID string) (bool, error) {
	return s.store.SIsMember(ctx, models.KeyWorkflows, workflowID)
}

// Delete removes the workflow definition and every branch job-spec list
// under it; false when absent
func (s *Service) Delete(ctx context.Context, workflowID string) (bool, error) {
	exists, err := s.store.SIsMember(ctx, models.KeyWorkflows, workflowID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	branchIDs, err := s.store.SMembers(ctx, models.WorkflowBranchesKey(workflowID))
	if err != nil {
		return false, err
	}

	if err := s.store.SRem(ctx, models.KeyWorkflows, workflowID); err != nil {
		return false, err
	}
	keys := []string{models.WorkflowKey(workflowID), models.WorkflowBranchesKey(workflowID)}
	for _, branchID := range branchIDs {
		keys = append(keys, models.WorkflowBranchKey(workflowID, branchID))
	}
	if err := s.store.Del(ctx, keys...); err != nil {
		return false, err
	}
	return true, nil
}

// List returns all workflow definitions
func (s *Service) List(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := s.store.SMembers(ctx, models.KeyWorkflows)
	if err != nil {
		return nil, err
	}
	result := make([]*models.Workflow, 0, len(ids))
	for _, id := range ids {
		fields, err := s.store.HGetAll(ctx, models.WorkflowKey(id))
		if err != nil || len(fields) == 0 {
			continue
		}
		result = append(result, models.WorkflowFromFields(id, fields))
	}
	return result, nil
}

// ListByOwner returns the workflows owned by a user
func (s *Service) ListByOwner(ctx context.Context, userID string) ([]*models.Workflow, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]*models.Workflow, 0)
	for _, wf := range all {
		if wf.OwnerUserID == userID {
			result = append(result, wf)
		}
	}
	return result, nil
}
