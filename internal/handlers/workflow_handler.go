package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/bamtlabs/wsiflow/internal/common"
	"github.com/bamtlabs/wsiflow/internal/interfaces"
	"github.com/bamtlabs/wsiflow/internal/models"
)

// WorkflowHandler handles workflow CRUD, branch management and execution
type WorkflowHandler struct {
	workflows interfaces.WorkflowService
	branches  interfaces.BranchService
	users     interfaces.UserService
	execution interfaces.ExecutionService
	logger    arbor.ILogger
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(workflows interfaces.WorkflowService, branches interfaces.BranchService, users interfaces.UserService, execution interfaces.ExecutionService, logger arbor.ILogger) *WorkflowHandler {
	return &WorkflowHandler{
		workflows: workflows,
		branches:  branches,
		users:     users,
		execution: execution,
		logger:    logger,
	}
}

type createWorkflowRequest struct {
	WorkflowID  string `json:"workflow_id"`
	Name        string `json:"name" validate:"required,min=1,max=256"`
	OwnerUserID string `json:"owner_user_id" validate:"required,min=1,max=128"`
	EntryBranch string `json:"entry_branch"`
}

// CreateHandler handles POST /api/workflows
func (h *WorkflowHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	registered, err := h.users.IsRegistered(r.Context(), req.OwnerUserID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !registered {
		WriteError(w, http.StatusBadRequest, "owner is not a registered user: "+req.OwnerUserID)
		return
	}

	workflowID := req.WorkflowID
	if workflowID == "" {
		workflowID = common.NewWorkflowID()
	}

	workflow := &models.Workflow{
		WorkflowID:  workflowID,
		Name:        req.Name,
		OwnerUserID: req.OwnerUserID,
		EntryBranch: req.EntryBranch,
	}
	created, err := h.workflows.Create(r.Context(), workflow)
	if err != nil {
		h.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("Failed to create workflow")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !created {
		WriteError(w, http.StatusConflict, "workflow already exists: "+workflowID)
		return
	}

	WriteJSON(w, http.StatusCreated, workflow)
}

// ListHandler handles GET /api/workflows
func (h *WorkflowHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	var (
		workflows []*models.Workflow
		err       error
	)
	if owner := r.URL.Query().Get("owner"); owner != "" {
		workflows, err = h.workflows.ListByOwner(r.Context(), owner)
	} else {
		workflows, err = h.workflows.List(r.Context())
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

// ItemHandler routes /api/workflows/{id}[/...]
func (h *WorkflowHandler) ItemHandler(w http.ResponseWriter, r *http.Request) {
	segments := PathSegments(r, "/api/workflows/")
	if len(segments) == 0 {
		WriteError(w, http.StatusNotFound, "workflow id required")
		return
	}
	workflowID := segments[0]

	switch {
	case len(segments) == 1 && r.Method == http.MethodGet:
		h.get(w, r, workflowID)
	case len(segments) == 1 && r.Method == http.MethodDelete:
		h.delete(w, r, workflowID)
	case len(segments) == 2 && segments[1] == "execute" && r.Method == http.MethodPost:
		h.execute(w, r, workflowID)
	case len(segments) >= 2 && segments[1] == "branches":
		h.routeBranches(w, r, workflowID, segments[2:])
	default:
		WriteError(w, http.StatusNotFound, "not found: "+r.URL.Path)
	}
}

func (h *WorkflowHandler) get(w http.ResponseWriter, r *http.Request, workflowID string) {
	workflow, err := h.workflows.Get(r.Context(), workflowID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if workflow == nil {
		WriteError(w, http.StatusNotFound, "workflow not found: "+workflowID)
		return
	}

	branchIDs, err := h.branches.List(r.Context(), workflowID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workflow": workflow,
		"branches": branchIDs,
	})
}

func (h *WorkflowHandler) delete(w http.ResponseWriter, r *http.Request, workflowID string) {
	deleted, err := h.workflows.Delete(r.Context(), workflowID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		WriteError(w, http.StatusNotFound, "workflow not found: "+workflowID)
		return
	}
	WriteSuccess(w, "workflow deleted: "+workflowID)
}

func (h *WorkflowHandler) execute(w http.ResponseWriter, r *http.Request, workflowID string) {
	result, err := h.execution.ExecuteWorkflow(r.Context(), workflowID)
	if err != nil {
		if errors.Is(err, interfaces.ErrWorkflowNotFound) {
			WriteError(w, http.StatusNotFound, "workflow not found: "+workflowID)
			return
		}
		h.logger.Error().Err(err).Str("workflow_id", workflowID).Msg("Workflow execution failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusAccepted, result)
}
