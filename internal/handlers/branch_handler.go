package handlers

import (
	"net/http"
	"strconv"

	"github.com/bamtlabs/wsiflow/internal/models"
)

type createBranchRequest struct {
	BranchID string `json:"branch_id" validate:"required,min=1,max=128"`
}

type addJobSpecRequest struct {
	TemplateID   string                 `json:"template_id" validate:"required,min=1,max=128"`
	InputPayload map[string]interface{} `json:"input_payload"`
}

// routeBranches handles everything under /api/workflows/{id}/branches
func (h *WorkflowHandler) routeBranches(w http.ResponseWriter, r *http.Request, workflowID string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		h.createBranch(w, r, workflowID)
	case len(rest) == 0 && r.Method == http.MethodGet:
		h.listBranches(w, r, workflowID)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		h.deleteBranch(w, r, workflowID, rest[0])
	case len(rest) == 2 && rest[1] == "jobs" && r.Method == http.MethodPost:
		h.addJobSpec(w, r, workflowID, rest[0])
	case len(rest) == 2 && rest[1] == "jobs" && r.Method == http.MethodGet:
		h.listJobSpecs(w, r, workflowID, rest[0])
	case len(rest) == 3 && rest[1] == "jobs" && r.Method == http.MethodDelete:
		h.removeJobSpec(w, r, workflowID, rest[0], rest[2])
	default:
		WriteError(w, http.StatusNotFound, "not found: "+r.URL.Path)
	}
}

func (h *WorkflowHandler) createBranch(w http.ResponseWriter, r *http.Request, workflowID string) {
	var req createBranchRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	exists, err := h.workflows.Exists(r.Context(), workflowID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !exists {
		WriteError(w, http.StatusNotFound, "workflow not found: "+workflowID)
		return
	}

	created, err := h.branches.Create(r.Context(), workflowID, req.BranchID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !created {
		WriteError(w, http.StatusConflict, "branch already exists: "+req.BranchID)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{
		"workflow_id": workflowID,
		"branch_id":   req.BranchID,
	})
}

func (h *WorkflowHandler) listBranches(w http.ResponseWriter, r *http.Request, workflowID string) {
	branchIDs, err := h.branches.List(r.Context(), workflowID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workflow_id": workflowID,
		"branches":    branchIDs,
		"count":       len(branchIDs),
	})
}

func (h *WorkflowHandler) deleteBranch(w http.ResponseWriter, r *http.Request, workflowID, branchID string) {
	deleted, err := h.branches.Delete(r.Context(), workflowID, branchID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		WriteError(w, http.StatusNotFound, "branch not found: "+branchID)
		return
	}
	WriteSuccess(w, "branch deleted: "+branchID)
}

func (h *WorkflowHandler) addJobSpec(w http.ResponseWriter, r *http.Request, workflowID, branchID string) {
	var req addJobSpecRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	spec := models.JobSpec{
		TemplateID:   req.TemplateID,
		InputPayload: req.InputPayload,
	}
	added, err := h.branches.AddJobSpec(r.Context(), workflowID, branchID, spec)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !added {
		WriteError(w, http.StatusNotFound, "branch not found: "+branchID)
		return
	}
	WriteJSON(w, http.StatusCreated, spec)
}

func (h *WorkflowHandler) listJobSpecs(w http.ResponseWriter, r *http.Request, workflowID, branchID string) {
	specs, err := h.branches.JobSpecs(r.Context(), workflowID, branchID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workflow_id": workflowID,
		"branch_id":   branchID,
		"jobs":        specs,
		"count":       len(specs),
	})
}

func (h *WorkflowHandler) removeJobSpec(w http.ResponseWriter, r *http.Request, workflowID, branchID, indexStr string) {
	index, err := strconv.Atoi(indexStr)
	if err != nil || index < 0 {
		WriteError(w, http.StatusBadRequest, "invalid job index: "+indexStr)
		return
	}

	removed, err := h.branches.RemoveJobSpecAt(r.Context(), workflowID, branchID, index)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		WriteError(w, http.StatusNotFound, "no job spec at index "+indexStr)
		return
	}
	WriteSuccess(w, "job spec removed")
}
