package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Workflow is a named collection of branches owned by a user
type Workflow struct {
	WorkflowID  string `json:"workflow_id"`
	Name        string `json:"name"`
	OwnerUserID string `json:"owner_user_id"`
	EntryBranch string `json:"entry_branch,omitempty"`
}

// Fields flattens the workflow into its Redis hash representation
func (w *Workflow) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"name":          w.Name,
		"owner_user_id": w.OwnerUserID,
	}
	if w.EntryBranch != "" {
		fields["entry_branch"] = w.EntryBranch
	}
	return fields
}

// WorkflowFromFields rebuilds a workflow from its Redis hash representation
func WorkflowFromFields(workflowID string, fields map[string]string) *Workflow {
	return &Workflow{
		WorkflowID:  workflowID,
		Name:        fields["name"],
		OwnerUserID: fields["owner_user_id"],
		EntryBranch: fields["entry_branch"],
	}
}

// JobSpec pairs a template name with a default input payload; it is the
// element type of a branch's ordered job list.
type JobSpec struct {
	TemplateID   string                 `json:"template_id"`
	InputPayload map[string]interface{} `json:"input_payload"`
}

// Encode serializes the spec for branch list storage
func (s *JobSpec) Encode() string {
	if s.InputPayload == nil {
		s.InputPayload = map[string]interface{}{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return `{"template_id":"","input_payload":{}}`
	}
	return string(data)
}

// DecodeJobSpec parses a branch list entry. The legacy form - a bare
// template name instead of a JSON object - is accepted and treated as a
// spec with an empty payload.
func DecodeJobSpec(raw string) JobSpec {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var spec JobSpec
		if err := json.Unmarshal([]byte(trimmed), &spec); err == nil && spec.TemplateID != "" {
			if spec.InputPayload == nil {
				spec.InputPayload = map[string]interface{}{}
			}
			return spec
		}
	}

	// Bare template string, possibly JSON-quoted
	var quoted string
	if err := json.Unmarshal([]byte(trimmed), &quoted); err == nil && quoted != "" {
		trimmed = quoted
	}
	return JobSpec{
		TemplateID:   trimmed,
		InputPayload: map[string]interface{}{},
	}
}

// Slide is external metadata consumed by the slide-initialization template
type Slide struct {
	SlideID   string `json:"slide_id"`
	UserID    string `json:"user_id"`
	SlidePath string `json:"slide_path"`
	SizeBytes int64  `json:"size_bytes"`
}

// Fields flattens the slide into its Redis hash representation
func (s *Slide) Fields() map[string]interface{} {
	return map[string]interface{}{
		"slide_id":   s.SlideID,
		"user_id":    s.UserID,
		"slide_path": s.SlidePath,
		"size_bytes": strconv.FormatInt(s.SizeBytes, 10),
	}
}

// SlideFromFields rebuilds a slide from its Redis hash representation
func SlideFromFields(fields map[string]string) *Slide {
	size, _ := strconv.ParseInt(fields["size_bytes"], 10, 64)
	return &Slide{
		SlideID:   fields["slide_id"],
		UserID:    fields["user_id"],
		SlidePath: fields["slide_path"],
		SizeBytes: size,
	}
}
