package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job instance ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewRunID generates a unique workflow run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewWorkflowID generates a unique workflow ID with the "wf_" prefix
// Format: wf_<uuid>
func NewWorkflowID() string {
	return "wf_" + uuid.New().String()
}

// NewSlideID generates a unique slide ID with the "slide_" prefix
// Format: slide_<uuid>
func NewSlideID() string {
	return "slide_" + uuid.New().String()
}
