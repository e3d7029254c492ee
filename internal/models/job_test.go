package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusIsTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusQueued.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.True(t, JobStatusSuccess.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
}

func TestJobInstanceFieldsRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	job := &JobInstance{
		JobID:        "job_abc",
		WorkflowID:   "wf_1",
		RunID:        "run_1",
		BranchID:     "main",
		TemplateID:   "fake_sleep",
		UserID:       "alice",
		Status:       JobStatusPending,
		CreatedAt:    created,
		InputPayload: map[string]interface{}{"steps": float64(3)},
		Progress:     0,
	}

	rebuilt := JobInstanceFromFields(stringify(job.Fields()))

	assert.Equal(t, job.JobID, rebuilt.JobID)
	assert.Equal(t, job.WorkflowID, rebuilt.WorkflowID)
	assert.Equal(t, job.RunID, rebuilt.RunID)
	assert.Equal(t, job.BranchID, rebuilt.BranchID)
	assert.Equal(t, job.TemplateID, rebuilt.TemplateID)
	assert.Equal(t, job.UserID, rebuilt.UserID)
	assert.Equal(t, JobStatusPending, rebuilt.Status)
	assert.True(t, created.Equal(rebuilt.CreatedAt))
	assert.True(t, rebuilt.StartedAt.IsZero())
	assert.Equal(t, map[string]interface{}{"steps": float64(3)}, rebuilt.InputPayload)
	assert.Nil(t, rebuilt.OutputPayload)
}

func TestJobInstanceFromFieldsDefensive(t *testing.T) {
	rebuilt := JobInstanceFromFields(map[string]string{
		"job_id":        "job_x",
		"progress":      "not-a-number",
		"created_at":    "garbage",
		"input_payload": "also garbage",
	})

	assert.Equal(t, "job_x", rebuilt.JobID)
	assert.Equal(t, 0, rebuilt.Progress)
	assert.True(t, rebuilt.CreatedAt.IsZero())
	assert.Equal(t, map[string]interface{}{}, rebuilt.InputPayload)
}

func TestDecodePayload(t *testing.T) {
	assert.Equal(t, map[string]interface{}{}, DecodePayload(""))
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, DecodePayload(`{"a":1}`))

	// Double-encoded: a JSON string whose content is itself JSON
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, DecodePayload(`"{\"a\":1}"`))

	// Unparseable content degrades to empty
	assert.Equal(t, map[string]interface{}{}, DecodePayload("not json"))
	assert.Equal(t, map[string]interface{}{}, DecodePayload(`"still not json"`))
}

func TestProgressUpdateGlobalPercent(t *testing.T) {
	update := &ProgressUpdate{Current: 3, Total: 10, Progress: 50}
	assert.InDelta(t, 0.3, update.GlobalPercent(), 1e-9)

	// Without totals the 0-100 progress drives the percent
	update = &ProgressUpdate{Progress: 50}
	assert.InDelta(t, 0.5, update.GlobalPercent(), 1e-9)

	update = &ProgressUpdate{}
	assert.Equal(t, 0.0, update.GlobalPercent())
}

func TestProgressRecordRoundTrip(t *testing.T) {
	record := &ProgressRecord{
		JobID:     "job_1",
		UserID:    "alice",
		Status:    JobStatusRunning,
		Current:   2,
		Total:     8,
		Percent:   0.25,
		Message:   "Segmenting",
		Stage:     "segmentation",
		UpdatedAt: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
	}

	decoded, err := DecodeProgressRecord(record.Encode())
	require.NoError(t, err)
	assert.Equal(t, record.JobID, decoded.JobID)
	assert.Equal(t, record.Status, decoded.Status)
	assert.Equal(t, record.Percent, decoded.Percent)
	assert.Equal(t, record.Stage, decoded.Stage)

	_, err = DecodeProgressRecord("broken")
	assert.Error(t, err)
}

// stringify converts a Fields() map into the map[string]string shape
// HGetAll returns
func stringify(fields map[string]interface{}) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v.(string)
	}
	return out
}
