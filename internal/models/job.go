// -----------------------------------------------------------------------
// Job instance model - stored as a flat Redis hash under job:<id>:data.
// Field names are wire-compatible with the legacy deployment.
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// JobStatus is the lifecycle state of a job instance
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusQueued  JobStatus = "QUEUED" // reserved for future priority bookkeeping, never emitted
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// IsTerminal reports whether the status can never be left again
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// timeLayout matches the ISO timestamps the legacy deployment wrote
const timeLayout = time.RFC3339Nano

// JobInstance is a concrete, executable job created per workflow execution
type JobInstance struct {
	JobID      string `json:"job_id"`
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	BranchID   string `json:"branch_id"`
	TemplateID string `json:"job_template_id"`
	UserID     string `json:"user_id"`

	Status JobStatus `json:"status"`

	CreatedAt   time.Time `json:"created_at"`
	ScheduledAt time.Time `json:"scheduled_at"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	InputPayload  map[string]interface{} `json:"input_payload"`
	OutputPayload map[string]interface{} `json:"output_payload"`

	Progress        int    `json:"progress"` // 0-100
	ProgressMessage string `json:"progress_message"`
	Stage           string `json:"stage"`
	ETASeconds      int    `json:"eta_seconds"`
}

// Fields flattens the instance into the Redis hash representation
func (j *JobInstance) Fields() map[string]interface{} {
	return map[string]interface{}{
		"job_id":          j.JobID,
		"workflow_id":     j.WorkflowID,
		"run_id":          j.RunID,
		"branch_id":       j.BranchID,
		"job_template_id": j.TemplateID,
		"user_id":         j.UserID,

		"status":       string(j.Status),
		"created_at":   formatTime(j.CreatedAt),
		"scheduled_at": formatTime(j.ScheduledAt),
		"started_at":   formatTime(j.StartedAt),
		"finished_at":  formatTime(j.FinishedAt),

		"input_payload":  encodePayload(j.InputPayload),
		"output_payload": encodePayloadOrEmpty(j.OutputPayload),

		"progress":         strconv.Itoa(j.Progress),
		"progress_message": j.ProgressMessage,
		"stage":            j.Stage,
		"eta_seconds":      formatETA(j.ETASeconds),
	}
}

// JobInstanceFromFields rebuilds an instance from the Redis hash representation.
// Parsing is defensive: missing or malformed fields degrade to zero values
// rather than failing the read.
func JobInstanceFromFields(fields map[string]string) *JobInstance {
	j := &JobInstance{
		JobID:      fields["job_id"],
		WorkflowID: fields["workflow_id"],
		RunID:      fields["run_id"],
		BranchID:   fields["branch_id"],
		TemplateID: fields["job_template_id"],
		UserID:     fields["user_id"],

		Status: JobStatus(fields["status"]),

		CreatedAt:   parseTime(fields["created_at"]),
		ScheduledAt: parseTime(fields["scheduled_at"]),
		StartedAt:   parseTime(fields["started_at"]),
		FinishedAt:  parseTime(fields["finished_at"]),

		InputPayload:    DecodePayload(fields["input_payload"]),
		ProgressMessage: fields["progress_message"],
		Stage:           fields["stage"],
	}

	if raw := fields["output_payload"]; raw != "" {
		j.OutputPayload = DecodePayload(raw)
	}
	if v, err := strconv.Atoi(fields["progress"]); err == nil {
		j.Progress = v
	}
	if v, err := strconv.Atoi(fields["eta_seconds"]); err == nil {
		j.ETASeconds = v
	}

	return j
}

// DecodePayload decodes an encoded payload map. A double-encoded payload
// (JSON string containing JSON) is decoded twice; anything unparseable
// yields an empty map.
func DecodePayload(raw string) map[string]interface{} {
	if raw == "" {
		return map[string]interface{}{}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err == nil {
		return payload
	}

	var inner string
	if err := json.Unmarshal([]byte(raw), &inner); err == nil {
		if err := json.Unmarshal([]byte(inner), &payload); err == nil {
			return payload
		}
	}

	return map[string]interface{}{}
}

func encodePayload(payload map[string]interface{}) string {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func encodePayloadOrEmpty(payload map[string]interface{}) string {
	if payload == nil {
		return ""
	}
	return encodePayload(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatETA(eta int) string {
	if eta == 0 {
		return ""
	}
	return strconv.Itoa(eta)
}

// ProgressRecord is the global progress entry under scheduler:job_progress,
// consumed by the status dashboard. Percent is in [0, 1].
type ProgressRecord struct {
	JobID      string    `json:"job_id"`
	UserID     string    `json:"user_id"`
	Status     JobStatus `json:"status"`
	Current    int       `json:"current"`
	Total      int       `json:"total"`
	Percent    float64   `json:"percent"`
	Message    string    `json:"message"`
	Stage      string    `json:"stage"`
	ETASeconds int       `json:"eta_seconds"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Encode serializes the record for hash storage
func (r *ProgressRecord) Encode() string {
	data, err := json.Marshal(r)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// DecodeProgressRecord parses an encoded progress record
func DecodeProgressRecord(raw string) (*ProgressRecord, error) {
	var r ProgressRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ProgressUpdate is a handler-facing progress report. Progress is 0-100.
// When Current and Total are both set they take precedence for the global
// percent computation.
type ProgressUpdate struct {
	Progress int
	Message  string
	Stage    string
	ETA      int
	Current  int
	Total    int
}

// GlobalPercent derives the [0,1] percent for the global record
func (u *ProgressUpdate) GlobalPercent() float64 {
	if u.Total > 0 {
		return float64(u.Current) / float64(u.Total)
	}
	return float64(u.Progress) / 100.0
}
