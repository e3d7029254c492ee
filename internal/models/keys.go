// -----------------------------------------------------------------------
// Redis key layout - shared by every component; compatibility with the
// legacy deployment matters, do not rename keys casually.
// -----------------------------------------------------------------------

package models

import "fmt"

const (
	// KeyUsers is the set of all registered user ids
	KeyUsers = "users"

	// KeyActiveUsersLegacy is the legacy active-user set. No live writer was
	// identified; it is read and cleaned up only.
	KeyActiveUsersLegacy = "active_users"

	// KeyActiveUsers is the set of user ids that currently own a RUNNING job
	KeyActiveUsers = "scheduler:active_users"

	// KeyPendingJobs is the global FIFO list of job ids awaiting admission
	KeyPendingJobs = "scheduler:pending_jobs"

	// KeyRunningJobs is the set of job ids currently RUNNING
	KeyRunningJobs = "scheduler:running_jobs"

	// KeyJobProgress is the hash of job_id -> encoded progress record
	KeyJobProgress = "scheduler:job_progress"

	// KeySchedulerState holds "running" or "paused"
	KeySchedulerState = "scheduler:state"

	// KeyWorkflows is the set of all workflow ids
	KeyWorkflows = "workflows"
)

// Scheduler control states stored under KeySchedulerState
const (
	SchedulerRunning = "running"
	SchedulerPaused  = "paused"
)

// UserKey is the metadata hash for one user: {status: idle|running}
func UserKey(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

// UserQueueKey is the per-user admitted job queue (FIFO from the left)
func UserQueueKey(userID string) string {
	return fmt.Sprintf("user:%s:queue", userID)
}

// UserSlidesKey is the set of slide ids owned by a user
func UserSlidesKey(userID string) string {
	return fmt.Sprintf("user:%s:slides", userID)
}

// WorkflowKey is the metadata hash for one workflow
func WorkflowKey(workflowID string) string {
	return fmt.Sprintf("workflow:%s", workflowID)
}

// WorkflowBranchesKey is the set of branch ids belonging to a workflow
func WorkflowBranchesKey(workflowID string) string {
	return fmt.Sprintf("workflow:%s:branches", workflowID)
}

// WorkflowBranchKey is the ordered list of encoded job specs for a branch
func WorkflowBranchKey(workflowID, branchID string) string {
	return fmt.Sprintf("workflow:%s:branch:%s", workflowID, branchID)
}

// WorkflowRunsKey is the set of run ids for a workflow
func WorkflowRunsKey(workflowID string) string {
	return fmt.Sprintf("workflow:%s:runs", workflowID)
}

// WorkflowRunJobsKey is the list of job ids a run created, in insertion order
func WorkflowRunJobsKey(workflowID, runID string) string {
	return fmt.Sprintf("workflow:%s:run:%s:jobs", workflowID, runID)
}

// JobKey is the hash holding all JobInstance fields
func JobKey(jobID string) string {
	return fmt.Sprintf("job:%s:data", jobID)
}

// SlideKey is the metadata hash for one slide
func SlideKey(slideID string) string {
	return fmt.Sprintf("slide:%s", slideID)
}
