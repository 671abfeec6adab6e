package types

// Per-task creation outcome vocabulary.
const (
	OutcomeSuccess          = "Success"
	OutcomeCompletedCreated = "Success - Completed Task Created"
	OutcomeNoWorkPackage    = "Skipped - No Work Package found"
	OutcomeCreationFailed   = "Failed - Jira task creation"
	OutcomeEmptyTask        = "Skipped - Empty Task"
)

// Aggregate status values surfaced for creation, update and overall results.
const (
	StatusSuccess        = "Success"
	StatusPartialSuccess = "Partial Success"
	StatusFailed         = "Failed"
	StatusSkipped        = "Skipped"
)

// Undo action types.
const (
	ActionJiraTransition     = "jira_transition"
	ActionConfluenceRollback = "confluence_rollback"
)

// CreationResult records the outcome of creating a Jira issue for one task.
// Created once per task during a sync run and immutable thereafter.
type CreationResult struct {
	Task         Task   `json:"task"`
	Status       string `json:"creation_status"`
	Success      bool   `json:"success"`
	IssueKey     string `json:"new_jira_task_key,omitempty"`
	ParentKey    string `json:"linked_work_package,omitempty"`
	RequestUser  string `json:"request_user,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// PageUpdateResult records the outcome of rewriting one Confluence page.
type PageUpdateResult struct {
	PageID       string   `json:"page_id"`
	PageTitle    string   `json:"page_title"`
	Updated      bool     `json:"updated"`
	IssueKeys    []string `json:"jira_keys_replaced,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// SyncResult is the full outcome of one sync run.
type SyncResult struct {
	RequestID      string             `json:"request_id"`
	CreationStatus string             `json:"overall_jira_task_creation_status"`
	UpdateStatus   string             `json:"overall_confluence_page_update_status"`
	OverallStatus  string             `json:"overall_status"`
	Creations      []CreationResult   `json:"jira_task_creation_results"`
	PageUpdates    []PageUpdateResult `json:"confluence_page_update_results"`
}

// UndoItem is the minimal subset of a CreationResult needed to reverse it.
type UndoItem struct {
	PageID      string `json:"confluence_page_id"`
	PageVersion int    `json:"original_page_version"`
	IssueKey    string `json:"new_jira_task_key,omitempty"`
	RequestUser string `json:"request_user,omitempty"`
}

// UndoActionResult records one reversal action (issue transition or page
// rollback) from an undo run.
type UndoActionResult struct {
	ActionType   string `json:"action_type"`
	TargetID     string `json:"target_id"`
	Success      bool   `json:"success"`
	Message      string `json:"status_message"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// UndoResult is the full outcome of one undo run.
type UndoResult struct {
	OverallStatus string             `json:"overall_status"`
	Actions       []UndoActionResult `json:"actions"`
}

// PageRelinkResult records the macros replaced on one page by the re-linker.
type PageRelinkResult struct {
	PageID        string   `json:"page_id"`
	PageTitle     string   `json:"page_title"`
	NewIssueKeys  []string `json:"new_jira_keys"`
	ProjectLinked string   `json:"project_linked"`
}

// AggregateStatus reduces a list of per-item success flags to an overall
// status string.
func AggregateStatus(oks []bool) string {
	if len(oks) == 0 {
		return StatusSkipped
	}
	all, any := true, false
	for _, ok := range oks {
		if ok {
			any = true
		} else {
			all = false
		}
	}
	switch {
	case all:
		return StatusSuccess
	case any:
		return StatusPartialSuccess
	default:
		return StatusFailed
	}
}
