package types

// Task status values as stored in Confluence task markers.
const (
	TaskIncomplete = "incomplete"
	TaskComplete   = "complete"
)

// Task represents one task marker discovered in a Confluence page body.
// TaskID is unique within its page only; callers treat (PageID, TaskID) as
// the identity key.
type Task struct {
	PageID          string `json:"confluence_page_id"`
	PageTitle       string `json:"confluence_page_title"`
	PageURL         string `json:"confluence_page_url"`
	TaskID          string `json:"confluence_task_id"`
	Summary         string `json:"task_summary"`
	Status          string `json:"status"`
	Assignee        string `json:"assignee_name,omitempty"`
	DueDate         string `json:"due_date,omitempty"`
	PageVersion     int    `json:"original_page_version"`
	PageVersionBy   string `json:"original_page_version_by,omitempty"`
	PageVersionWhen string `json:"original_page_version_when,omitempty"`
	Context         string `json:"context,omitempty"`
}

// Mapping pairs a Confluence task ID with the Jira key that replaced it.
// Mappings are consumed in batches, one batch per page.
type Mapping struct {
	TaskID   string `json:"confluence_task_id"`
	IssueKey string `json:"jira_key"`
}
