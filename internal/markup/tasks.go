package markup

// Storage-format tag names for task markers.
const (
	tagTask       = "ac:task"
	tagTaskList   = "ac:task-list"
	tagTaskID     = "ac:task-id"
	tagTaskStatus = "ac:task-status"
	tagTaskBody   = "ac:task-body"
	tagMacro      = "ac:structured-macro"
	tagParameter  = "ac:parameter"
	attrMacroName = "ac:name"
)

// TaskNode is a well-formed task marker located in a document.
type TaskNode struct {
	Node   *Node
	ID     string
	Status string
	Body   *Node
}

// Tasks enumerates the document's task markers in document order, including
// markers nested inside another task's body: each nested marker is its own
// entry, and Summary keeps it out of the enclosing marker's text. Markers
// inside an aggregation macro render content whose origin page is elsewhere
// and are skipped. Malformed markers lacking an id or body are skipped
// silently.
func Tasks(root *Node, aggregation map[string]bool) []TaskNode {
	var out []TaskNode
	for _, t := range root.FindAll(tagTask) {
		if insideAggregation(t, aggregation, "") {
			continue
		}
		id := t.FindFirst(tagTaskID)
		status := t.FindFirst(tagTaskStatus)
		body := t.FindFirst(tagTaskBody)
		if id == nil || status == nil || body == nil {
			continue
		}
		out = append(out, TaskNode{
			Node:   t,
			ID:     id.Text(),
			Status: status.Text(),
			Body:   body,
		})
	}
	return out
}

// Summary returns the marker's body text with any nested task lists removed
// first, so nested task text never leaks into the parent's summary.
func (t TaskNode) Summary() string {
	body := t.Body.Clone()
	body.RemoveAll(tagTaskList)
	return body.Text()
}

// AssigneeKey returns the user key of the marker's assignee mention, or "".
func (t TaskNode) AssigneeKey() string {
	if u := t.Node.FindFirst("ri:user"); u != nil {
		return u.Attr("ri:userkey")
	}
	return ""
}

// DueDate returns the ISO date of the marker's due-date node, or "".
func (t TaskNode) DueDate() string {
	if d := t.Node.FindFirst("time"); d != nil {
		return d.Attr("datetime")
	}
	return ""
}

// insideAggregation reports whether any proper ancestor is an aggregation
// macro. The macro named except is not treated as its own excluder, so issue
// macros can be scanned while still skipping ones transcluded from other
// pages.
func insideAggregation(n *Node, aggregation map[string]bool, except string) bool {
	for a := n.Parent; a != nil; a = a.Parent {
		if a.Type == ElementNode && a.Tag == tagMacro {
			name := a.Attr(attrMacroName)
			if aggregation[name] && (except == "" || name != except) {
				return true
			}
		}
	}
	return false
}
