package markup

import "strings"

var headingTags = []string{"h1", "h2", "h3", "h4", "h5", "h6"}

// TaskContext extracts the most relevant surrounding text for a task marker.
// Strategies are tried in strict priority order and the first non-empty
// result wins:
//
//  1. the nearest containing list item or task, cloned and stripped of
//     nested task lists (a task ancestor contributes only its body text);
//  2. the containing table row, rendered as a compact header row plus the
//     current data row;
//  3. the nearest preceding paragraph, heading or list item in document
//     order before the task's enclosing task list.
//
// An empty string is a valid terminal outcome, not an error.
func TaskContext(task *Node) string {
	if ctx := containerContext(task); ctx != "" {
		return ctx
	}
	if ctx := tableContext(task); ctx != "" {
		return ctx
	}
	return precedingContext(task)
}

func containerContext(task *Node) string {
	container := task.Ancestor("li", tagTask)
	if container == nil {
		return ""
	}
	clone := container.Clone()
	clone.RemoveAll(tagTaskList)
	if body := clone.FindFirst(tagTaskBody); body != nil {
		return body.Text()
	}
	return clone.Text()
}

func tableContext(task *Node) string {
	row := task.Ancestor("tr")
	if row == nil {
		return ""
	}
	table := row.Ancestor("table")
	if table == nil {
		return ""
	}

	var headers []string
	for _, th := range table.FindAll("th") {
		headers = append(headers, th.Text())
	}

	var cells []string
	for _, cell := range row.FindAll("td", "th") {
		// Marker metadata and task lists nested inside a marker's body would
		// leak into the cell text; the marker's own body text stays.
		clone := cell.Clone()
		clone.RemoveAll(tagTaskID)
		clone.RemoveAll(tagTaskStatus)
		for _, tl := range clone.FindAll(tagTaskList) {
			if tl.Ancestor(tagTaskBody) != nil {
				tl.Detach()
			}
		}
		cells = append(cells, clone.Text())
	}

	var b strings.Builder
	if len(headers) > 0 {
		b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	}
	b.WriteString("| " + strings.Join(cells, " | ") + " |")
	return b.String()
}

func precedingContext(task *Node) string {
	taskList := task.Ancestor(tagTaskList)
	if taskList == nil {
		return ""
	}
	candidates := append([]string{"p", "li"}, headingTags...)
	before := taskList.ElementsBefore()
	for i := len(before) - 1; i >= 0; i-- {
		tag := before[i]
		if !matches(tag.Tag, candidates) {
			continue
		}
		var text string
		if tag.Tag == "li" {
			clone := tag.Clone()
			clone.RemoveAll(tagTaskList)
			text = clone.Text()
		} else {
			text = tag.Text()
		}
		if text != "" {
			return text
		}
	}
	return ""
}
