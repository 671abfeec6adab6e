package markup

import "github.com/google/uuid"

// IssueMacroName is the macro Confluence renders as a linked Jira issue.
const IssueMacroName = "jira"

// IssueMacro is one issue-reference macro located in a document.
type IssueMacro struct {
	Node *Node
	Key  string
}

// IssueMacros enumerates issue-reference macros in document order, skipping
// ones nested inside an aggregation construct at any depth. The issue macro
// name itself never acts as its own excluder.
func IssueMacros(root *Node, aggregation map[string]bool) []IssueMacro {
	var out []IssueMacro
	for _, m := range root.FindAll(tagMacro) {
		if m.Attr(attrMacroName) != IssueMacroName {
			continue
		}
		if insideAggregation(m, aggregation, IssueMacroName) {
			continue
		}
		if key := MacroParam(m, "key"); key != "" {
			out = append(out, IssueMacro{Node: m, Key: key})
		}
	}
	return out
}

// MacroParam returns the text of a macro's named parameter, or "".
func MacroParam(macro *Node, name string) string {
	for _, p := range macro.FindAll(tagParameter) {
		if p.Attr(attrMacroName) == name {
			return p.Text()
		}
	}
	return ""
}

// BuildIssueMacro constructs a paragraph wrapping an issue-reference macro
// for the given Jira key.
func BuildIssueMacro(serverName, serverID, key string) *Node {
	p := &Node{Type: ElementNode, Tag: "p"}
	macro := &Node{
		Type: ElementNode,
		Tag:  tagMacro,
		Attrs: []Attr{
			{Name: attrMacroName, Value: IssueMacroName},
			{Name: "ac:schema-version", Value: "1"},
			{Name: "ac:macro-id", Value: uuid.NewString()},
		},
		Parent: p,
	}
	p.Children = append(p.Children, macro)
	for _, param := range []struct{ name, value string }{
		{"server", serverName},
		{"serverId", serverID},
		{"key", key},
	} {
		pn := &Node{
			Type:   ElementNode,
			Tag:    tagParameter,
			Attrs:  []Attr{{Name: attrMacroName, Value: param.name}},
			Parent: macro,
		}
		text := NewText(param.value)
		text.Parent = pn
		pn.Children = append(pn.Children, text)
		macro.Children = append(macro.Children, pn)
	}
	return p
}

// ReplaceTasks removes every task marker whose id appears in mappings and
// inserts an issue-reference macro after the marker's task list. Task lists
// left empty by the removals are dropped. Reports whether the document was
// modified.
func ReplaceTasks(root *Node, mappings map[string]string, serverName, serverID string) bool {
	modified := false
	for _, taskList := range root.FindAll(tagTaskList) {
		var macros []*Node
		for _, task := range taskList.FindAll(tagTask) {
			id := task.FindFirst(tagTaskID)
			if id == nil {
				continue
			}
			key, ok := mappings[id.Text()]
			if !ok {
				continue
			}
			task.Detach()
			macros = append(macros, BuildIssueMacro(serverName, serverID, key))
			modified = true
		}
		for i := len(macros) - 1; i >= 0; i-- {
			taskList.InsertAfter(macros[i])
		}
	}
	if modified {
		for _, taskList := range root.FindAll(tagTaskList) {
			if taskList.FindFirst(tagTask) == nil {
				taskList.Detach()
			}
		}
	}
	return modified
}
