// Package markup works with Confluence storage-format page bodies. It parses
// a body once into an explicit tree with parent back-references and offers
// the traversal, extraction and rewrite operations the orchestrators need,
// so no caller ever re-parses per task.
package markup

import (
	"encoding/xml"
	"io"
	"strings"
)

// NodeType distinguishes element and text nodes.
type NodeType int

const (
	ElementNode NodeType = iota
	TextNode
)

// Attr is a single attribute, with namespaced names kept verbatim
// (e.g. "ac:name", "ri:userkey").
type Attr struct {
	Name  string
	Value string
}

// Node is one node of a parsed storage-format document. The document root is
// a synthetic element holding the body's top-level nodes.
type Node struct {
	Type     NodeType
	Tag      string // element nodes only, e.g. "ac:task"
	text     string // text nodes only; read through Text()
	Attrs    []Attr
	Parent   *Node
	Children []*Node
}

// NewText creates a detached text node.
func NewText(s string) *Node {
	return &Node{Type: TextNode, text: s}
}

// Parse builds a document tree from a storage-format body. The decoder runs
// in non-strict mode: storage format is XML-shaped but carries HTML entities
// and the occasional missing end tag. No AutoClose list is installed; HTML
// void-element names collide with namespaced tags ("link" would auto-close
// "ac:link") and storage format self-closes its empty elements anyway.
func Parse(body string) (*Node, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	root := &Node{Type: ElementNode, Tag: "#document"}
	cur := root
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{
				Type:   ElementNode,
				Tag:    xmlName(t.Name),
				Parent: cur,
			}
			for _, a := range t.Attr {
				n.Attrs = append(n.Attrs, Attr{Name: xmlName(a.Name), Value: a.Value})
			}
			cur.Children = append(cur.Children, n)
			cur = n
		case xml.EndElement:
			if cur != root {
				cur = cur.Parent
			}
		case xml.CharData:
			cur.Children = append(cur.Children, &Node{
				Type:   TextNode,
				text:   string(t),
				Parent: cur,
			})
		}
	}
	return root, nil
}

func xmlName(n xml.Name) string {
	if n.Space != "" {
		return n.Space + ":" + n.Local
	}
	return n.Local
}

// Render serializes the node back to storage format. Rendering the document
// root emits only its children.
func (n *Node) Render() string {
	var b strings.Builder
	if n.Tag == "#document" {
		for _, c := range n.Children {
			render(&b, c)
		}
	} else {
		render(&b, n)
	}
	return b.String()
}

func render(b *strings.Builder, n *Node) {
	if n.Type == TextNode {
		b.WriteString(escapeText(n.text))
		return
	}
	b.WriteByte('<')
	b.WriteString(n.Tag)
	for _, a := range n.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		b.WriteString(escapeAttr(a.Value))
		b.WriteByte('"')
	}
	if len(n.Children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	for _, c := range n.Children {
		render(b, c)
	}
	b.WriteString("</")
	b.WriteString(n.Tag)
	b.WriteByte('>')
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

func escapeText(s string) string { return textEscaper.Replace(s) }
func escapeAttr(s string) string { return attrEscaper.Replace(s) }

// FindAll returns all descendant elements with one of the given tags, in
// document order.
func (n *Node) FindAll(tags ...string) []*Node {
	var out []*Node
	n.walk(func(d *Node) {
		if d != n && d.Type == ElementNode && matches(d.Tag, tags) {
			out = append(out, d)
		}
	})
	return out
}

// FindFirst returns the first descendant element with the given tag, or nil.
func (n *Node) FindFirst(tag string) *Node {
	var found *Node
	n.walk(func(d *Node) {
		if found == nil && d != n && d.Type == ElementNode && d.Tag == tag {
			found = d
		}
	})
	return found
}

// Ancestor returns the nearest proper ancestor whose tag is one of the given
// tags, or nil.
func (n *Node) Ancestor(tags ...string) *Node {
	for a := n.Parent; a != nil; a = a.Parent {
		if a.Type == ElementNode && matches(a.Tag, tags) {
			return a
		}
	}
	return nil
}

// Attr returns the value of the named attribute, or "".
func (n *Node) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// Text returns the node's visible text with whitespace collapsed to single
// spaces.
func (n *Node) Text() string {
	var parts []string
	n.walk(func(d *Node) {
		if d.Type == TextNode {
			parts = append(parts, d.text)
		}
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// Clone returns a deep copy detached from the original tree.
func (n *Node) Clone() *Node {
	c := &Node{Type: n.Type, Tag: n.Tag, text: n.text}
	c.Attrs = append([]Attr(nil), n.Attrs...)
	for _, child := range n.Children {
		cc := child.Clone()
		cc.Parent = c
		c.Children = append(c.Children, cc)
	}
	return c
}

// Detach removes the node from its parent.
func (n *Node) Detach() {
	if n.Parent == nil {
		return
	}
	siblings := n.Parent.Children
	for i, s := range siblings {
		if s == n {
			n.Parent.Children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	n.Parent = nil
}

// InsertAfter inserts sibling immediately after n.
func (n *Node) InsertAfter(sibling *Node) {
	if n.Parent == nil {
		return
	}
	siblings := n.Parent.Children
	for i, s := range siblings {
		if s == n {
			sibling.Parent = n.Parent
			siblings = append(siblings, nil)
			copy(siblings[i+2:], siblings[i+1:])
			siblings[i+1] = sibling
			n.Parent.Children = siblings
			break
		}
	}
}

// ReplaceWith swaps n for repl in place.
func (n *Node) ReplaceWith(repl *Node) {
	if n.Parent == nil {
		return
	}
	for i, s := range n.Parent.Children {
		if s == n {
			repl.Parent = n.Parent
			n.Parent.Children[i] = repl
			n.Parent = nil
			return
		}
	}
}

// Root returns the topmost ancestor.
func (n *Node) Root() *Node {
	r := n
	for r.Parent != nil {
		r = r.Parent
	}
	return r
}

// ElementsBefore returns every element preceding n in document order over the
// whole document, nearest last. Walking the result in reverse visits nodes
// from the closest preceding one outwards.
func (n *Node) ElementsBefore() []*Node {
	var out []*Node
	done := false
	n.Root().walk(func(d *Node) {
		if d == n {
			done = true
		}
		if !done && d.Type == ElementNode && d.Tag != "#document" {
			out = append(out, d)
		}
	})
	return out
}

// RemoveAll detaches every descendant element with the given tag. Used to
// strip nested task lists from clones before extracting text.
func (n *Node) RemoveAll(tag string) {
	for _, d := range n.FindAll(tag) {
		d.Detach()
	}
}

func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.walk(fn)
	}
}

func matches(tag string, tags []string) bool {
	for _, t := range tags {
		if tag == t {
			return true
		}
	}
	return false
}
