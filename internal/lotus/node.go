package lotus

import (
	"strings"

	"golang.org/x/net/html"
)

// Node is one node of a parsed document: either a TagNode or a TextNode.
// Comments, doctypes and other node kinds are not represented.
type Node interface {
	// HTML returns the underlying parser node.
	HTML() *html.Node
}

// TagNode is an element with a name, attributes and children.
type TagNode struct {
	n *html.Node
}

// TextNode is a run of character data.
type TextNode struct {
	n *html.Node
}

// Wrap returns the Node variant for n, or nil when n is neither an element nor text.
func Wrap(n *html.Node) Node {
	if n == nil {
		return nil
	}
	switch n.Type {
	case html.ElementNode:
		return TagNode{n: n}
	case html.TextNode:
		return TextNode{n: n}
	default:
		return nil
	}
}

func (t TagNode) HTML() *html.Node { return t.n }

// Name returns the lowercase tag name.
func (t TagNode) Name() string { return t.n.Data }

// Attr returns the value of the attribute key and whether it is present.
func (t TagNode) Attr(key string) (string, bool) {
	for _, a := range t.n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr replaces the value of an existing attribute, or appends it.
func (t TagNode) SetAttr(key, val string) {
	for i, a := range t.n.Attr {
		if a.Namespace == "" && a.Key == key {
			t.n.Attr[i].Val = val
			return
		}
	}
	t.n.Attr = append(t.n.Attr, html.Attribute{Key: key, Val: val})
}

// Children returns the element and text children in document order.
func (t TagNode) Children() []Node {
	var out []Node
	for c := t.n.FirstChild; c != nil; c = c.NextSibling {
		if w := Wrap(c); w != nil {
			out = append(out, w)
		}
	}
	return out
}

// Text returns the concatenated text of all descendants.
func (t TagNode) Text() string {
	var b strings.Builder
	collectText(t.n, &b)
	return b.String()
}

func (t TextNode) HTML() *html.Node { return t.n }

// Text returns the character data.
func (t TextNode) Text() string { return t.n.Data }

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// Render serializes node back to HTML.
func Render(node Node) (string, error) {
	var b strings.Builder
	if err := html.Render(&b, node.HTML()); err != nil {
		return "", err
	}
	return b.String(), nil
}
