package anchor

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Marker attribute names. The marker element is a <mark> carrying the
// descriptor id and color, so it renders as a highlight with zero CSS and
// can be found again for idempotency checks and removal.
const (
	AttrID    = "data-surlign-id"
	AttrColor = "data-surlign-color"
)

// ApplyMarker wraps the flat byte range [start, end) of scope's flattened
// text in a marker element carrying id and color. Reports false if the range
// is empty or out of bounds. Ranges crossing element boundaries are handled
// by the extract-and-reinsert fallback and always succeed for a well-formed
// range.
func ApplyMarker(scope *html.Node, start, end int, id, color string) bool {
	if scope == nil {
		return false
	}
	spans := flatten(scope).spans(start, end)
	if spans == nil {
		return false
	}
	applyMarker(spans, id, color)
	return true
}

// applyMarker wraps the already-located spans in a single marker element.
// Single-text-node ranges are wrapped in place; ranges crossing node
// boundaries go through extractAndWrap.
func applyMarker(spans []nodeSpan, id, color string) {
	if len(spans) == 1 {
		wrapInPlace(spans[0], id, color)
		return
	}
	extractAndWrap(spans, id, color)
}

// wrapInPlace splits one text node around the span and wraps the middle
// piece in the marker.
func wrapInPlace(sp nodeSpan, id, color string) {
	n := sp.node
	parent := n.Parent
	data := n.Data

	if sp.start > 0 {
		parent.InsertBefore(textNode(data[:sp.start]), n)
	}
	mark := markerNode(id, color)
	mark.AppendChild(textNode(data[sp.start:sp.end]))
	parent.InsertBefore(mark, n)
	if sp.end < len(data) {
		parent.InsertBefore(textNode(data[sp.end:]), n)
	}
	parent.RemoveChild(n)
}

// extractAndWrap handles ranges whose boundaries sit in different text
// nodes, possibly at different depths. It splits the boundary branches up to
// the range's common ancestor (cloning partially-covered elements), which
// turns the range into a contiguous run of sibling nodes; that run is then
// moved into a single marker element reinserted at the same position.
func extractAndWrap(spans []nodeSpan, id, color string) {
	first, last := spans[0], spans[len(spans)-1]
	root := commonAncestor(first.node, last.node)

	startChild := splitStartBranch(first.node, first.start, root)
	endChild := splitEndBranch(last.node, last.end, root)

	mark := markerNode(id, color)
	root.InsertBefore(mark, startChild)
	for c := startChild; c != nil; {
		next := c.NextSibling
		root.RemoveChild(c)
		mark.AppendChild(c)
		if c == endChild {
			break
		}
		c = next
	}
}

// splitStartBranch splits n at off and hoists the range side up to a direct
// child of root, cloning each partially-covered ancestor so that everything
// before the boundary stays in the original element.
func splitStartBranch(n *html.Node, off int, root *html.Node) *html.Node {
	cur := n
	if off > 0 {
		rest := textNode(n.Data[off:])
		n.Data = n.Data[:off]
		n.Parent.InsertBefore(rest, n.NextSibling)
		cur = rest
	}
	for cur.Parent != root {
		p := cur.Parent
		if cur.PrevSibling == nil {
			cur = p
			continue
		}
		clone := shallowClone(p)
		for c := cur; c != nil; {
			next := c.NextSibling
			p.RemoveChild(c)
			clone.AppendChild(c)
			c = next
		}
		p.Parent.InsertBefore(clone, p.NextSibling)
		cur = clone
	}
	return cur
}

// splitEndBranch is the mirror image: splits n at off keeping the range side
// on the left, hoisting with preceding siblings into clones inserted before
// the original.
func splitEndBranch(n *html.Node, off int, root *html.Node) *html.Node {
	cur := n
	if off < len(n.Data) {
		rest := textNode(n.Data[off:])
		n.Data = n.Data[:off]
		n.Parent.InsertBefore(rest, n.NextSibling)
	}
	for cur.Parent != root {
		p := cur.Parent
		if cur.NextSibling == nil {
			cur = p
			continue
		}
		clone := shallowClone(p)
		stop := cur.NextSibling
		for c := p.FirstChild; c != nil && c != stop; {
			next := c.NextSibling
			p.RemoveChild(c)
			clone.AppendChild(c)
			c = next
		}
		p.Parent.InsertBefore(clone, p)
		cur = clone
	}
	return cur
}

// FindMarker returns the marker element carrying the given descriptor id,
// or nil.
func FindMarker(doc *html.Node, id string) *html.Node {
	if doc == nil || id == "" {
		return nil
	}
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && markerAttr(n, AttrID) == id {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// RemoveMarker unwraps the marker with the given id: the marker element is
// replaced by its own children and adjacent text nodes are merged, restoring
// the container's flattened text to its pre-marked state exactly. Reports
// whether a marker was found.
func RemoveMarker(doc *html.Node, id string) bool {
	mark := FindMarker(doc, id)
	if mark == nil {
		return false
	}
	parent := mark.Parent
	for c := mark.FirstChild; c != nil; c = mark.FirstChild {
		mark.RemoveChild(c)
		parent.InsertBefore(c, mark)
	}
	parent.RemoveChild(mark)
	mergeTextNodes(parent)
	return true
}

// mergeTextNodes coalesces consecutive text node children of parent.
func mergeTextNodes(parent *html.Node) {
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode && next != nil && next.Type == html.TextNode {
			c.Data += next.Data
			parent.RemoveChild(next)
			continue // retry same node against its new neighbor
		}
		c = next
	}
}

func markerNode(id, color string) *html.Node {
	attrs := []html.Attribute{{Key: AttrID, Val: id}}
	if color != "" {
		attrs = append(attrs, html.Attribute{Key: AttrColor, Val: color})
	}
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Mark,
		Data:     "mark",
		Attr:     attrs,
	}
}

func textNode(data string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: data}
}

func shallowClone(n *html.Node) *html.Node {
	return &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
}

func markerAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
