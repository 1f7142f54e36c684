package anchor

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/surlign/locator"
)

// Selection is a live text selection inside a parsed document: a start and
// end text node with intra-node byte offsets, half-open on the end side.
type Selection struct {
	StartNode   *html.Node
	StartOffset int
	EndNode     *html.Node
	EndOffset   int
}

// SelectionFromOffsets builds a Selection from flat byte offsets within
// scope's flattened text. This is how callers that see the page as one text
// stream (HTTP clients sending character positions) address a selection.
// Returns nil if the range is empty or out of bounds.
func SelectionFromOffsets(scope *html.Node, start, end int) *Selection {
	if scope == nil {
		return nil
	}
	spans := flatten(scope).spans(start, end)
	if len(spans) == 0 {
		return nil
	}
	first, last := spans[0], spans[len(spans)-1]
	return &Selection{
		StartNode:   first.node,
		StartOffset: first.start,
		EndNode:     last.node,
		EndOffset:   last.end,
	}
}

// CaptureSelection converts a live selection into a position descriptor.
// Returns nil for empty, collapsed, or whitespace-only selections — an empty
// selection is a normal no-op, not an error. The caller attaches ID,
// CreatedAt and user metadata.
//
// Contexts are derived from the selection's actual boundary offsets, never
// from a text search: with duplicated text earlier in the container, a
// first-occurrence search would capture the wrong neighborhood.
func CaptureSelection(sel *Selection) *Descriptor {
	if sel == nil || sel.StartNode == nil || sel.EndNode == nil {
		return nil
	}
	if sel.StartNode.Type != html.TextNode || sel.EndNode.Type != html.TextNode {
		return nil
	}

	container := containerOf(sel)
	if container == nil {
		return nil
	}
	path := locator.EncodePath(container)
	if path == "" {
		return nil
	}

	flat := flatten(container)
	start := flat.offsetOf(sel.StartNode, sel.StartOffset)
	end := flat.offsetOf(sel.EndNode, sel.EndOffset)
	if start < 0 || end < 0 || start >= end || end > len(flat.text) {
		return nil
	}

	// Trim surrounding whitespace, keeping offsets pointing at the trimmed
	// span so the stored text equals the flat substring exactly.
	raw := flat.text[start:end]
	trimmedLeft := strings.TrimLeft(raw, " \t\r\n")
	start += len(raw) - len(trimmedLeft)
	trimmed := strings.TrimRight(trimmedLeft, " \t\r\n")
	end = start + len(trimmed)
	if start >= end {
		return nil
	}

	beforeStart := start - contextLen
	if beforeStart < 0 {
		beforeStart = 0
	}
	afterEnd := end + contextLen
	if afterEnd > len(flat.text) {
		afterEnd = len(flat.text)
	}

	return &Descriptor{
		Text:           trimmed,
		StructuralPath: path,
		StartOffset:    start,
		EndOffset:      end,
		BeforeContext:  flat.text[beforeStart:start],
		AfterContext:   flat.text[end:afterEnd],
	}
}

// containerOf returns the selection's common ancestor element.
func containerOf(sel *Selection) *html.Node {
	var common *html.Node
	if sel.StartNode == sel.EndNode {
		common = sel.StartNode.Parent
	} else {
		common = commonAncestor(sel.StartNode, sel.EndNode)
	}
	if common != nil && common.Type == html.TextNode {
		common = common.Parent
	}
	if common == nil || common.Type != html.ElementNode {
		return nil
	}
	return common
}

// commonAncestor returns the nearest node that is an ancestor of both a and b.
func commonAncestor(a, b *html.Node) *html.Node {
	seen := map[*html.Node]bool{}
	for n := a.Parent; n != nil; n = n.Parent {
		seen[n] = true
	}
	for n := b.Parent; n != nil; n = n.Parent {
		if seen[n] {
			return n
		}
	}
	return nil
}
