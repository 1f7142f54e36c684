package anchor

import (
	"strings"

	"golang.org/x/net/html"
)

// flatText is the flattened text of a container: the concatenation, in
// document order, of every descendant text node's data, plus an index mapping
// flat byte offsets back to the contributing text nodes.
type flatText struct {
	text string
	segs []segment
}

// segment records where one text node's data starts in the flat string.
type segment struct {
	node  *html.Node
	start int
}

// flatten builds the flat text coordinate space for container.
func flatten(container *html.Node) *flatText {
	f := &flatText{}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			f.segs = append(f.segs, segment{node: n, start: b.Len()})
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(container)
	f.text = b.String()
	return f
}

// nodeSpan is a slice of one text node covered by a flat range.
type nodeSpan struct {
	node       *html.Node
	start, end int // intra-node byte offsets, half-open
}

// spans maps the flat range [start, end) onto the text nodes it covers.
// Returns nil if the range is empty or out of bounds.
func (f *flatText) spans(start, end int) []nodeSpan {
	if start < 0 || end > len(f.text) || start >= end {
		return nil
	}
	var out []nodeSpan
	for i, seg := range f.segs {
		segEnd := len(f.text)
		if i+1 < len(f.segs) {
			segEnd = f.segs[i+1].start
		}
		if segEnd <= start || seg.start >= end {
			continue
		}
		s, e := 0, segEnd-seg.start
		if start > seg.start {
			s = start - seg.start
		}
		if end < segEnd {
			e = end - seg.start
		}
		if s < e {
			out = append(out, nodeSpan{node: seg.node, start: s, end: e})
		}
	}
	return out
}

// offsetOf returns the flat offset of byte `off` within text node n, or -1
// if n does not contribute to this flat text.
func (f *flatText) offsetOf(n *html.Node, off int) int {
	for _, seg := range f.segs {
		if seg.node == n {
			return seg.start + off
		}
	}
	return -1
}
