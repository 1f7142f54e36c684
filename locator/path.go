// Package locator encodes and decodes structural paths for elements in a
// parsed HTML tree. A path is either a direct stable-identifier reference
// ("#main-content") or a root-to-element chain of (tag, same-tag sibling
// index) pairs ("html[1]/body[1]/div[2]/p[1]").
//
// Paths are coordinates, not queries: re-walking a path against an unchanged
// tree yields the same element, and any structural drift resolves to nil,
// never to a different "close enough" element.
package locator

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// EncodePath returns the structural path of n within its document.
// Text nodes are encoded via their parent element, since a text node has no
// independent path. Returns "" for nil, detached, or non-element input —
// an empty path signals "unanchorable" and must not be persisted.
func EncodePath(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		n = n.Parent
		if n == nil {
			return ""
		}
	}
	if n.Type != html.ElementNode {
		return ""
	}

	doc := documentOf(n)

	var segs []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if id := attr(cur, "id"); id != "" && doc != nil && countByID(doc, id) == 1 {
			// A page-unique id anchors the path here: everything above it is
			// immune to sibling-index drift from unrelated insertions.
			segs = append([]string{"#" + id}, segs...)
			return strings.Join(segs, "/")
		}
		segs = append([]string{fmt.Sprintf("%s[%d]", cur.Data, sameTagIndex(cur))}, segs...)
	}
	return strings.Join(segs, "/")
}

// DecodePath resolves a structural path against doc and returns the element,
// or nil if any segment fails to resolve. A nil result is the expected
// outcome after DOM mutation, not an error.
func DecodePath(doc *html.Node, path string) *html.Node {
	if doc == nil || path == "" {
		return nil
	}
	segs := strings.Split(path, "/")

	cur := doc
	if strings.HasPrefix(segs[0], "#") {
		cur = byID(doc, segs[0][1:])
		if cur == nil {
			return nil
		}
		segs = segs[1:]
	}

	for _, seg := range segs {
		tag, idx, ok := parseSegment(seg)
		if !ok {
			return nil
		}
		cur = nthChildByTag(cur, tag, idx)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// sameTagIndex returns the 1-based index of n among element siblings sharing
// its tag name.
func sameTagIndex(n *html.Node) int {
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == n.Data {
			idx++
		}
	}
	return idx
}

// parseSegment splits "div[3]" into ("div", 3).
func parseSegment(seg string) (tag string, idx int, ok bool) {
	open := strings.IndexByte(seg, '[')
	if open <= 0 || !strings.HasSuffix(seg, "]") {
		return "", 0, false
	}
	tag = seg[:open]
	n, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil || n < 1 {
		return "", 0, false
	}
	return tag, n, true
}

// nthChildByTag returns the idx-th (1-based) element child of parent with the
// given tag, or nil.
func nthChildByTag(parent *html.Node, tag string, idx int) *html.Node {
	seen := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			seen++
			if seen == idx {
				return c
			}
		}
	}
	return nil
}

// documentOf walks up to the root of n's tree.
func documentOf(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// byID returns the first element in doc with the given id attribute.
func byID(doc *html.Node, id string) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && attr(n, "id") == id {
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

// countByID counts elements carrying the given id. Duplicate-id documents
// exist in the wild; only a unique id may short-circuit a path.
func countByID(doc *html.Node, id string) int {
	count := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			count++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return count
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
