package anchor

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/surlign/locator"
)

// Resolve tries to relocate d's text span in doc and, on success, wraps it
// in a marker element. Reports whether a marker for d is present afterwards.
// Failure means the text could not be found anywhere acceptable — an
// expected outcome on a mutated page, never a reason to abort a batch.
func Resolve(doc *html.Node, d *Descriptor) bool {
	_, ok := ResolveTier(doc, d)
	return ok
}

// ResolveTier is Resolve with the matching tier exposed, for callers that
// report per-descriptor outcomes.
//
// The call is atomic with respect to the tree: the winning span is fully
// located and validated before any mutation, so a failed resolution leaves
// the document untouched.
func ResolveTier(doc *html.Node, d *Descriptor) (Tier, bool) {
	if doc == nil || d == nil {
		return TierNone, false
	}

	// Re-invocation on an already-marked document is a success, not a
	// duplicate application.
	if FindMarker(doc, d.ID) != nil {
		return TierExisting, true
	}

	container := locator.DecodePath(doc, d.StructuralPath)
	body := Body(doc)

	// Search the located container first. A path that decodes onto the wrong
	// element (sibling-index drift) counts as "container not located" once
	// every strategy misses there, so the body-wide pass below still runs.
	var scopes []*html.Node
	if container != nil {
		scopes = append(scopes, container)
	}
	if container != body {
		scopes = append(scopes, body)
	}

	for i, scope := range scopes {
		sc := &searchContext{
			d:              d,
			flat:           flatten(scope),
			containerFound: i == 0 && container != nil,
		}
		for _, st := range strategies {
			span, ok := st.locate(sc)
			if !ok {
				continue
			}
			spans := sc.flat.spans(span.start, span.end)
			if spans == nil {
				continue
			}
			applyMarker(spans, d.ID, d.Color)
			return st.tier, true
		}
	}
	return TierNone, false
}

// Body returns doc's body element, or doc itself when no body exists.
// The body is the document-level coordinate space: flat offsets arriving
// from callers that see the page as one text stream are relative to it.
func Body(doc *html.Node) *html.Node {
	if b := findBody(doc); b != nil {
		return b
	}
	return doc
}

func findBody(doc *html.Node) *html.Node {
	var body *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return body
}
