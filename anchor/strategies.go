package anchor

import "strings"

// matchSpan is a candidate highlight position in flat-text coordinates.
type matchSpan struct {
	start, end int
}

// searchContext carries everything a strategy needs to locate a descriptor.
type searchContext struct {
	d              *Descriptor
	flat           *flatText
	containerFound bool // true when the structural path resolved
}

// strategy is one tier of the resolution cascade: a pure function from
// search context to an optional match span. Strategies never mutate the tree.
type strategy struct {
	tier   Tier
	locate func(sc *searchContext) (matchSpan, bool)
}

// strategies is the cascade in priority order. The driver in Resolve tries
// each in sequence and stops at the first hit.
var strategies = []strategy{
	{TierDirect, locateDirect},
	{TierContext, locateContext},
	{TierPartialContext, locatePartialContext},
	{TierClosest, locateClosest},
}

// locateDirect verifies the captured offsets verbatim: container resolved,
// offsets in range, and the flat substring equal to the captured text.
func locateDirect(sc *searchContext) (matchSpan, bool) {
	if !sc.containerFound {
		return matchSpan{}, false
	}
	d := sc.d
	if d.StartOffset < 0 || d.EndOffset > len(sc.flat.text) || d.StartOffset >= d.EndOffset {
		return matchSpan{}, false
	}
	if sc.flat.text[d.StartOffset:d.EndOffset] != d.Text {
		return matchSpan{}, false
	}
	return matchSpan{start: d.StartOffset, end: d.EndOffset}, true
}

// locateContext searches for the literal before+text+after concatenation.
func locateContext(sc *searchContext) (matchSpan, bool) {
	return locateByWindow(sc, sc.d.BeforeContext, sc.d.AfterContext)
}

// locatePartialContext searches with only the bytes nearest the highlight:
// the last partialLen of BeforeContext and the first partialLen of
// AfterContext. Tolerates edits further out in the neighborhood.
func locatePartialContext(sc *searchContext) (matchSpan, bool) {
	before := sc.d.BeforeContext
	if len(before) > partialLen {
		before = before[len(before)-partialLen:]
	}
	after := sc.d.AfterContext
	if len(after) > partialLen {
		after = after[:partialLen]
	}
	return locateByWindow(sc, before, after)
}

func locateByWindow(sc *searchContext, before, after string) (matchSpan, bool) {
	d := sc.d
	if d.Text == "" {
		return matchSpan{}, false
	}
	idx := strings.Index(sc.flat.text, before+d.Text+after)
	if idx < 0 {
		return matchSpan{}, false
	}
	start := idx + len(before)
	return matchSpan{start: start, end: start + len(d.Text)}, true
}

// locateClosest finds every occurrence of the bare text and picks the one
// whose start offset is numerically closest to the original. Ties go to the
// lower offset: a later occurrence replaces the best only when strictly
// closer. Page edits tend to be local, so small drift beats far-away
// duplicates.
func locateClosest(sc *searchContext) (matchSpan, bool) {
	d := sc.d
	if d.Text == "" {
		return matchSpan{}, false
	}

	best := -1
	bestDiff := 0
	for from := 0; ; {
		i := strings.Index(sc.flat.text[from:], d.Text)
		if i < 0 {
			break
		}
		off := from + i
		diff := off - d.StartOffset
		if diff < 0 {
			diff = -diff
		}
		if best < 0 || diff < bestDiff {
			best = off
			bestDiff = diff
		}
		from = off + 1
	}
	if best < 0 {
		return matchSpan{}, false
	}
	return matchSpan{start: best, end: best + len(d.Text)}, true
}
