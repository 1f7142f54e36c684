// Package anchor captures text selections as durable position descriptors
// and re-resolves them against later, possibly mutated, versions of the same
// document. Resolution is a cascading fallback: exact structural-path and
// offset match first, then context-window string matching, then
// closest-occurrence search.
package anchor

// Context window sizes, in bytes of flattened text. Capture stores up to
// contextLen on each side of the highlight; the partial-context tier keeps
// only the partialLen bytes nearest the highlight.
const (
	contextLen = 50
	partialLen = 20
)

// Descriptor is the persisted position record for one highlight. The field
// set is the serialization contract: collaborators must round-trip it
// byte-for-byte. Offsets are half-open [StartOffset, EndOffset) byte offsets
// into the flattened text of the container named by StructuralPath, measured
// at capture time. Text, StructuralPath, offsets and contexts are immutable
// once written; Comment, Tags and Color may change at any time.
type Descriptor struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	StructuralPath string   `json:"structuralPath"`
	StartOffset    int      `json:"startOffset"`
	EndOffset      int      `json:"endOffset"`
	BeforeContext  string   `json:"beforeContext"`
	AfterContext   string   `json:"afterContext"`
	CreatedAt      int64    `json:"createdAt"` // epoch milliseconds
	Comment        string   `json:"comment,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Color          string   `json:"color,omitempty"`
}

// Tier identifies which resolution strategy matched a descriptor.
type Tier string

const (
	// TierExisting means a marker with this id was already present.
	TierExisting Tier = "existing"
	// TierDirect means the structural path and exact offsets matched.
	TierDirect Tier = "direct"
	// TierContext means the full before+text+after window matched.
	TierContext Tier = "context"
	// TierPartialContext means the trimmed 20-byte context window matched.
	TierPartialContext Tier = "partial_context"
	// TierClosest means the occurrence of Text nearest the original offset
	// matched.
	TierClosest Tier = "closest"
	// TierNone means every strategy failed.
	TierNone Tier = "none"
)
