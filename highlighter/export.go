package highlighter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"golang.org/x/net/html"

	"github.com/hazyhaar/surlign/locator"
	"github.com/hazyhaar/surlign/pagekey"
)

// ExportMarkdown renders a page's highlights as a markdown document: one
// blockquote per highlight with its comment and tags. When doc is non-nil the
// quote is the containing element converted to markdown, which preserves
// links and inline formatting around the highlighted text; without a document
// the stored plain text is quoted instead.
func (s *Service) ExportMarkdown(ctx context.Context, pageURL string, doc *html.Node) (string, error) {
	key, err := pagekey.Normalize(pageURL)
	if err != nil {
		return "", err
	}
	set, err := s.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load page set: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Highlights\n\n%s\n", key)
	for _, h := range set {
		b.WriteString("\n")
		b.WriteString(blockquote(s.quoteFor(h, doc, key)))
		b.WriteString("\n")
		if h.Comment != "" {
			fmt.Fprintf(&b, "\n%s\n", h.Comment)
		}
		if len(h.Tags) > 0 {
			b.WriteString("\n")
			for i, tag := range h.Tags {
				if i > 0 {
					b.WriteString(" ")
				}
				fmt.Fprintf(&b, "`%s`", tag)
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "\n<sub>%s</sub>\n", time.UnixMilli(h.CreatedAt).UTC().Format("2006-01-02"))
	}
	return b.String(), nil
}

// quoteFor picks the richest quote available: containing-element markdown
// when the document resolves, stored text otherwise.
func (s *Service) quoteFor(h *Highlight, doc *html.Node, sourceURL string) string {
	if doc == nil {
		return h.Text
	}
	container := locator.DecodePath(doc, h.StructuralPath)
	if container == nil {
		return h.Text
	}
	var html_ strings.Builder
	if err := html.Render(&html_, container); err != nil {
		return h.Text
	}
	md, err := s.md.ConvertString(html_.String(), converter.WithDomain(sourceURL))
	if err != nil || strings.TrimSpace(md) == "" {
		return h.Text
	}
	// Only quote the container when the highlighted text survived into the
	// markdown; a drifted container would misattribute the quote.
	if !strings.Contains(md, anchorText(h)) {
		return h.Text
	}
	return strings.TrimSpace(md)
}

func anchorText(h *Highlight) string {
	return strings.TrimSpace(h.Text)
}

func blockquote(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}
