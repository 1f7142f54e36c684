// Package highlighter is the service layer over the anchor engine: it owns
// persistence keying, id and timestamp assignment, metadata hygiene, batch
// resolution, and the merge rule for remote sync. The anchor package stays a
// pure function of (descriptor, document); everything stateful lives here.
package highlighter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/surlign/anchor"
	"github.com/hazyhaar/surlign/idgen"
	"github.com/hazyhaar/surlign/pagekey"
)

// Metadata is the user-supplied, mutable part of a highlight.
type Metadata struct {
	Comment string   `json:"comment,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Color   string   `json:"color,omitempty"`
}

// Highlight is a stored descriptor plus its ownership and sync bookkeeping.
type Highlight struct {
	anchor.Descriptor
	PageKey   string `json:"pageKey"`
	UpdatedAt int64  `json:"updatedAt"` // epoch milliseconds, drives last-write-wins
}

// Store is the persistence collaborator: an ordered descriptor list per
// normalized page key. Get returns nil (not an error) for an unknown key.
type Store interface {
	Get(ctx context.Context, pageKey string) ([]*Highlight, error)
	Set(ctx context.Context, pageKey string, hs []*Highlight) error
	Delete(ctx context.Context, pageKey string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// ResolveResult is one descriptor's outcome in a batch resolution.
type ResolveResult struct {
	ID   string      `json:"id"`
	Tier anchor.Tier `json:"tier"`
	OK   bool        `json:"ok"`
}

// Report summarises a batch resolution over one page.
type Report struct {
	PageKey  string          `json:"page_key"`
	Total    int             `json:"total"`
	Resolved int             `json:"resolved"`
	Failed   int             `json:"failed"`
	Results  []ResolveResult `json:"results"`
}

// Service orchestrates capture, resolution, metadata editing, and export.
type Service struct {
	store    Store
	logger   *slog.Logger
	newID    idgen.Generator
	now      func() int64
	sanitize *bluemonday.Policy
	md       *converter.Converter
	cfg      *Config
}

// New creates a Service. A nil logger falls back to slog.Default().
func New(cfg *Config, store Store, logger *slog.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		logger:   logger,
		newID:    idgen.Highlight,
		now:      func() int64 { return time.Now().UnixMilli() },
		sanitize: bluemonday.StrictPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		cfg: cfg,
	}
}

// Capture anchors the flat byte range [start, end) of doc's body text as a
// new highlight for pageURL and persists it. Returns ErrEmptySelection when
// the range trims to nothing — a normal no-op for the caller to swallow.
func (s *Service) Capture(ctx context.Context, pageURL string, doc *html.Node, start, end int, meta Metadata) (*Highlight, error) {
	key, err := pagekey.Normalize(pageURL)
	if err != nil {
		return nil, err
	}

	sel := anchor.SelectionFromOffsets(anchor.Body(doc), start, end)
	d := anchor.CaptureSelection(sel)
	if d == nil {
		return nil, ErrEmptySelection
	}

	meta, err = s.cleanMetadata(meta)
	if err != nil {
		return nil, err
	}

	now := s.now()
	d.ID = s.newID()
	d.CreatedAt = now
	d.Comment = meta.Comment
	d.Tags = meta.Tags
	d.Color = meta.Color
	if d.Color == "" {
		d.Color = s.cfg.Marker.DefaultColor
	}

	h := &Highlight{Descriptor: *d, PageKey: key, UpdatedAt: now}

	set, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load page set: %w", err)
	}
	if err := s.store.Set(ctx, key, append(set, h)); err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}

	s.logger.Info("highlight captured", "id", h.ID, "page", key, "len", len(h.Text))
	return h, nil
}

// List returns the page's highlights in insertion order.
func (s *Service) List(ctx context.Context, pageURL string) ([]*Highlight, error) {
	key, err := pagekey.Normalize(pageURL)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, key)
}

// ResolveAll fetches the page's highlights and resolves each one against doc,
// sequentially and independently: one descriptor's failure never stops the
// batch. Failures are logged at warn and counted in the report.
func (s *Service) ResolveAll(ctx context.Context, pageURL string, doc *html.Node) (*Report, error) {
	key, err := pagekey.Normalize(pageURL)
	if err != nil {
		return nil, err
	}
	set, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load page set: %w", err)
	}

	report := &Report{PageKey: key, Total: len(set)}
	for _, h := range set {
		tier, ok := anchor.ResolveTier(doc, &h.Descriptor)
		report.Results = append(report.Results, ResolveResult{ID: h.ID, Tier: tier, OK: ok})
		if ok {
			report.Resolved++
		} else {
			report.Failed++
			s.logger.Warn("highlight did not resolve", "id", h.ID, "page", key)
		}
	}
	return report, nil
}

// UpdateMetadata mutates a highlight's comment, tags, and color. The
// structural fields are immutable after capture and are never touched here.
func (s *Service) UpdateMetadata(ctx context.Context, pageURL, id string, meta Metadata) (*Highlight, error) {
	key, err := pagekey.Normalize(pageURL)
	if err != nil {
		return nil, err
	}
	meta, err = s.cleanMetadata(meta)
	if err != nil {
		return nil, err
	}

	set, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load page set: %w", err)
	}
	for _, h := range set {
		if h.ID != id {
			continue
		}
		h.Comment = meta.Comment
		h.Tags = meta.Tags
		if meta.Color != "" {
			h.Color = meta.Color
		}
		h.UpdatedAt = s.now()
		if err := s.store.Set(ctx, key, set); err != nil {
			return nil, fmt.Errorf("persist: %w", err)
		}
		return h, nil
	}
	return nil, ErrNotFound
}

// Remove unmarks the highlight in doc (when a document is supplied) and
// deletes its descriptor from the page's set.
func (s *Service) Remove(ctx context.Context, pageURL, id string, doc *html.Node) error {
	key, err := pagekey.Normalize(pageURL)
	if err != nil {
		return err
	}
	if doc != nil {
		anchor.RemoveMarker(doc, id)
	}

	set, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load page set: %w", err)
	}
	kept := set[:0]
	for _, h := range set {
		if h.ID != id {
			kept = append(kept, h)
		}
	}
	if len(kept) == len(set) {
		return ErrNotFound
	}
	if len(kept) == 0 {
		return s.store.Delete(ctx, key)
	}
	return s.store.Set(ctx, key, kept)
}

// Pages lists known page keys, optionally filtered by prefix.
func (s *Service) Pages(ctx context.Context, prefix string) ([]string, error) {
	return s.store.ListKeys(ctx, prefix)
}

// ChangedSince returns every highlight updated strictly after the given
// epoch-millisecond timestamp, across all pages. This feeds the mirror pull
// endpoint.
func (s *Service) ChangedSince(ctx context.Context, since int64) ([]*Highlight, error) {
	keys, err := s.store.ListKeys(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []*Highlight
	for _, key := range keys {
		set, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, h := range set {
			if h.UpdatedAt > since {
				out = append(out, h)
			}
		}
	}
	return out, nil
}

// MergeRemote applies a batch of remote highlights under last-write-wins:
// an incoming highlight replaces the local copy of the same id only when its
// UpdatedAt is strictly greater; unknown ids are appended to their page's
// set. Returns the number of highlights applied.
func (s *Service) MergeRemote(ctx context.Context, incoming []*Highlight) (int, error) {
	applied := 0
	for _, in := range incoming {
		if in.ID == "" || in.PageKey == "" {
			s.logger.Warn("mirror: skipping highlight without id or page key")
			continue
		}
		set, err := s.store.Get(ctx, in.PageKey)
		if err != nil {
			return applied, fmt.Errorf("load page set: %w", err)
		}
		replaced := false
		for i, h := range set {
			if h.ID != in.ID {
				continue
			}
			if in.UpdatedAt > h.UpdatedAt {
				set[i] = in
				applied++
			}
			replaced = true
			break
		}
		if !replaced {
			set = append(set, in)
			applied++
		}
		if err := s.store.Set(ctx, in.PageKey, set); err != nil {
			return applied, fmt.Errorf("persist: %w", err)
		}
	}
	return applied, nil
}

// cleanMetadata strips markup from free-text fields and validates the color.
// Comments and tags come from humans and end up in HTML exports; they are
// sanitized on the way in, not trusted on the way out.
func (s *Service) cleanMetadata(meta Metadata) (Metadata, error) {
	meta.Comment = strings.TrimSpace(s.sanitize.Sanitize(meta.Comment))
	tags := meta.Tags[:0]
	for _, tag := range meta.Tags {
		tag = strings.TrimSpace(s.sanitize.Sanitize(tag))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	meta.Tags = tags
	if !colorOK(meta.Color) {
		return meta, fmt.Errorf("%w: bad color %q", ErrInvalidInput, meta.Color)
	}
	return meta, nil
}

// colorOK accepts CSS-safe color tokens: named colors and hex values.
func colorOK(c string) bool {
	if c == "" {
		return true
	}
	if len(c) > 32 {
		return false
	}
	for i, r := range c {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '#' && i == 0:
		default:
			return false
		}
	}
	return true
}
