// Package store is the SQLite data access layer for surlign. It implements
// the highlighter.Store contract: an ordered set of highlight rows per
// normalized page key, replaced wholesale on write.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/surlign/dbopen"
	"github.com/hazyhaar/surlign/highlighter"
)

// Store wraps the surlign database.
type Store struct {
	DB *sql.DB
}

// New creates a Store from an already-opened database connection.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Open opens (or creates) the database at path with the surlign schema and
// the standard pragmas applied.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithSchema(Schema), dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Store{DB: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Get returns the page's highlights in capture order. Unknown keys return an
// empty slice, not an error.
func (s *Store) Get(ctx context.Context, pageKey string) ([]*highlighter.Highlight, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, page_key, text, structural_path, start_offset, end_offset,
		before_context, after_context, comment, tags_json, color, created_at, updated_at
		FROM highlights WHERE page_key = ? ORDER BY position`, pageKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*highlighter.Highlight
	for rows.Next() {
		h, err := scanHighlight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Set replaces the page's highlight set atomically, preserving slice order
// as the stored position.
func (s *Store) Set(ctx context.Context, pageKey string, hs []*highlighter.Highlight) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM highlights WHERE page_key = ?`, pageKey); err != nil {
			return err
		}
		for i, h := range hs {
			tags, err := json.Marshal(h.Tags)
			if err != nil {
				return fmt.Errorf("marshal tags for %s: %w", h.ID, err)
			}
			if h.Tags == nil {
				tags = []byte("[]")
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO highlights (id, page_key, position, text, structural_path,
				start_offset, end_offset, before_context, after_context, comment,
				tags_json, color, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				h.ID, pageKey, i, h.Text, h.StructuralPath,
				h.StartOffset, h.EndOffset, h.BeforeContext, h.AfterContext, h.Comment,
				string(tags), h.Color, h.CreatedAt, h.UpdatedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes every highlight of the page.
func (s *Store) Delete(ctx context.Context, pageKey string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM highlights WHERE page_key = ?`, pageKey)
	return err
}

// ListKeys returns the distinct page keys with at least one highlight,
// optionally restricted to a prefix, ordered lexically.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT page_key FROM highlights
		WHERE page_key LIKE ? || '%' ORDER BY page_key`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func scanHighlight(rows *sql.Rows) (*highlighter.Highlight, error) {
	var h highlighter.Highlight
	var tagsJSON string
	err := rows.Scan(&h.ID, &h.PageKey, &h.Text, &h.StructuralPath,
		&h.StartOffset, &h.EndOffset, &h.BeforeContext, &h.AfterContext,
		&h.Comment, &tagsJSON, &h.Color, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &h.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for %s: %w", h.ID, err)
	}
	if len(h.Tags) == 0 {
		h.Tags = nil
	}
	return &h, nil
}
