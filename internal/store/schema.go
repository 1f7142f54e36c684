package store

// Schema is the complete surlign schema. Descriptors are stored one row per
// highlight with the page key denormalized; position preserves capture order
// within a page.
const Schema = `
CREATE TABLE IF NOT EXISTS highlights (
    id              TEXT PRIMARY KEY,
    page_key        TEXT NOT NULL,
    position        INTEGER NOT NULL,
    text            TEXT NOT NULL,
    structural_path TEXT NOT NULL,
    start_offset    INTEGER NOT NULL,
    end_offset      INTEGER NOT NULL,
    before_context  TEXT NOT NULL DEFAULT '',
    after_context   TEXT NOT NULL DEFAULT '',
    comment         TEXT NOT NULL DEFAULT '',
    tags_json       TEXT NOT NULL DEFAULT '[]',
    color           TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_highlights_page ON highlights(page_key, position);
CREATE INDEX IF NOT EXISTS idx_highlights_updated ON highlights(updated_at);
`
