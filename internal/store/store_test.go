package store

import (
	"context"
	"testing"

	"github.com/hazyhaar/surlign/anchor"
	"github.com/hazyhaar/surlign/dbopen"
	"github.com/hazyhaar/surlign/highlighter"
	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return New(db)
}

func mkHighlight(id, pageKey string, pos int) *highlighter.Highlight {
	return &highlighter.Highlight{
		Descriptor: anchor.Descriptor{
			ID:             id,
			Text:           "quick brown fox",
			StructuralPath: "body/p[1]",
			StartOffset:    10 + pos,
			EndOffset:      25 + pos,
			BeforeContext:  "The ",
			AfterContext:   " jumps over",
			CreatedAt:      1700000000000,
			Tags:           []string{"animals"},
			Color:          "yellow",
		},
		PageKey:   pageKey,
		UpdatedAt: 1700000000000,
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	want := []*highlighter.Highlight{
		mkHighlight("hl_a", "https://example.com/post", 0),
		mkHighlight("hl_b", "https://example.com/post", 1),
	}
	want[1].Comment = "second one"

	if err := s.Set(ctx, "https://example.com/post", want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "https://example.com/post")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d highlights, want 2", len(got))
	}
	if got[0].ID != "hl_a" || got[1].ID != "hl_b" {
		t.Errorf("order not preserved: %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].Comment != "second one" {
		t.Errorf("comment = %q, want %q", got[1].Comment, "second one")
	}
	if got[0].StartOffset != 10 || got[0].EndOffset != 25 {
		t.Errorf("offsets = [%d,%d), want [10,25)", got[0].StartOffset, got[0].EndOffset)
	}
	if len(got[0].Tags) != 1 || got[0].Tags[0] != "animals" {
		t.Errorf("tags = %v, want [animals]", got[0].Tags)
	}
}

func TestSetReplacesExisting(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	key := "https://example.com/page"

	if err := s.Set(ctx, key, []*highlighter.Highlight{
		mkHighlight("hl_old1", key, 0),
		mkHighlight("hl_old2", key, 1),
	}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, key, []*highlighter.Highlight{mkHighlight("hl_new", key, 0)}); err != nil {
		t.Fatalf("Set replace: %v", err)
	}

	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 || got[0].ID != "hl_new" {
		t.Fatalf("got %v, want single hl_new", got)
	}
}

func TestGetUnknownKeyReturnsEmpty(t *testing.T) {
	s := testStore(t)
	got, err := s.Get(context.Background(), "https://nowhere.example")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d highlights for unknown key, want 0", len(got))
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	key := "https://example.com/gone"

	if err := s.Set(ctx, key, []*highlighter.Highlight{mkHighlight("hl_x", key, 0)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d highlights after delete, want 0", len(got))
	}
}

func TestListKeysWithPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	pages := []string{
		"https://a.example/one",
		"https://a.example/two",
		"https://b.example/three",
	}
	for i, key := range pages {
		if err := s.Set(ctx, key, []*highlighter.Highlight{mkHighlight("hl_"+key, key, i)}); err != nil {
			t.Fatalf("Set %s: %v", key, err)
		}
	}

	all, err := s.ListKeys(ctx, "")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d keys, want 3", len(all))
	}

	aOnly, err := s.ListKeys(ctx, "https://a.example/")
	if err != nil {
		t.Fatalf("ListKeys prefix: %v", err)
	}
	if len(aOnly) != 2 {
		t.Fatalf("got %d keys for prefix, want 2: %v", len(aOnly), aOnly)
	}
	if aOnly[0] != "https://a.example/one" || aOnly[1] != "https://a.example/two" {
		t.Errorf("keys not sorted: %v", aOnly)
	}
}

func TestEmptyTagsSurviveRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	key := "https://example.com/notags"

	h := mkHighlight("hl_nt", key, 0)
	h.Tags = nil
	if err := s.Set(ctx, key, []*highlighter.Highlight{h}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got[0].Tags != nil {
		t.Errorf("tags = %v, want nil", got[0].Tags)
	}
}
