package mirror

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/surlign/anchor"
	"github.com/hazyhaar/surlign/highlighter"
)

func mkHighlight(id string, updatedAt int64) *highlighter.Highlight {
	return &highlighter.Highlight{
		Descriptor: anchor.Descriptor{
			ID:             id,
			Text:           "marked text",
			StructuralPath: "body/p[1]",
			EndOffset:      11,
			CreatedAt:      updatedAt,
		},
		PageKey:   "https://example.com/doc",
		UpdatedAt: updatedAt,
	}
}

func TestClient_FlushesToPushEndpoint(t *testing.T) {
	var received []*highlighter.Highlight

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/mirror/push" {
			t.Errorf("path = %q, want /api/mirror/push", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var hs []*highlighter.Highlight
		if err := json.Unmarshal(body, &hs); err != nil {
			t.Errorf("unmarshal: %v", err)
			http.Error(w, "bad json", 400)
			return
		}
		received = append(received, hs...)
		w.WriteHeader(204)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)

	for i := 0; i < 5; i++ {
		c.PushAsync(mkHighlight("hl_push", int64(1000+i)))
	}

	// Close flushes remaining highlights.
	c.Close()

	if len(received) != 5 {
		t.Fatalf("received %d highlights, want 5", len(received))
	}
	if received[0].ID != "hl_push" {
		t.Fatalf("id: got %q", received[0].ID)
	}
	if received[0].PageKey != "https://example.com/doc" {
		t.Fatalf("page key: got %q", received[0].PageKey)
	}
}

func TestClient_DropOnFull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	}))
	defer srv.Close()

	c := &Client{
		base:   srv.URL,
		client: &http.Client{Timeout: time.Second},
		ch:     make(chan *highlighter.Highlight, 2), // tiny buffer
		done:   make(chan struct{}),
	}
	go c.flushLoop()

	c.ch <- mkHighlight("hl_a", 1)
	c.ch <- mkHighlight("hl_b", 2)

	// This should not block on the full channel.
	done := make(chan struct{})
	go func() {
		c.PushAsync(mkHighlight("hl_c", 3))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PushAsync blocked on full channel")
	}

	c.Close()
}

type memStore struct {
	pages map[string][]*highlighter.Highlight
}

func newMemStore() *memStore {
	return &memStore{pages: map[string][]*highlighter.Highlight{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]*highlighter.Highlight, error) {
	return m.pages[key], nil
}

func (m *memStore) Set(_ context.Context, key string, hs []*highlighter.Highlight) error {
	m.pages[key] = hs
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.pages, key)
	return nil
}

func (m *memStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range m.pages {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func TestClient_PullMergesRemoteChanges(t *testing.T) {
	remote := []*highlighter.Highlight{
		mkHighlight("hl_new", 2000),
		mkHighlight("hl_stale", 500),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/mirror/changes" {
			t.Errorf("path = %q, want /api/mirror/changes", r.URL.Path)
		}
		if got := r.URL.Query().Get("since"); got != "100" {
			t.Errorf("since = %q, want 100", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(remote)
	}))
	defer srv.Close()

	store := newMemStore()
	// Local copy of hl_stale is newer than the remote one.
	local := mkHighlight("hl_stale", 1500)
	local.Comment = "local edit"
	store.pages[local.PageKey] = []*highlighter.Highlight{local}

	svc := highlighter.New(highlighter.DefaultConfig(), store, nil)
	c := New(srv.URL, nil)
	defer c.Close()

	applied, err := c.Pull(context.Background(), svc, 100)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1 (only hl_new)", applied)
	}

	set := store.pages["https://example.com/doc"]
	if len(set) != 2 {
		t.Fatalf("got %d highlights, want 2", len(set))
	}
	for _, h := range set {
		if h.ID == "hl_stale" && h.Comment != "local edit" {
			t.Errorf("stale remote overwrote newer local copy")
		}
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
