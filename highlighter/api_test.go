package highlighter_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/surlign/dbopen"
	"github.com/hazyhaar/surlign/highlighter"
	"github.com/hazyhaar/surlign/internal/store"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	svc := highlighter.New(highlighter.DefaultConfig(), store.New(db), nil)

	r := chi.NewRouter()
	svc.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func captureViaAPI(t *testing.T, srv *httptest.Server) *highlighter.Highlight {
	t.Helper()
	start := strings.Index(pageText, "brown fox")
	resp := postJSON(t, srv.URL+"/api/highlights", map[string]any{
		"url":     pageURL,
		"html":    pageHTML,
		"start":   start,
		"end":     start + len("brown fox"),
		"comment": "via api",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("capture status = %d", resp.StatusCode)
	}
	var body struct {
		Highlight *highlighter.Highlight `json:"highlight"`
		HTML      string                 `json:"html"`
	}
	decodeBody(t, resp, &body)
	if body.Highlight == nil || body.Highlight.ID == "" {
		t.Fatal("capture returned no highlight")
	}
	if !strings.Contains(body.HTML, "data-surlign-id") {
		t.Error("capture response HTML has no marker")
	}
	return body.Highlight
}

func TestAPIHealth(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAPICaptureAndList(t *testing.T) {
	srv := testServer(t)
	h := captureViaAPI(t, srv)

	resp, err := http.Get(srv.URL + "/api/highlights?url=" + pageURL)
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	var list []*highlighter.Highlight
	decodeBody(t, resp, &list)
	if len(list) != 1 || list[0].ID != h.ID {
		t.Fatalf("list = %v, want captured highlight", list)
	}
	if list[0].Comment != "via api" {
		t.Errorf("comment = %q", list[0].Comment)
	}
}

func TestAPIResolveReturnsMarkedHTML(t *testing.T) {
	srv := testServer(t)
	h := captureViaAPI(t, srv)

	resp := postJSON(t, srv.URL+"/api/highlights/resolve", map[string]any{
		"url":  pageURL,
		"html": pageHTML,
	})
	if resp.StatusCode != 200 {
		t.Fatalf("resolve status = %d", resp.StatusCode)
	}
	var body struct {
		Report *highlighter.Report `json:"report"`
		HTML   string              `json:"html"`
	}
	decodeBody(t, resp, &body)
	if body.Report.Resolved != 1 {
		t.Fatalf("report = %+v, want 1 resolved", body.Report)
	}
	if !strings.Contains(body.HTML, `data-surlign-id="`+h.ID+`"`) {
		t.Error("resolved HTML has no marker")
	}
}

func TestAPIUpdateAndDelete(t *testing.T) {
	srv := testServer(t)
	h := captureViaAPI(t, srv)

	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/highlights/"+h.ID,
		strings.NewReader(fmt.Sprintf(`{"url":%q,"comment":"edited","tags":["keep"]}`, pageURL)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	var updated highlighter.Highlight
	decodeBody(t, resp, &updated)
	if updated.Comment != "edited" || len(updated.Tags) != 1 {
		t.Fatalf("updated = %+v", updated)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/api/highlights/"+h.ID,
		strings.NewReader(fmt.Sprintf(`{"url":%q}`, pageURL)))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	// Deleting again is a 404.
	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/api/highlights/"+h.ID,
		strings.NewReader(fmt.Sprintf(`{"url":%q}`, pageURL)))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("second DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIExport(t *testing.T) {
	srv := testServer(t)
	captureViaAPI(t, srv)

	resp := postJSON(t, srv.URL+"/api/export", map[string]any{"url": pageURL})
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("content type = %q", ct)
	}
	var b bytes.Buffer
	b.ReadFrom(resp.Body)
	if !strings.Contains(b.String(), "> brown fox") {
		t.Errorf("export missing quote:\n%s", b.String())
	}
}

func TestAPIMirrorRoundTrip(t *testing.T) {
	srv := testServer(t)
	h := captureViaAPI(t, srv)

	// Changes since 0 lists the capture.
	resp, err := http.Get(srv.URL + "/api/mirror/changes?since=0")
	if err != nil {
		t.Fatalf("GET changes: %v", err)
	}
	var changes []*highlighter.Highlight
	decodeBody(t, resp, &changes)
	if len(changes) != 1 || changes[0].ID != h.ID {
		t.Fatalf("changes = %v", changes)
	}

	// Push a newer copy from a peer.
	newer := *changes[0]
	newer.Comment = "peer edit"
	newer.UpdatedAt += 500
	resp = postJSON(t, srv.URL+"/api/mirror/push", []*highlighter.Highlight{&newer})
	if resp.StatusCode != 200 {
		t.Fatalf("push status = %d", resp.StatusCode)
	}
	var pushResp map[string]int
	decodeBody(t, resp, &pushResp)
	if pushResp["applied"] != 1 {
		t.Fatalf("applied = %d, want 1", pushResp["applied"])
	}

	resp, err = http.Get(srv.URL + "/api/highlights?url=" + pageURL)
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	var list []*highlighter.Highlight
	decodeBody(t, resp, &list)
	if list[0].Comment != "peer edit" {
		t.Fatalf("comment = %q, want peer edit", list[0].Comment)
	}
}

func TestAPIBadRequests(t *testing.T) {
	srv := testServer(t)

	resp := postJSON(t, srv.URL+"/api/highlights", map[string]any{
		"url": "ftp://example.com", "html": pageHTML, "start": 0, "end": 3,
	})
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("bad scheme status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/highlights", map[string]any{
		"url": pageURL, "html": "", "start": 0, "end": 3,
	})
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("empty html status = %d, want 400", resp.StatusCode)
	}
}
