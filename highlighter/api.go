package highlighter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/html"

	"github.com/hazyhaar/surlign/anchor"
	"github.com/hazyhaar/surlign/pagekey"
)

// Routes mounts the surlign HTTP API on r. Endpoints that operate on a
// document take the page HTML in the request body and return the re-rendered
// HTML with markers applied, so a thin client can swap its DOM wholesale.
func (s *Service) Routes(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/highlights", s.handleCapture)
		r.Get("/highlights", s.handleList)
		r.Post("/highlights/resolve", s.handleResolve)
		r.Patch("/highlights/{id}", s.handleUpdate)
		r.Delete("/highlights/{id}", s.handleDelete)
		r.Post("/export", s.handleExport)
		r.Get("/pages", s.handlePages)

		r.Post("/mirror/push", s.handleMirrorPush)
		r.Get("/mirror/changes", s.handleMirrorChanges)
	})
}

type captureRequest struct {
	URL     string   `json:"url"`
	HTML    string   `json:"html"`
	Start   int      `json:"start"`
	End     int      `json:"end"`
	Comment string   `json:"comment,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Color   string   `json:"color,omitempty"`
}

func (s *Service) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	doc, err := parseDoc(req.HTML)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	h, err := s.Capture(r.Context(), req.URL, doc, req.Start, req.End, Metadata{
		Comment: req.Comment, Tags: req.Tags, Color: req.Color,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	// Mark the freshly captured range so the returned HTML already carries it.
	anchor.Resolve(doc, &h.Descriptor)
	writeJSON(w, 201, map[string]any{"highlight": h, "html": renderDoc(doc)})
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	hs, err := s.List(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if hs == nil {
		hs = []*Highlight{}
	}
	writeJSON(w, 200, hs)
}

func (s *Service) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL  string `json:"url"`
		HTML string `json:"html"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	doc, err := parseDoc(req.HTML)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	report, err := s.ResolveAll(r.Context(), req.URL, doc)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, map[string]any{"report": report, "html": renderDoc(doc)})
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL     string   `json:"url"`
		Comment string   `json:"comment"`
		Tags    []string `json:"tags"`
		Color   string   `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	h, err := s.UpdateMetadata(r.Context(), req.URL, chi.URLParam(r, "id"), Metadata{
		Comment: req.Comment, Tags: req.Tags, Color: req.Color,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, h)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	// The page HTML is optional on delete; without it only the stored
	// descriptor is removed.
	var doc *html.Node
	var req struct {
		URL  string `json:"url"`
		HTML string `json:"html"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	if req.HTML != "" {
		var err error
		if doc, err = parseDoc(req.HTML); err != nil {
			writeError(w, 400, err)
			return
		}
	}
	if err := s.Remove(r.Context(), req.URL, chi.URLParam(r, "id"), doc); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	resp := map[string]any{"status": "deleted"}
	if doc != nil {
		resp["html"] = renderDoc(doc)
	}
	writeJSON(w, 200, resp)
}

func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL  string `json:"url"`
		HTML string `json:"html"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	var doc *html.Node
	if req.HTML != "" {
		var err error
		if doc, err = parseDoc(req.HTML); err != nil {
			writeError(w, 400, err)
			return
		}
	}
	md, err := s.ExportMarkdown(r.Context(), req.URL, doc)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(200)
	w.Write([]byte(md))
}

func (s *Service) handlePages(w http.ResponseWriter, r *http.Request) {
	keys, err := s.Pages(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, 200, keys)
}

func (s *Service) handleMirrorPush(w http.ResponseWriter, r *http.Request) {
	var incoming []*Highlight
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, 400, err)
		return
	}
	applied, err := s.MergeRemote(r.Context(), incoming)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, map[string]int{"applied": applied})
}

func (s *Service) handleMirrorChanges(w http.ResponseWriter, r *http.Request) {
	since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	if err != nil && r.URL.Query().Get("since") != "" {
		writeError(w, 400, err)
		return
	}
	hs, err := s.ChangedSince(r.Context(), since)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if hs == nil {
		hs = []*Highlight{}
	}
	writeJSON(w, 200, hs)
}

func parseDoc(src string) (*html.Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.New("empty html")
	}
	return html.Parse(strings.NewReader(src))
}

func renderDoc(doc *html.Node) string {
	var b strings.Builder
	if err := html.Render(&b, doc); err != nil {
		return ""
	}
	return b.String()
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrEmptySelection), errors.Is(err, ErrInvalidInput), errors.Is(err, pagekey.ErrInvalidURL):
		return 400
	default:
		return 500
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
