package highlighter

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/net/html"

	"github.com/hazyhaar/surlign/kit"
)

// RegisterMCP registers the surlign tools on an MCP server. The document
// tools take page HTML inline and hand back the re-rendered HTML, mirroring
// the HTTP API.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerCaptureTool(srv)
	s.registerListTool(srv)
	s.registerResolveTool(srv)
	s.registerUpdateTool(srv)
	s.registerDeleteTool(srv)
	s.registerExportTool(srv)
	s.registerPagesTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

func decodeInto[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

// --- capture ---

type captureToolRequest struct {
	URL     string   `json:"url"`
	HTML    string   `json:"html"`
	Start   int      `json:"start"`
	End     int      `json:"end"`
	Comment string   `json:"comment,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Color   string   `json:"color,omitempty"`
}

func (s *Service) registerCaptureTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "surlign_capture",
		Description: "Anchor a text selection on a web page as a persistent highlight. Offsets are byte positions into the page's flattened body text.",
		InputSchema: inputSchema(map[string]any{
			"url":     map[string]any{"type": "string", "description": "Page URL"},
			"html":    map[string]any{"type": "string", "description": "Page HTML"},
			"start":   map[string]any{"type": "integer", "description": "Selection start, byte offset into flattened body text"},
			"end":     map[string]any{"type": "integer", "description": "Selection end (exclusive)"},
			"comment": map[string]any{"type": "string", "description": "Optional note"},
			"tags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Optional tags"},
			"color":   map[string]any{"type": "string", "description": "Marker color (default from config)"},
		}, []string{"url", "html", "start", "end"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*captureToolRequest)
		doc, err := parseDoc(r.HTML)
		if err != nil {
			return nil, err
		}
		return s.Capture(ctx, r.URL, doc, r.Start, r.End, Metadata{
			Comment: r.Comment, Tags: r.Tags, Color: r.Color,
		})
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[captureToolRequest])
}

// --- list ---

type listToolRequest struct {
	URL string `json:"url"`
}

func (s *Service) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "surlign_list",
		Description: "List the stored highlights of a page.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Page URL"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listToolRequest)
		hs, err := s.List(ctx, r.URL)
		if err != nil {
			return nil, err
		}
		if hs == nil {
			hs = []*Highlight{}
		}
		return hs, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[listToolRequest])
}

// --- resolve ---

type resolveToolRequest struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
}

func (s *Service) registerResolveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "surlign_resolve",
		Description: "Re-anchor a page's stored highlights against its current HTML and return the marked-up document plus a per-highlight report.",
		InputSchema: inputSchema(map[string]any{
			"url":  map[string]any{"type": "string", "description": "Page URL"},
			"html": map[string]any{"type": "string", "description": "Current page HTML"},
		}, []string{"url", "html"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*resolveToolRequest)
		doc, err := parseDoc(r.HTML)
		if err != nil {
			return nil, err
		}
		report, err := s.ResolveAll(ctx, r.URL, doc)
		if err != nil {
			return nil, err
		}
		return map[string]any{"report": report, "html": renderDoc(doc)}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[resolveToolRequest])
}

// --- update ---

type updateToolRequest struct {
	URL     string   `json:"url"`
	ID      string   `json:"id"`
	Comment string   `json:"comment,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Color   string   `json:"color,omitempty"`
}

func (s *Service) registerUpdateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "surlign_update",
		Description: "Update a highlight's comment, tags, or color. The anchored text itself never changes.",
		InputSchema: inputSchema(map[string]any{
			"url":     map[string]any{"type": "string", "description": "Page URL"},
			"id":      map[string]any{"type": "string", "description": "Highlight id"},
			"comment": map[string]any{"type": "string", "description": "New comment"},
			"tags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "New tags"},
			"color":   map[string]any{"type": "string", "description": "New marker color"},
		}, []string{"url", "id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*updateToolRequest)
		return s.UpdateMetadata(ctx, r.URL, r.ID, Metadata{
			Comment: r.Comment, Tags: r.Tags, Color: r.Color,
		})
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[updateToolRequest])
}

// --- delete ---

type deleteToolRequest struct {
	URL  string `json:"url"`
	ID   string `json:"id"`
	HTML string `json:"html,omitempty"`
}

func (s *Service) registerDeleteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "surlign_delete",
		Description: "Delete a highlight. When the page HTML is supplied the marker is unwrapped and the cleaned HTML returned.",
		InputSchema: inputSchema(map[string]any{
			"url":  map[string]any{"type": "string", "description": "Page URL"},
			"id":   map[string]any{"type": "string", "description": "Highlight id"},
			"html": map[string]any{"type": "string", "description": "Optional current page HTML"},
		}, []string{"url", "id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*deleteToolRequest)
		var doc *html.Node
		if r.HTML != "" {
			var err error
			if doc, err = parseDoc(r.HTML); err != nil {
				return nil, err
			}
		}
		if err := s.Remove(ctx, r.URL, r.ID, doc); err != nil {
			return nil, err
		}
		resp := map[string]any{"status": "deleted"}
		if doc != nil {
			resp["html"] = renderDoc(doc)
		}
		return resp, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[deleteToolRequest])
}

// --- export ---

type exportToolRequest struct {
	URL  string `json:"url"`
	HTML string `json:"html,omitempty"`
}

func (s *Service) registerExportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "surlign_export",
		Description: "Export a page's highlights as a markdown document. Supplying the page HTML enriches quotes with surrounding formatting.",
		InputSchema: inputSchema(map[string]any{
			"url":  map[string]any{"type": "string", "description": "Page URL"},
			"html": map[string]any{"type": "string", "description": "Optional current page HTML"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*exportToolRequest)
		var doc *html.Node
		if r.HTML != "" {
			var err error
			if doc, err = parseDoc(r.HTML); err != nil {
				return nil, err
			}
		}
		md, err := s.ExportMarkdown(ctx, r.URL, doc)
		if err != nil {
			return nil, err
		}
		return map[string]string{"markdown": md}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[exportToolRequest])
}

// --- pages ---

type pagesToolRequest struct {
	Prefix string `json:"prefix,omitempty"`
}

func (s *Service) registerPagesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "surlign_pages",
		Description: "List the page keys that have at least one highlight.",
		InputSchema: inputSchema(map[string]any{
			"prefix": map[string]any{"type": "string", "description": "Restrict to keys with this prefix"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pagesToolRequest)
		keys, err := s.Pages(ctx, r.Prefix)
		if err != nil {
			return nil, err
		}
		if keys == nil {
			keys = []string{}
		}
		return keys, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[pagesToolRequest])
}
