package api

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/repro/kit"
	"github.com/hazyhaar/repro/report"
)

// RegisterMCP registers the repro tools on an MCP server.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "repro_list",
		Description: "List stored recordings, newest first, with their duration and event count.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max results (default all)"},
		}, nil),
	}, s.ep.list, kit.DecodeArgs[listRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "repro_seek",
		Description: "Reconstruct a recorded page at a time offset. Returns its HTML and the pointer, viewport and scroll state.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Recording id"},
			"at": map[string]any{"type": "integer", "minimum": 0, "description": "Offset in milliseconds (default: end of recording)"},
		}, []string{"id"}),
	}, s.ep.seek, kit.DecodeArgs[seekRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "repro_report",
		Description: "Markdown bug report of a recording at a time offset: page content, console errors and failed requests. With since, reports on the last period of a live session.",
		InputSchema: inputSchema(map[string]any{
			"id":    map[string]any{"type": "string", "description": "Recording or live session id"},
			"at":    map[string]any{"type": "integer", "minimum": 0, "description": "Offset in milliseconds (default: end)"},
			"live":  map[string]any{"type": "boolean", "description": "Read a live session instead of the store"},
			"since": map[string]any{"type": "string", "description": "Live sessions only: period to cover, e.g. 30s"},
		}, []string{"id"}),
	}, markdown(s.ep.report), kit.DecodeArgs[reportRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "repro_sessions",
		Description: "List live recording sessions.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, s.ep.sessions, func(*mcp.CallToolRequest) (any, error) { return nil, nil })

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "repro_start",
		Description: "Start recording a page. acquire is auto (browser only when the page needs JavaScript), http or browser.",
		InputSchema: inputSchema(map[string]any{
			"url":     map[string]any{"type": "string", "description": "Page URL"},
			"acquire": map[string]any{"type": "string", "enum": []any{"auto", "http", "browser"}},
		}, []string{"url"}),
	}, s.ep.startSession, kit.DecodeArgs[startSessionRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "repro_stop",
		Description: "Stop a live session and store its recording.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Session id"},
		}, []string{"id"}),
	}, s.ep.stopSession, kit.DecodeArgs[idRequest])
}

// markdown renders a report endpoint's result as the Markdown document.
func markdown(ep kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		resp, err := ep(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.(*report.Report).Document(), nil
	}
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
