package mcp

import (
	"context"
	"encoding/json"

	"github.com/claude/liftlog/internal/session"
	"github.com/mark3labs/mcp-go/mcp"
)

const recentSessionsLimit = 10

func (h *handlers) activeSessionResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sess, err := h.sessions.Active(ctx, UserIDFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, session.NewView(sess))
}

func (h *handlers) recentSessionsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessions, err := h.sessions.List(ctx, UserIDFromContext(ctx), recentSessionsLimit)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, session.NewViews(sessions))
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
