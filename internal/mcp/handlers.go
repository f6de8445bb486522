// ABOUTME: MCP tool handler implementations for the relay
// ABOUTME: Thin adapters from tool requests onto the core services
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/harper/veil/internal/core"
)

// Handlers contains the handler functions for the relay's MCP tools
type Handlers struct {
	registry    *core.Registry
	settings    *core.SettingsService
	transformer *core.Transformer
}

func requireUserID(request mcp.CallToolRequest) (int64, error) {
	user, err := request.RequireInt("user")
	if err != nil || user <= 0 {
		return 0, fmt.Errorf("user argument must be a positive integer id")
	}
	return int64(user), nil
}

// ListPersonas handles the list_personas tool
func (h *Handlers) ListPersonas(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := requireUserID(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	personas, err := h.registry.ListActive(ctx, user)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing personas failed: %v", err)), nil
	}

	out := make([]map[string]interface{}, 0, len(personas))
	for i := range personas {
		out = append(out, map[string]interface{}{
			"id":   personas[i].ID,
			"name": personas[i].Name,
			"temp": personas[i].Temp,
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// TransformText handles the transform_text tool
func (h *Handlers) TransformText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := requireUserID(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	persona, err := request.RequireInt("persona")
	if err != nil {
		return mcp.NewToolResultError("persona argument is required and must be a number"), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text argument is required and must be a string"), nil
	}

	result, err := h.transformer.Transform(ctx, text, int64(persona), user)
	if errors.Is(err, core.ErrRewriteUnavailable) {
		return mcp.NewToolResultError("the rewriting service is unavailable; the message cannot be anonymised right now"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("transform failed: %v", err)), nil
	}
	return mcp.NewToolResultText(result), nil
}

// SettingsEntropy handles the settings_entropy tool
func (h *Handlers) SettingsEntropy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := requireUserID(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	bits, err := h.settings.EntropyBits(ctx, user)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("entropy estimate failed: %v", err)), nil
	}

	var payload map[string]interface{}
	if math.IsInf(bits, 1) {
		payload = map[string]interface{}{"entropy": nil}
	} else {
		payload = map[string]interface{}{"entropy": bits}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
