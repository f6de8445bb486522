// ABOUTME: MCP tool definitions and registration for the relay
// ABOUTME: Exposes personas, the transform pipeline, and entropy to agents
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/harper/veil/internal/core"
)

// RegisterTools registers the relay's tools with the server
func RegisterTools(server *mcpserver.MCPServer, registry *core.Registry, settings *core.SettingsService, transformer *core.Transformer) *Handlers {
	handlers := &Handlers{
		registry:    registry,
		settings:    settings,
		transformer: transformer,
	}

	server.AddTool(mcp.Tool{
		Name:        "list_personas",
		Description: "List a user's active personas, most recently used first. Creates the user's default persona if they have none.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user": map[string]interface{}{
					"type":        "number",
					"description": "User id to list personas for",
				},
			},
			Required: []string{"user"},
		},
	}, handlers.ListPersonas)

	server.AddTool(mcp.Tool{
		Name:        "transform_text",
		Description: "Run text through a user's anonymisation pipeline (rewrite, lowercasing, punctuation stripping) exactly as the relay would.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user": map[string]interface{}{
					"type":        "number",
					"description": "User whose settings drive the pipeline",
				},
				"persona": map[string]interface{}{
					"type":        "number",
					"description": "Persona id the text is attributed to",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to transform",
				},
			},
			Required: []string{"user", "persona", "text"},
		},
	}, handlers.TransformText)

	server.AddTool(mcp.Tool{
		Name:        "settings_entropy",
		Description: "Estimate how identifiable a user's privacy settings make them, in bits, against the recently active population. Lower is better; null means no estimate is possible.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user": map[string]interface{}{
					"type":        "number",
					"description": "User id to estimate",
				},
			},
			Required: []string{"user"},
		},
	}, handlers.SettingsEntropy)

	return handlers
}
