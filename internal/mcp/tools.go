// ABOUTME: MCP tool definitions and registration for the sidekick server
// ABOUTME: Exposes compaction, prompt assembly, state, cache, and message hooks
package mcp

import (
	"github.com/harper/sidekick-pipeline/internal/core"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, pipeline *core.Pipeline) *Handlers {
	handlers := NewHandlers(pipeline)

	// 1. compact_transcript - run the compaction trigger on a transcript
	server.AddTool(mcp.Tool{
		Name:        "compact_transcript",
		Description: "Evaluate a chat transcript and, when context occupancy is high enough, summarize older history into structured state.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation identifier the state belongs to",
				},
				"transcript": map[string]interface{}{
					"type":        "array",
					"description": "Messages in order. Each has text plus role or is_user/is_system, and an optional name.",
					"items":       map[string]interface{}{"type": "object"},
				},
				"capacity": map[string]interface{}{
					"type":        "number",
					"description": "Context window size in tokens",
				},
				"run_type": map[string]interface{}{
					"type":        "string",
					"description": "Generation type: normal, continue, regenerate, swipe, quiet, impersonate (default: normal)",
					"default":     "normal",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "Summarize regardless of occupancy and cooldown",
					"default":     false,
				},
			},
			Required: []string{"conversation_id", "transcript"},
		},
	}, handlers.CompactTranscript)

	// 2. assemble_prompt - rewrite an outgoing prompt
	server.AddTool(mcp.Tool{
		Name:        "assemble_prompt",
		Description: "Filter bookkeeping instructions, inject memory blocks, and trim compacted history from an outgoing prompt.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation identifier used during compaction",
				},
				"messages": map[string]interface{}{
					"type":        "array",
					"description": "Prompt messages as {role, content} objects",
					"items":       map[string]interface{}{"type": "object"},
				},
				"dry_run": map[string]interface{}{
					"type":        "boolean",
					"description": "Report without modifying (the prompt is returned unchanged)",
					"default":     false,
				},
			},
			Required: []string{"conversation_id", "messages"},
		},
	}, handlers.AssemblePrompt)

	// 3. show_state - last extracted state and issues
	server.AddTool(mcp.Tool{
		Name:        "show_state",
		Description: "Show the last extracted state, its rendered memory block, and any extraction issues.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation identifier",
				},
			},
			Required: []string{"conversation_id"},
		},
	}, handlers.ShowState)

	// 4. cache_stats - summary cache statistics
	server.AddTool(mcp.Tool{
		Name:        "cache_stats",
		Description: "Show summary cache hit/miss counts from the last fill and the current entry count.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.CacheStats)

	// 5. fill_cache - summarize content items through the cache
	server.AddTool(mcp.Tool{
		Name:        "fill_cache",
		Description: "Summarize content items at two levels of detail, reusing cached summaries for unchanged content.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"items": map[string]interface{}{
					"type":        "array",
					"description": "Items as {uid, content, tags} objects",
					"items":       map[string]interface{}{"type": "object"},
				},
			},
			Required: []string{"items"},
		},
	}, handlers.FillCache)

	// 6. message_received - micro-summarize a newly rendered message
	server.AddTool(mcp.Tool{
		Name:        "message_received",
		Description: "Report a newly rendered chat message. With micro summaries enabled it is summarized into the cache.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation identifier",
				},
				"message": map[string]interface{}{
					"type":        "object",
					"description": "The message: index, text, plus role or is_user/is_system, and an optional name",
				},
			},
			Required: []string{"conversation_id", "message"},
		},
	}, handlers.MessageReceived)

	return handlers
}
