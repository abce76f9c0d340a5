package tools

import (
	"context"
	"encoding/json"

	"manifold/internal/events"
	"manifold/internal/httptool"
	"manifold/internal/llm"
)

// Kind distinguishes how a registered tool is dispatched (§4.3).
type Kind string

const (
	KindLocal Kind = "local"
	KindHTTP  Kind = "http"
	KindMCP   Kind = "mcp"
)

// Event is one unit a dispatched tool call yields. A local tool may emit
// several before Finished; http/mcp tools emit a short, bounded sequence
// (a streaming http tool emits one Event per line). The sequence always ends
// with an Event carrying Finished — an explicit sentinel, not mere channel
// closure, so a consumer can't mistake a stalled producer for completion.
type Event struct {
	Frame    *events.Frame
	Text     string
	Err      error
	Finished bool
}

// LocalTool is an in-process capability. Run may emit any number of Events
// before the one with Finished set; the channel is closed immediately after.
type LocalTool interface {
	Name() string
	JSONSchema() map[string]any
	Run(ctx context.Context, params json.RawMessage) <-chan Event
}

// UnaryTool answers in one shot, the shape MCP-wrapped tools naturally take.
type UnaryTool interface {
	Name() string
	JSONSchema() map[string]any
	Call(ctx context.Context, params json.RawMessage) (any, error)
}

// httpEntry pairs an HTTP tool's descriptor with the JSON schema surfaced to
// the model; the request itself is executed by httptool.Invoker.
type httpEntry struct {
	descriptor httptool.Descriptor
	schema     map[string]any
}

func strFrom(v any) string         { s, _ := v.(string); return s }
func mapFrom(v any) map[string]any { m, _ := v.(map[string]any); return m }

func schemaToToolSchema(name string, schema map[string]any) llm.ToolSchema {
	return llm.ToolSchema{
		Name:        name,
		Description: strFrom(schema["description"]),
		Parameters:  mapFrom(schema["parameters"]),
	}
}
