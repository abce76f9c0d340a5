// Package tools implements the Tool Registry & Dispatcher (§4.3): per-kind
// tool storage, schema surfacing to the model, fenced-JSON tool-call
// parsing, and sequential one-at-a-time dispatch.
package tools

import (
	"sync"

	"manifold/internal/httptool"
	"manifold/internal/llm"
)

// Registry holds every tool the agent can call, in one name-keyed map per
// kind. Uniqueness across kinds is not enforced: a name registered under two
// kinds stays in both, and Lookup reports local, then mcp, then http.
type Registry struct {
	mu    sync.RWMutex
	local map[string]LocalTool
	mcp   map[string]UnaryTool
	http  map[string]httpEntry
}

func NewRegistry() *Registry {
	return &Registry{
		local: make(map[string]LocalTool),
		mcp:   make(map[string]UnaryTool),
		http:  make(map[string]httpEntry),
	}
}

func (r *Registry) RegisterLocal(t LocalTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[t.Name()] = t
}

func (r *Registry) RegisterMCP(t UnaryTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mcp[t.Name()] = t
}

func (r *Registry) RegisterHTTP(d httptool.Descriptor, schema map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.http[d.Name] = httpEntry{descriptor: d, schema: schema}
}

// Unregister removes a tool regardless of kind. Required so an MCP server
// disconnect can retract the tools it contributed (mirrors mcpclient's
// RemoveOne).
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.local, name)
	delete(r.mcp, name)
	delete(r.http, name)
}

// Lookup reports which kind, if any, owns name.
func (r *Registry) Lookup(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.local[name]; ok {
		return KindLocal, true
	}
	if _, ok := r.mcp[name]; ok {
		return KindMCP, true
	}
	if _, ok := r.http[name]; ok {
		return KindHTTP, true
	}
	return "", false
}

// Schemas returns every tool's schema for inclusion in the model's tool
// catalog, regardless of kind.
func (r *Registry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolSchema, 0, len(r.local)+len(r.mcp)+len(r.http))
	for name, t := range r.local {
		out = append(out, schemaToToolSchema(name, t.JSONSchema()))
	}
	for name, t := range r.mcp {
		out = append(out, schemaToToolSchema(name, t.JSONSchema()))
	}
	for name, e := range r.http {
		out = append(out, schemaToToolSchema(name, e.schema))
	}
	return out
}

func (r *Registry) localTool(name string) (LocalTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.local[name]
	return t, ok
}

func (r *Registry) mcpTool(name string) (UnaryTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.mcp[name]
	return t, ok
}

func (r *Registry) httpDescriptor(name string) (httptool.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.http[name]
	return e.descriptor, ok
}
