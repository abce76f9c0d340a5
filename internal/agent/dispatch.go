package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"manifold/internal/events"
	"manifold/internal/llm"
	"manifold/internal/memory"
	"manifold/internal/tools"
)

// maxConcurrentToolCalls bounds the fan-out pool used when a single model
// turn emits more than one native tool call (§5: "concurrent local-tool
// submissions by an internal pool that is fully joined before returning").
const maxConcurrentToolCalls = 4

// kindToCallType maps a registry entry's kind to the tool-call "type" tag
// the Dispatcher switches on (§4.3's three fenced-JSON shapes), so that
// native provider tool calls route the same way a fenced-text call would.
func kindToCallType(k tools.Kind) string {
	switch k {
	case tools.KindHTTP:
		return "api"
	case tools.KindMCP:
		return "mcp"
	default:
		return "function"
	}
}

// dispatchNativeCalls fans out every native tool call the model emitted in
// one turn across a bounded worker pool and awaits the full set before
// returning, per §5's fan-out-then-join concurrency model. ShortTerm.Add and
// the frame-emission closure are both safe for concurrent use, so tool
// results may interleave but each tool's own frame order is preserved.
func (e *Executor) dispatchNativeCalls(ctx context.Context, conv string, mem *memory.ShortTerm, calls []llm.ToolCall, emit func(events.Frame), log zerolog.Logger) {
	if len(calls) == 0 {
		return
	}
	if len(calls) == 1 {
		e.dispatchToolCall(ctx, conv, mem, calls[0], emit, log)
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentToolCalls)
	for _, tc := range calls {
		tc := tc
		g.Go(func() error {
			e.dispatchToolCall(gctx, conv, mem, tc, emit, log)
			return nil
		})
	}
	_ = g.Wait()
}

// dispatchToolCall routes a native (provider tool-calling API) invocation
// through the registry and dispatcher, recording its outcome as a
// tool-result turn.
func (e *Executor) dispatchToolCall(ctx context.Context, conv string, mem *memory.ShortTerm, tc llm.ToolCall, emit func(events.Frame), log zerolog.Logger) {
	kind, ok := e.Registry.Lookup(tc.Name)
	if !ok {
		msg := fmt.Sprintf("tool %q not registered", tc.Name)
		emit(events.ErrorFrame(msg))
		mem.Add(memory.RoleToolResult, msg)
		return
	}
	call := tools.ParsedCall{Type: kindToCallType(kind), Name: tc.Name, Params: tc.Args}
	e.dispatchParsedCall(ctx, conv, mem, call, emit, log)
}

// dispatchParsedCall fully drains one tool invocation before returning.
// dispatchNativeCalls may run several of these concurrently across its
// bounded pool, but each individual call here still blocks until its own
// Dispatch channel closes before recording a tool-result turn.
func (e *Executor) dispatchParsedCall(ctx context.Context, conv string, mem *memory.ShortTerm, call tools.ParsedCall, emit func(events.Frame), log zerolog.Logger) {
	emit(events.Status("invoking tool", call.Name))

	var lastText string
	for ev := range e.Dispatcher.Dispatch(ctx, conv, call) {
		if ev.Frame != nil {
			emit(*ev.Frame)
		}
		if ev.Text != "" {
			lastText = ev.Text
		}
		if ev.Err != nil {
			log.Warn().Err(ev.Err).Str("tool", call.Name).Msg("tool_dispatch_error")
			lastText = ev.Err.Error()
		}
	}
	mem.Add(memory.RoleToolResult, lastText)
}
