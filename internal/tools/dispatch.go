package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"manifold/internal/agenterr"
	"manifold/internal/events"
	"manifold/internal/httptool"
)

// Dispatcher routes a parsed tool call to its kind-specific executor and
// normalizes every kind's output into the same Event sequence, always
// terminated by a Finished event. One call's channel is always drained to
// completion before its caller considers it done — Dispatch itself never
// interleaves two calls' frames. When a single model turn yields more than
// one tool call, the agent package's own bounded worker pool may invoke
// Dispatch concurrently across goroutines (§5's fan-out-then-join model);
// each individual call still behaves as a fully sequential unit here.
type Dispatcher struct {
	registry *Registry
	http     *httptool.Invoker
}

func NewDispatcher(registry *Registry, invoker *httptool.Invoker) *Dispatcher {
	return &Dispatcher{registry: registry, http: invoker}
}

// Dispatch resolves call.Name within the kind declared by call.Type and
// returns its Event sequence. A lookup miss is not fatal to the loop
// (ToolNotFound does not terminate, §7) — it surfaces as a single error
// Event so the caller can fold it into the tool-result turn and continue.
func (d *Dispatcher) Dispatch(ctx context.Context, conv string, call ParsedCall) <-chan Event {
	switch call.Type {
	case "function":
		t, ok := d.registry.localTool(call.Name)
		if !ok {
			return singleError(agenterr.New(agenterr.ToolNotFound, fmt.Sprintf("local tool %q not registered", call.Name)))
		}
		return t.Run(ctx, call.Params)

	case "mcp":
		t, ok := d.registry.mcpTool(call.Name)
		if !ok {
			return singleError(agenterr.New(agenterr.ToolNotFound, fmt.Sprintf("mcp tool %q not registered", call.Name)))
		}
		return unaryToChannel(ctx, t, call.Params)

	case "api":
		desc, ok := d.registry.httpDescriptor(call.Name)
		if !ok {
			return singleError(agenterr.New(agenterr.ToolNotFound, fmt.Sprintf("http tool %q not registered", call.Name)))
		}
		var args map[string]any
		if err := json.Unmarshal(call.Params, &args); err != nil {
			return singleError(agenterr.Wrap(agenterr.ToolArgumentError, "decode http tool arguments", err))
		}
		return frameChannelToEvents(d.http.Invoke(ctx, conv, desc, args))

	default:
		return singleError(agenterr.New(agenterr.ToolArgumentError, fmt.Sprintf("unrecognized tool call type %q", call.Type)))
	}
}

func singleError(err error) <-chan Event {
	out := make(chan Event, 1)
	out <- Event{Err: err, Finished: true}
	close(out)
	return out
}

func unaryToChannel(ctx context.Context, t UnaryTool, params json.RawMessage) <-chan Event {
	out := make(chan Event, 1)
	go func() {
		defer close(out)
		val, err := t.Call(ctx, params)
		if err != nil {
			out <- Event{Err: agenterr.Wrap(agenterr.ToolTransport, "mcp tool call failed", err), Finished: true}
			return
		}
		b, err := json.Marshal(val)
		if err != nil {
			out <- Event{Err: agenterr.Wrap(agenterr.Internal, "encode mcp tool result", err), Finished: true}
			return
		}
		out <- Event{Frame: frameOf(events.ToolFrame(t.Name(), val)), Text: string(b), Finished: true}
	}()
	return out
}

func frameChannelToEvents(frames <-chan events.Frame) <-chan Event {
	out := make(chan Event, 1)
	go func() {
		defer close(out)
		var last events.Frame
		seen := false
		for f := range frames {
			ff := f
			out <- Event{Frame: &ff, Text: stringifyPayload(ff.Payload)}
			last = ff
			seen = true
		}
		finishErr := ""
		if seen && last.Kind == events.KindError {
			finishErr = stringifyPayload(last.Payload)
		}
		if finishErr != "" {
			out <- Event{Err: agenterr.New(agenterr.ToolTransport, finishErr), Finished: true}
			return
		}
		out <- Event{Finished: true}
	}()
	return out
}

func frameOf(f events.Frame) *events.Frame { return &f }

func stringifyPayload(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
