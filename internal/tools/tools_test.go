package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/httptool"
)

func TestParseToolCall_FunctionShape(t *testing.T) {
	text := "preamble\n```json\n{\"type\":\"function\",\"function\":{\"name\":\"echo\",\"parameters\":{\"msg\":\"hi\"}}}\n```\ntrailer"
	call, ok := ParseToolCall(text)
	require.True(t, ok)
	require.Equal(t, "function", call.Type)
	require.Equal(t, "echo", call.Name)
}

func TestParseToolCall_PlainTextIsNotACall(t *testing.T) {
	_, ok := ParseToolCall("just a normal reply with no fence")
	require.False(t, ok)
}

func TestParseToolCall_MalformedFenceIsNotACall(t *testing.T) {
	_, ok := ParseToolCall("```json\n{not json\n```")
	require.False(t, ok)
}

func TestParseToolCall_NoHintStillParses(t *testing.T) {
	text := "```\n{\"type\":\"function\",\"function\":{\"name\":\"echo\",\"parameters\":{}}}\n```"
	call, ok := ParseToolCall(text)
	require.True(t, ok)
	require.Equal(t, "echo", call.Name)
}

func TestParseToolCall_NonJSONHintIsNotACall(t *testing.T) {
	text := "```python\n{\"type\":\"function\",\"function\":{\"name\":\"echo\",\"parameters\":{}}}\n```"
	_, ok := ParseToolCall(text)
	require.False(t, ok)
}

type echoTool struct{}

func (echoTool) Name() string                 { return "echo" }
func (echoTool) JSONSchema() map[string]any   { return map[string]any{"description": "echoes input"} }
func (echoTool) Run(ctx context.Context, params json.RawMessage) <-chan Event {
	out := make(chan Event, 1)
	out <- Event{Text: string(params), Finished: true}
	close(out)
	return out
}

func TestDispatch_LocalToolNotFoundYieldsNonFatalError(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, httptool.NewInvoker(nil, nil))
	ch := d.Dispatch(context.Background(), "conv1", ParsedCall{Type: "function", Name: "missing", Params: json.RawMessage("{}")})
	var ev Event
	for e := range ch {
		ev = e
	}
	require.Error(t, ev.Err)
	require.True(t, ev.Finished)
}

func TestDispatch_LocalToolRunsAndFinishes(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterLocal(echoTool{})
	d := NewDispatcher(reg, httptool.NewInvoker(nil, nil))
	ch := d.Dispatch(context.Background(), "conv2", ParsedCall{Type: "function", Name: "echo", Params: json.RawMessage(`{"a":1}`)})
	var last Event
	for e := range ch {
		last = e
	}
	require.True(t, last.Finished)
	require.NoError(t, last.Err)
}

func TestDispatch_HTTPToolRoutesThroughInvoker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	reg := NewRegistry()
	reg.RegisterHTTP(httptool.Descriptor{Name: "ping", Origin: srv.URL, Path: "/ping", Method: http.MethodGet}, map[string]any{"description": "pings"})
	d := NewDispatcher(reg, httptool.NewInvoker(srv.Client(), nil))
	ch := d.Dispatch(context.Background(), "conv3", ParsedCall{Type: "api", Name: "ping", Params: json.RawMessage("{}")})

	var sawFrame, finished bool
	for e := range ch {
		if e.Frame != nil {
			sawFrame = true
		}
		if e.Finished {
			finished = true
		}
	}
	require.True(t, sawFrame)
	require.True(t, finished)
}

func TestRegistry_SchemasIncludesAllKinds(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterLocal(echoTool{})
	reg.RegisterHTTP(httptool.Descriptor{Name: "ping"}, map[string]any{"description": "pings"})
	schemas := reg.Schemas()
	require.Len(t, schemas, 2)
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterLocal(echoTool{})
	kind, ok := reg.Lookup("echo")
	require.True(t, ok)
	require.Equal(t, KindLocal, kind)

	reg.Unregister("echo")
	_, ok = reg.Lookup("echo")
	require.False(t, ok)
}
