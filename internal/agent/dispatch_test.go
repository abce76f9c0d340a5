package agent

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"manifold/internal/events"
	"manifold/internal/httptool"
	"manifold/internal/llm"
	"manifold/internal/memory"
	"manifold/internal/tools"
)

type countingLocalTool struct {
	name  string
	calls *int32
}

func (t countingLocalTool) Name() string               { return t.name }
func (t countingLocalTool) JSONSchema() map[string]any  { return map[string]any{"description": "counts"} }
func (t countingLocalTool) Run(ctx context.Context, params json.RawMessage) <-chan tools.Event {
	atomic.AddInt32(t.calls, 1)
	out := make(chan tools.Event, 1)
	out <- tools.Event{Text: t.name + ":done", Finished: true}
	close(out)
	return out
}

func TestExecutor_DispatchNativeCalls_FansOutAndJoinsAll(t *testing.T) {
	var calls int32
	reg := tools.NewRegistry()
	reg.RegisterLocal(countingLocalTool{name: "a", calls: &calls})
	reg.RegisterLocal(countingLocalTool{name: "b", calls: &calls})
	reg.RegisterLocal(countingLocalTool{name: "c", calls: &calls})

	exec := &Executor{
		Registry:   reg,
		Dispatcher: tools.NewDispatcher(reg, httptool.NewInvoker(nil, nil)),
	}
	mem := memory.New("")

	var frames []events.Frame
	emit := func(f events.Frame) { frames = append(frames, f) }

	nativeCalls := []llm.ToolCall{
		{Name: "a", Args: json.RawMessage(`{}`)},
		{Name: "b", Args: json.RawMessage(`{}`)},
		{Name: "c", Args: json.RawMessage(`{}`)},
	}
	exec.dispatchNativeCalls(context.Background(), "conv", mem, nativeCalls, emit, zerolog.Nop())

	require.Equal(t, int32(3), atomic.LoadInt32(&calls))

	var toolResultCount int
	for _, turn := range mem.Snapshot() {
		if turn.Role == memory.RoleToolResult {
			toolResultCount++
		}
	}
	require.Equal(t, 3, toolResultCount)
}

func TestExecutor_DispatchNativeCalls_SingleCallRunsOnce(t *testing.T) {
	var calls int32
	reg := tools.NewRegistry()
	reg.RegisterLocal(countingLocalTool{name: "solo", calls: &calls})

	exec := &Executor{
		Registry:   reg,
		Dispatcher: tools.NewDispatcher(reg, httptool.NewInvoker(nil, nil)),
	}
	mem := memory.New("")
	exec.dispatchNativeCalls(context.Background(), "conv", mem, []llm.ToolCall{{Name: "solo"}}, func(events.Frame) {}, zerolog.Nop())

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
