package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/events"
	"manifold/internal/httptool"
	"manifold/internal/llm"
	"manifold/internal/memory"
	"manifold/internal/tools"
)

// fakeProvider replays a canned sequence of deltas/tool calls per call,
// advancing one slot every invocation of ChatStream.
type fakeProvider struct {
	turns    [][]string // each turn is a slice of delta chunks
	calls    int
	lastMsgs []llm.Message // messages passed to the most recent ChatStream call
}

func (f *fakeProvider) Chat(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string) (llm.Message, error) {
	return llm.Message{}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string, h llm.StreamHandler) error {
	idx := f.calls
	f.calls++
	f.lastMsgs = msgs
	if idx >= len(f.turns) {
		return nil
	}
	for _, chunk := range f.turns[idx] {
		h.OnDelta(chunk)
	}
	return nil
}

type echoLocalTool struct{}

func (echoLocalTool) Name() string               { return "echo" }
func (echoLocalTool) JSONSchema() map[string]any { return map[string]any{"description": "echoes"} }
func (echoLocalTool) Run(ctx context.Context, params json.RawMessage) <-chan tools.Event {
	out := make(chan tools.Event, 1)
	out <- tools.Event{Text: "echoed:" + string(params), Finished: true}
	close(out)
	return out
}

func collectFrames(ch <-chan events.Frame) []events.Frame {
	var out []events.Frame
	for f := range ch {
		out = append(out, f)
	}
	return out
}

func TestExecutor_StopWordLatchesAndEmitsFinish(t *testing.T) {
	provider := &fakeProvider{turns: [][]string{{"the answer is DONE"}}}
	reg := tools.NewRegistry()
	exec := &Executor{
		Spec:       Spec{Mode: ModeReAct, MaxLoops: 5, StopWords: []string{"DONE"}},
		Provider:   provider,
		Registry:   reg,
		Dispatcher: tools.NewDispatcher(reg, httptool.NewInvoker(nil, nil)),
		Store:      memory.NewInMemoryStore(),
	}
	frames := collectFrames(exec.Stream(context.Background(), "hello", "conv1"))
	require.Equal(t, 1, provider.calls)

	var sawFinish bool
	for _, f := range frames {
		if f.Kind == events.KindMessage {
			payload := f.Payload.(map[string]any)
			if final, _ := payload["final"].(bool); final {
				sawFinish = true
				require.Contains(t, payload["text"], "DONE")
			}
		}
	}
	require.True(t, sawFinish)
}

func TestExecutor_MaxLoopsReachedFallsBackToLastResponse(t *testing.T) {
	provider := &fakeProvider{turns: [][]string{{"first"}, {"second"}}}
	reg := tools.NewRegistry()
	exec := &Executor{
		Spec:       Spec{Mode: ModeReAct, MaxLoops: 2},
		Provider:   provider,
		Registry:   reg,
		Dispatcher: tools.NewDispatcher(reg, httptool.NewInvoker(nil, nil)),
		Store:      memory.NewInMemoryStore(),
	}
	frames := collectFrames(exec.Stream(context.Background(), "hello", "conv2"))
	require.Equal(t, 2, provider.calls)

	var last events.Frame
	for _, f := range frames {
		if f.Kind == events.KindMessage {
			last = f
		}
	}
	payload := last.Payload.(map[string]any)
	require.Equal(t, "second", payload["text"])
}

func TestExecutor_PromptModeRunsExactlyOnce(t *testing.T) {
	provider := &fakeProvider{turns: [][]string{{"only pass"}, {"never reached"}}}
	reg := tools.NewRegistry()
	exec := &Executor{
		Spec:       Spec{Mode: ModePrompt, MaxLoops: 5},
		Provider:   provider,
		Registry:   reg,
		Dispatcher: tools.NewDispatcher(reg, httptool.NewInvoker(nil, nil)),
		Store:      memory.NewInMemoryStore(),
	}
	collectFrames(exec.Stream(context.Background(), "hello", "conv3"))
	require.Equal(t, 1, provider.calls)
}

func TestExecutor_ToolCallDispatchesAndContinuesLoop(t *testing.T) {
	provider := &fakeProvider{turns: [][]string{
		{"preamble\n```json\n{\"type\":\"function\",\"function\":{\"name\":\"echo\",\"parameters\":{\"a\":1}}}\n```"},
		{"wrap up STOP"},
	}}
	reg := tools.NewRegistry()
	reg.RegisterLocal(echoLocalTool{})
	exec := &Executor{
		Spec:       Spec{Mode: ModeReAct, MaxLoops: 5, StopWords: []string{"STOP"}},
		Provider:   provider,
		Registry:   reg,
		Dispatcher: tools.NewDispatcher(reg, httptool.NewInvoker(nil, nil)),
		Store:      memory.NewInMemoryStore(),
	}
	frames := collectFrames(exec.Stream(context.Background(), "hello", "conv4"))
	require.Equal(t, 2, provider.calls)

	var sawStatusInvoking bool
	for _, f := range frames {
		if f.Kind == events.KindStatus {
			if payload, ok := f.Payload.(map[string]any); ok && payload["tool"] == "echo" {
				sawStatusInvoking = true
			}
		}
	}
	require.True(t, sawStatusInvoking)
}

func TestExecutor_FinalizeClearsAgentContext(t *testing.T) {
	ctx := context.Background()
	ctxStore := memory.NewInMemoryContextStore()
	require.NoError(t, ctxStore.Store(ctx, "conv6", "planning", json.RawMessage(`{"step":1}`), 0, nil))

	provider := &fakeProvider{turns: [][]string{{"done STOP"}}}
	reg := tools.NewRegistry()
	exec := &Executor{
		Spec:         Spec{Mode: ModeReAct, MaxLoops: 3, StopWords: []string{"STOP"}},
		Provider:     provider,
		Registry:     reg,
		Dispatcher:   tools.NewDispatcher(reg, httptool.NewInvoker(nil, nil)),
		Store:        memory.NewInMemoryStore(),
		AgentContext: ctxStore,
	}
	collectFrames(exec.Stream(ctx, "hello", "conv6"))

	scenarios, err := ctxStore.ListScenarios(ctx, "conv6")
	require.NoError(t, err)
	require.Empty(t, scenarios)
}

func TestExecutor_HistoryInjectedFromStore(t *testing.T) {
	store := memory.NewInMemoryStore()
	require.NoError(t, store.AppendRecord(context.Background(), "conv5", memory.Record{Input: "prior q", Output: "prior a"}, 0))

	provider := &fakeProvider{turns: [][]string{{"done STOP"}}}
	reg := tools.NewRegistry()
	exec := &Executor{
		Spec:       Spec{Mode: ModeReAct, MaxLoops: 3, StopWords: []string{"STOP"}},
		Provider:   provider,
		Registry:   reg,
		Dispatcher: tools.NewDispatcher(reg, httptool.NewInvoker(nil, nil)),
		Store:      store,
		HistoryK:   5,
	}
	collectFrames(exec.Stream(context.Background(), "new q", "conv5"))
	require.NotEmpty(t, provider.lastMsgs)
	require.Contains(t, provider.lastMsgs[0].Content, "history: user: prior q")

	rec, err := store.RecentHistory(context.Background(), "conv5", 5)
	require.NoError(t, err)
	require.Contains(t, rec, "prior q")
}
