package memory

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryContextStore_StoreAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryContextStore()

	data := json.RawMessage(`{"step":1}`)
	require.NoError(t, s.Store(ctx, "conv-1", "planning", data, time.Hour, map[string]any{"source": "tool"}))

	rec, ok, err := s.Get(ctx, "conv-1", "planning")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "planning", rec.Scenario)
	require.JSONEq(t, `{"step":1}`, string(rec.Data))
	require.Equal(t, "tool", rec.Metadata["source"])
}

func TestInMemoryContextStore_GetMissingScenario(t *testing.T) {
	s := NewInMemoryContextStore()
	_, ok, err := s.Get(context.Background(), "conv-1", "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInMemoryContextStore_AcceptsArbitraryScenarioNames(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryContextStore()

	for _, scenario := range []string{"wallet_signature", "itinerary_draft", "anything_the_caller_names"} {
		require.NoError(t, s.Store(ctx, "conv-1", scenario, json.RawMessage(`{}`), 0, nil))
	}

	scenarios, err := s.ListScenarios(ctx, "conv-1")
	require.NoError(t, err)
	sort.Strings(scenarios)
	require.Equal(t, []string{"anything_the_caller_names", "itinerary_draft", "wallet_signature"}, scenarios)
}

func TestInMemoryContextStore_GetAllReturnsEveryScenario(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryContextStore()
	require.NoError(t, s.Store(ctx, "conv-1", "a", json.RawMessage(`1`), 0, nil))
	require.NoError(t, s.Store(ctx, "conv-1", "b", json.RawMessage(`2`), 0, nil))

	all, err := s.GetAll(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, json.RawMessage(`1`), all["a"].Data)
	require.Equal(t, json.RawMessage(`2`), all["b"].Data)
}

func TestInMemoryContextStore_DeleteRemovesOneScenario(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryContextStore()
	require.NoError(t, s.Store(ctx, "conv-1", "a", json.RawMessage(`1`), 0, nil))
	require.NoError(t, s.Store(ctx, "conv-1", "b", json.RawMessage(`2`), 0, nil))

	require.NoError(t, s.Delete(ctx, "conv-1", "a"))

	_, ok, err := s.Get(ctx, "conv-1", "a")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.Get(ctx, "conv-1", "b")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestInMemoryContextStore_ClearAllRemovesEveryScenario(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryContextStore()
	require.NoError(t, s.Store(ctx, "conv-1", "a", json.RawMessage(`1`), 0, nil))
	require.NoError(t, s.Store(ctx, "conv-1", "b", json.RawMessage(`2`), 0, nil))
	require.NoError(t, s.Store(ctx, "conv-2", "a", json.RawMessage(`1`), 0, nil))

	require.NoError(t, s.ClearAll(ctx, "conv-1"))

	scenarios, err := s.ListScenarios(ctx, "conv-1")
	require.NoError(t, err)
	require.Empty(t, scenarios)

	// a sibling conversation's scratch data is untouched.
	scenarios, err = s.ListScenarios(ctx, "conv-2")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, scenarios)
}
