package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/llm"
)

type fakeSummaryProvider struct {
	reply string
}

func (f *fakeSummaryProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	return llm.Message{Role: "assistant", Content: f.reply}, nil
}

func (f *fakeSummaryProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	return nil
}

func TestSummarizer_MaybeCompact_BelowThresholdNoOp(t *testing.T) {
	store := NewInMemoryStore()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendRecord(context.Background(), "c", Record{Input: "q", Output: "a"}, 0))
	}
	s := &Summarizer{Provider: &fakeSummaryProvider{reply: "condensed"}}
	require.NoError(t, s.MaybeCompact(context.Background(), store, "c", 10, 2))

	n, err := store.Count(context.Background(), "c")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestSummarizer_MaybeCompact_AboveThresholdCondenses(t *testing.T) {
	store := NewInMemoryStore()
	for i := 0; i < 6; i++ {
		require.NoError(t, store.AppendRecord(context.Background(), "c", Record{Input: "q", Output: "a"}, 0))
	}
	s := &Summarizer{Provider: &fakeSummaryProvider{reply: "condensed summary text"}}
	require.NoError(t, s.MaybeCompact(context.Background(), store, "c", 4, 2))

	n, err := store.Count(context.Background(), "c")
	require.NoError(t, err)
	require.Equal(t, 3, n) // 1 summary + 2 kept

	hist, err := store.RecentHistory(context.Background(), "c", 3)
	require.NoError(t, err)
	require.Contains(t, hist, "condensed summary text")
}

func TestSummarizer_NilReceiverIsNoOp(t *testing.T) {
	var s *Summarizer
	store := NewInMemoryStore()
	require.NoError(t, store.AppendRecord(context.Background(), "c", Record{Input: "q", Output: "a"}, 0))
	require.NoError(t, s.MaybeCompact(context.Background(), store, "c", 0, 2))
}
