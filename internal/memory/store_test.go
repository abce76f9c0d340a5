package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_FlattensKMostRecent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	for i := 0; i < 5; i++ {
		err := s.AppendRecord(ctx, "conv-1", Record{
			Input:  "q",
			Output: "a",
			Time:   time.Now(),
		}, 3)
		require.NoError(t, err)
	}

	hist, err := s.RecentHistory(ctx, "conv-1", 2)
	require.NoError(t, err)
	require.Equal(t, "user: q\n\nassistant: a\n\nuser: q\n\nassistant: a", hist)
}

func TestInMemoryStore_NoRecordsReturnsEmpty(t *testing.T) {
	s := NewInMemoryStore()
	hist, err := s.RecentHistory(context.Background(), "unknown", 5)
	require.NoError(t, err)
	require.Empty(t, hist)
}

func TestInMemoryStore_ZeroKReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.AppendRecord(ctx, "c", Record{Input: "i", Output: "o"}, 10))
	hist, err := s.RecentHistory(ctx, "c", 0)
	require.NoError(t, err)
	require.Empty(t, hist)
}

func TestInMemoryStore_OverflowHistoryExcludesKeptTail(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendRecord(ctx, "c", Record{Input: "q", Output: "a"}, 0))
	}

	overflow, err := s.OverflowHistory(ctx, "c", 2)
	require.NoError(t, err)
	require.Equal(t, 3, strings.Count(overflow, "user: q"))

	recent, err := s.RecentHistory(ctx, "c", 2)
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(recent, "user: q"))
}

func TestInMemoryStore_OverflowHistoryAllKeptReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.AppendRecord(ctx, "c", Record{Input: "q", Output: "a"}, 0))

	overflow, err := s.OverflowHistory(ctx, "c", 5)
	require.NoError(t, err)
	require.Empty(t, overflow)
}

func TestInMemoryStore_CompactOldestReplacesOverflowWithSummary(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendRecord(ctx, "c", Record{Input: "q", Output: "a"}, 0))
	}
	n, err := s.Count(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, 5, n)

	require.NoError(t, s.CompactOldest(ctx, "c", 2, Record{Input: "", Output: "condensed summary"}))

	n, err = s.Count(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, 3, n) // 1 summary + 2 kept

	hist, err := s.RecentHistory(ctx, "c", 3)
	require.NoError(t, err)
	require.Contains(t, hist, "condensed summary")
}
