package memory

import (
	"context"
	"fmt"
	"strings"

	"manifold/internal/llm"
)

// Summarizer condenses overflow persisted records into one synthetic Record
// so a long-running conversation's history doesn't either grow unbounded or
// silently drop turns once past the plain maxRecords cap (§4.9 addendum:
// optional long-history compaction layered on top of K-most-recent
// flattening). Grounded on the teacher's agentic_memory.go pattern of
// calling the chat-completions model to produce a condensed note before
// folding it back into stored context.
type Summarizer struct {
	Provider llm.Provider
	Model    string
}

// MaybeCompact runs the compaction path once the conversation's record count
// exceeds threshold, keeping the keepLast most recent records verbatim and
// replacing everything older with one summarized record. threshold <= 0
// disables compaction entirely.
func (s *Summarizer) MaybeCompact(ctx context.Context, store Store, conv string, threshold, keepLast int) error {
	if s == nil || s.Provider == nil || threshold <= 0 {
		return nil
	}
	count, err := store.Count(ctx, conv)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	if count <= threshold {
		return nil
	}

	history, err := store.OverflowHistory(ctx, conv, keepLast)
	if err != nil {
		return fmt.Errorf("load overflow history: %w", err)
	}
	if strings.TrimSpace(history) == "" {
		return nil
	}

	prompt := "Summarize the following conversation history into a few dense sentences " +
		"that preserve facts, decisions, and open threads a later turn would need:\n\n" + history
	resp, err := s.Provider.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil, s.Model)
	if err != nil {
		return fmt.Errorf("summarize history: %w", err)
	}

	summary := Record{Input: "", Output: strings.TrimSpace(resp.Content)}
	return store.CompactOldest(ctx, conv, keepLast, summary)
}
