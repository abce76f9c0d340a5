// Package memory implements the Short-Term Memory append-only turn log and
// the Redis-backed Memory Store that persists per-conversation turn history.
package memory

import (
	"strings"
	"sync"
	"time"
)

// Role names a conversation turn's speaker. The zero value ("") renders
// without a role prefix.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool-result"
	RoleHistory    Role = "history"
	RoleSystemTime Role = "system-time"
	RoleDatabase   Role = "database"
)

// Turn is a single conversation entry. Turns are ordered by insertion and
// never reordered.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// ShortTerm is an append-only ordered log of turns bound to one conversation.
// Add, Snapshot and Clear take an internal mutex, so they are safe for
// concurrent use (the executor's tool fan-out calls Add from several goroutines).
type ShortTerm struct {
	mu    sync.Mutex
	turns []Turn
}

// New returns an empty short-term memory, optionally seeded with a system
// prompt as the first turn.
func New(systemPrompt string) *ShortTerm {
	s := &ShortTerm{}
	if strings.TrimSpace(systemPrompt) != "" {
		s.turns = append(s.turns, Turn{Role: RoleSystem, Content: systemPrompt, Timestamp: time.Now()})
	}
	return s
}

// Add appends a new turn under the given role.
func (s *ShortTerm) Add(role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: role, Content: content, Timestamp: time.Now()})
}

// Snapshot returns a shallow copy of the turn sequence.
func (s *ShortTerm) Snapshot() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Clear empties the log. Available but unused by the executor's normal path.
func (s *ShortTerm) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Render flattens the log into one paragraph per turn, role-prefixed when the
// role is non-empty, in insertion order.
func Render(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if t.Role != "" {
			b.WriteString(string(t.Role))
			b.WriteString(": ")
		}
		b.WriteString(t.Content)
	}
	return b.String()
}

// Render renders the memory's current turns. Equivalent to Render(s.Snapshot()).
func (s *ShortTerm) Render() string {
	return Render(s.Snapshot())
}
