package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShortTerm_SystemPromptIsFirstTurn(t *testing.T) {
	m := New("you are helpful")
	m.Add(RoleUser, "hi")

	turns := m.Snapshot()
	require.Len(t, turns, 2)
	require.Equal(t, RoleSystem, turns[0].Role)
	require.Equal(t, "you are helpful", turns[0].Content)
}

func TestShortTerm_NoSystemPromptStartsEmpty(t *testing.T) {
	m := New("")
	require.Empty(t, m.Snapshot())
}

func TestRender_PrefixesNonEmptyRolesOnly(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Content: "hello"},
		{Role: "", Content: "raw line"},
		{Role: RoleToolResult, Content: "42"},
	}
	got := Render(turns)
	require.Equal(t, "user: hello\n\nraw line\n\ntool-result: 42", got)
}

func TestSnapshot_IsShallowCopyNotAliased(t *testing.T) {
	m := New("")
	m.Add(RoleUser, "one")
	snap := m.Snapshot()
	m.Add(RoleUser, "two")
	require.Len(t, snap, 1)
	require.Len(t, m.Snapshot(), 2)
}

func TestClear_EmptiesLog(t *testing.T) {
	m := New("sys")
	m.Add(RoleUser, "hi")
	m.Clear()
	require.Empty(t, m.Snapshot())
}
