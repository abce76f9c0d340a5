package sensitive

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetPath_NestedArrayIndex(t *testing.T) {
	v := map[string]any{"data": map[string]any{"accounts": []any{
		map[string]any{"token": "t0"},
		map[string]any{"token": "t1"},
	}}}
	got, ok := getPath(v, "data.accounts[1].token")
	require.True(t, ok)
	require.Equal(t, "t1", got)
}

func TestGetPath_MissingPathReturnsFalse(t *testing.T) {
	v := map[string]any{"a": map[string]any{}}
	_, ok := getPath(v, "a.b.c")
	require.False(t, ok)
}

func TestSetPath_MutatesInPlace(t *testing.T) {
	v := map[string]any{"a": map[string]any{"b": "old"}}
	ok := setPath(v, "a.b", "new")
	require.True(t, ok)
	require.Equal(t, "new", v["a"].(map[string]any)["b"])
}
