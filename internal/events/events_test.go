package events

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteSSE_FormatsEventAndData(t *testing.T) {
	var buf bytes.Buffer
	flushed := false
	err := WriteSSE(&buf, func() { flushed = true }, Message("hello"))
	require.NoError(t, err)
	require.True(t, flushed)

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "event: message\ndata: "))
	require.True(t, strings.HasSuffix(out, "\n\n"))
	require.Contains(t, out, `"text":"hello"`)
}

func TestFinish_EmptyTextStillCarriesSentinel(t *testing.T) {
	f := Finish("")
	payload, ok := f.Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "", payload["text"])
	require.Equal(t, true, payload["final"])
	require.Equal(t, KindMessage, f.Kind)
}

func TestToolFrame_CarriesDeclaredSubKind(t *testing.T) {
	f := ToolFrame("wallet", map[string]any{"balance": 10})
	require.Equal(t, "wallet", f.Tool)
	require.Equal(t, KindTool, f.Kind)
}
