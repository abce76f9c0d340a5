package sensitive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskResponse_PatternMasksAndRecordsMappings(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	p := New(store, 0)

	resp := map[string]any{"email": "alice@example.com"}
	fields := []FieldConfig{{Path: "email", MaskType: MaskPattern, Pattern: "{username}@***"}}

	out, err := p.MaskResponse(ctx, "conv1", resp, fields)
	require.NoError(t, err)
	masked := out.(map[string]any)["email"].(string)
	require.Equal(t, "alice@***", masked)

	recovered, ok, err := p.recoverString(ctx, "conv1", masked)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice@example.com", recovered)
}

func TestMaskResponse_FullMaskRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	p := New(store, 0)

	resp := map[string]any{"token": "sk-abcdefghijklmnop"}
	fields := []FieldConfig{{Path: "token", MaskType: MaskFull}}
	out, err := p.MaskResponse(ctx, "conv2", resp, fields)
	require.NoError(t, err)
	masked := out.(map[string]any)["token"].(string)
	require.Equal(t, "********", masked)

	recovered, ok, err := p.recoverString(ctx, "conv2", masked)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sk-abcdefghijklmnop", recovered)
}

func TestMaskResponse_PartialMaskRoundTripsViaBindingKey(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	p := New(store, 0)

	resp := map[string]any{"data": map[string]any{"accounts": []any{
		map[string]any{"token": "super-secret-value"},
	}}}
	fields := []FieldConfig{{
		Path: "data.accounts[0].token", MaskType: MaskPartial, Identifier: "acct-0", AddFlag: true,
	}}
	out, err := p.MaskResponse(ctx, "conv3", resp, fields)
	require.NoError(t, err)

	wrapped := out.(map[string]any)["data"].(map[string]any)["accounts"].([]any)[0].(map[string]any)["token"].(map[string]any)
	require.Equal(t, true, wrapped[flagKey])
	require.Equal(t, "acct-0", wrapped[bindingKeyKey])

	recovered, found, err := p.recoverValue(ctx, "conv3", wrapped)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "super-secret-value", recovered)
}

func TestRecoverParams_UnrecoverableKeyLeftUnchanged(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	p := New(store, 0)

	header := map[string]any{"X-Request-Id": "abc123"}
	err := p.RecoverParams(ctx, "conv4", header, nil, nil, nil, map[string][]string{}, nil)
	require.NoError(t, err)
	require.Equal(t, "abc123", header["X-Request-Id"])
}

func TestClear_RemovesForwardAndReverseMappings(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	p := New(store, 0)

	resp := map[string]any{"token": "secret-value"}
	_, err := p.MaskResponse(ctx, "conv5", resp, []FieldConfig{{Path: "token", MaskType: MaskFull}})
	require.NoError(t, err)

	require.NoError(t, p.Clear(ctx, "conv5"))

	all, err := store.AllReverse(ctx, "conv5")
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestMaskFull_CapsAtMaxMaskLength(t *testing.T) {
	require.Equal(t, "********", maskFull("a-very-long-secret-value", 8))
	require.Equal(t, "***", maskFull("abc", 8))
}

func TestMaskPattern_SubstitutesLast4(t *testing.T) {
	got := maskPattern("4111111111111111", "****-{last4}")
	require.Equal(t, "****-1111", got)
}
