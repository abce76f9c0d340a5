package httptool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"manifold/internal/sensitive"
)

func TestInvoke_UnaryJSONResponseIsMaskedAndEmittedAsToolFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/accounts/42", r.URL.Path)
		require.Equal(t, "secret-key", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"sk-abcdefghijklmnop"}`))
	}))
	defer srv.Close()

	store := sensitive.NewInMemoryStore()
	proc := sensitive.New(store, 0)
	inv := NewInvoker(srv.Client(), proc)

	d := Descriptor{
		Name:   "lookup",
		Origin: srv.URL,
		Path:   "/accounts/{id}",
		Method: http.MethodGet,
		Auth:   AuthConfig{Location: "header", Key: "X-Api-Key", Value: "secret-key"},
		ResponseSensitiveFields: []sensitive.FieldConfig{
			{Path: "token", MaskType: sensitive.MaskFull},
		},
	}
	args := map[string]any{"path": map[string]any{"id": "42"}}

	var frame *struct {
		Payload any
	}
	_ = frame
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := inv.Invoke(ctx, "conv1", d, args)
	var got any
	for f := range ch {
		got = f.Payload
	}
	payload := got.(map[string]any)["data"].(map[string]any)
	require.Equal(t, "********", payload["token"])
}

func TestInvoke_NonStreamingNon2xxEmitsErrorFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	inv := NewInvoker(srv.Client(), nil)
	d := Descriptor{Name: "broken", Origin: srv.URL, Path: "/fail", Method: http.MethodGet}

	ch := inv.Invoke(context.Background(), "conv2", d, nil)
	var kinds []string
	for f := range ch {
		kinds = append(kinds, string(f.Kind))
	}
	require.Equal(t, []string{"error"}, kinds)
}

func TestInvoke_StreamingForwardsEachLineUnmasked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("line-one\n"))
		w.Write([]byte("line-two\n"))
	}))
	defer srv.Close()

	inv := NewInvoker(srv.Client(), nil)
	d := Descriptor{Name: "streamer", Origin: srv.URL, Path: "/stream", Method: http.MethodGet, IsStream: true}

	ch := inv.Invoke(context.Background(), "conv3", d, nil)
	var lines []string
	for f := range ch {
		lines = append(lines, f.Payload.(map[string]any)["data"].(string))
	}
	require.Equal(t, []string{"line-one", "line-two"}, lines)
}

func TestInvoke_PathAndQueryAreInterpolated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/widgets/7", r.URL.Path)
		require.Equal(t, "blue", r.URL.Query().Get("color"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	inv := NewInvoker(srv.Client(), nil)
	d := Descriptor{Name: "widget", Origin: srv.URL, Path: "/widgets/{id}", Method: http.MethodGet}
	args := map[string]any{
		"path":  map[string]any{"id": "7"},
		"query": map[string]any{"color": "blue"},
	}

	ch := inv.Invoke(context.Background(), "conv4", d, args)
	for range ch {
	}
}
