package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"manifold/internal/agent"
	"manifold/internal/events"
)

// AgentHandle holds the Executor that one agent id routes to. The request's
// model_id is decoded but not applied; every run uses the Executor's
// Spec.ModelRef.
type AgentHandle struct {
	Executor *agent.Executor
}

type dialogueRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversationId"`
	InitFlag       bool   `json:"initFlag"`
	ModelID        string `json:"model_id"`
}

// handleDialogue implements POST /api/agents/{agent_id}/dialogue: it decodes
// the request, resolves a conversation id, and relays the Executor's frame
// stream as one SSE record per frame. Grounded on the teacher's
// handlers_chat.go writeSSE/keepalive-ticker pattern, generalized from one
// hardcoded engine to a name-keyed agent registry.
func (s *Server) handleDialogue(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	handle, ok := s.agents[agentID]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown agent %q", agentID), http.StatusNotFound)
		return
	}

	var req dialogueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query must not be empty", http.StatusBadRequest)
		return
	}
	conv := req.ConversationID
	if conv == "" {
		conv = uuid.NewString()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fl, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Serializes writes to the SSE stream between the frame drain loop
	// below and the keepalive ticker goroutine.
	var streamMu sync.Mutex
	flush := func() { fl.Flush() }
	writeFrame := func(f events.Frame) {
		streamMu.Lock()
		defer streamMu.Unlock()
		if err := events.WriteSSE(w, flush, f); err != nil {
			log.Warn().Err(err).Str("conv", conv).Msg("dialogue_sse_write_failed")
		}
	}
	writeKeepalive := func() {
		streamMu.Lock()
		defer streamMu.Unlock()
		fmt.Fprint(w, ": keepalive\n\n")
		fl.Flush()
	}

	ctx := r.Context()

	stopKeepalive := make(chan struct{})
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopKeepalive:
				return
			case <-ticker.C:
				writeKeepalive()
			}
		}
	}()
	defer close(stopKeepalive)

	frames := handle.Executor.Stream(ctx, req.Query, conv)
	for f := range frames {
		writeFrame(f)
	}
}
