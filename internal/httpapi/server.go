// Package httpapi exposes the dialogue endpoint (§6 External interfaces)
// over HTTP: one net/http.ServeMux in front of a small registry of
// long-lived agent.Executor instances, one per configured agent id.
package httpapi

import "net/http"

// Server routes the dialogue endpoint to the named agent's Executor.
type Server struct {
	agents map[string]*AgentHandle
	mux    *http.ServeMux
}

// NewServer builds a Server from a name→AgentHandle registry. Names match
// the {agent_id} path segment of the dialogue route.
func NewServer(agents map[string]*AgentHandle) *Server {
	s := &Server{agents: agents, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /api/agents/{agent_id}/dialogue", s.handleDialogue)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
