// Package agent implements the Executor (§4.1): the bounded reason-act loop
// that drives one conversation turn across the model client, tool
// dispatcher, stream demultiplexer, and the two memory tiers.
package agent

import "strings"

// Mode selects the loop specialization the Executor runs.
type Mode string

const (
	ModeReAct     Mode = "react"
	ModePrompt    Mode = "prompt"
	ModeDeepThink Mode = "deepthink"
)

// Spec is the Agent configuration (§3 Data model): {name, mode, model_ref,
// system_prompt, role_settings, tool_prompt, max_loops, stop_words, tools[],
// description}.
type Spec struct {
	Name         string
	Mode         Mode
	ModelRef     string
	SystemPrompt string
	RoleSettings string
	ToolPrompt   string
	// MaxLoops <= 0 means "auto": the numerical bound is disabled, but the
	// should-stop latch, retry exhaustion, and stop-predicate conditions
	// still terminate the loop.
	MaxLoops int
	// StopWords are matched case-insensitively against the accumulated
	// visible response; any match latches should_stop.
	StopWords []string
	// ToolNames restricts which registry entries this agent may call.
	// Empty means every registered tool is offered to the model.
	ToolNames []string
	Description string
	// DemuxWindow overrides demux.DefaultWindow; <= 0 uses the default.
	DemuxWindow int
	// DeepThinkURL is the external streaming endpoint ModeDeepThink delegates to.
	DeepThinkURL string
}

// stopMatches implements the stop predicate: true once any configured stop
// word appears anywhere in the accumulated visible text.
func (s Spec) stopMatches(text string) bool {
	if len(s.StopWords) == 0 || text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range s.StopWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
