package tools

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParsedCall is a tool invocation extracted from model output (§4.3).
type ParsedCall struct {
	Type   string // "function" | "api" | "mcp"
	Name   string
	Params json.RawMessage
}

type fencedCall struct {
	Type     string `json:"type"`
	Function struct {
		Name       string          `json:"name"`
		Parameters json.RawMessage `json:"parameters"`
	} `json:"function"`
}

// fencedBlock matches the first fenced code block, capturing its language
// hint (if any) separately from its body so callers can reject hints other
// than "json" (§4.3: the hint is "json", or no hint at all).
var fencedBlock = regexp.MustCompile("(?s)```([A-Za-z0-9_-]*)\\s*\\n?(.*?)```")

// ParseToolCall scans visible text for the first fenced code block and
// attempts to parse it as one of the three tool-call shapes. Text that
// carries no fenced block, a fenced block tagged with a language hint other
// than "json", or a block that isn't a well-formed call, is not a tool call
// at all — it is ordinary visible text (ok is false).
func ParseToolCall(text string) (ParsedCall, bool) {
	m := fencedBlock.FindStringSubmatch(text)
	if m == nil {
		return ParsedCall{}, false
	}
	if hint := m[1]; hint != "" && hint != "json" {
		return ParsedCall{}, false
	}
	body := strings.TrimSpace(m[2])
	var fc fencedCall
	if err := json.Unmarshal([]byte(body), &fc); err != nil {
		return ParsedCall{}, false
	}
	switch fc.Type {
	case "function", "api", "mcp":
	default:
		return ParsedCall{}, false
	}
	if fc.Function.Name == "" {
		return ParsedCall{}, false
	}
	params := fc.Function.Parameters
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	return ParsedCall{Type: fc.Type, Name: fc.Function.Name, Params: params}, true
}
