// Package prompts builds the default system prompt the Executor seeds
// short-term memory with when an agent's Spec.SystemPrompt is empty.
package prompts

import "fmt"

// DefaultSystemPrompt describes the fenced-JSON tool-call protocol so the
// model knows how to invoke a registered tool.
func DefaultSystemPrompt(name string) string {
	return fmt.Sprintf(`You are %s, an assistant that can call tools to complete the user's request.

Rules:
- ALWAYS plan briefly before acting, then execute one tool call at a time.
- To call a tool, emit a single fenced JSON block and nothing else in that reply:
  `+"```json"+`
  {"type":"function","function":{"name":"<tool_name>","parameters":{...}}}
  `+"```"+`
  Use "type":"api" for HTTP-backed tools and "type":"mcp" for MCP-backed tools; the
  shape of "function" is identical in all three cases.
- Wait for the tool result before deciding on the next step. Never invoke more
  than one tool per reply.
- After a tool result arrives, either call another tool or answer the user directly.
- Never fabricate a tool result; only react to results actually returned.
- Be cautious with destructive operations — prefer a read-only call first when unsure.`, name)
}
