// Package openai adapts the OpenAI chat-completions API to llm.Provider.
package openai

import (
	"context"
	"encoding/json"
	"net/http"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"manifold/internal/config"
	"manifold/internal/llm"
	"manifold/internal/observability"
)

type Client struct {
	sdk   sdk.Client
	model string
}

func New(c config.OpenAIConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithAPIKey(c.APIKey), option.WithHTTPClient(httpClient)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: c.Model}
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	log := observability.LoggerWithTrace(ctx)
	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(firstNonEmpty(model, c.model))}
	params.Messages = AdaptMessages(string(params.Model), msgs)
	if len(tools) > 0 {
		params.Tools = AdaptSchemas(tools)
	}

	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Msg("openai_chat_error")
		return llm.Message{}, err
	}
	if len(comp.Choices) == 0 {
		return llm.Message{}, nil
	}
	return toMessage(comp.Choices[0].Message), nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	log := observability.LoggerWithTrace(ctx)
	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(firstNonEmpty(model, c.model))}
	params.Messages = AdaptMessages(string(params.Model), msgs)
	if len(tools) > 0 {
		params.Tools = AdaptSchemas(tools)
	}

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	// Tool-call argument fragments arrive across several chunks, keyed by the
	// API-provided index (not the chunk's own iteration order).
	toolCalls := map[int]*llm.ToolCall{}
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			h.OnDelta(delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			idx := int(tc.Index)
			if toolCalls[idx] == nil {
				toolCalls[idx] = &llm.ToolCall{ID: tc.ID}
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Args = json.RawMessage(string(toolCalls[idx].Args) + tc.Function.Arguments)
			}
		}
	}
	if err := stream.Err(); err != nil {
		log.Error().Err(err).Msg("openai_chat_stream_error")
		return err
	}
	for _, tc := range toolCalls {
		if tc.Name != "" && !isEmptyArgs(string(tc.Args)) {
			h.OnToolCall(*tc)
		}
	}
	return nil
}

func toMessage(msg sdk.ChatCompletionMessage) llm.Message {
	out := llm.Message{Role: "assistant", Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		if fn, ok := tc.AsAny().(sdk.ChatCompletionMessageFunctionToolCall); ok {
			if isEmptyArgs(fn.Function.Arguments) {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				Name: fn.Function.Name,
				Args: json.RawMessage(fn.Function.Arguments),
				ID:   fn.ID,
			})
		}
	}
	return out
}

func isEmptyArgs(s string) bool {
	return s == "" || s == "{}" || s == "null"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
