package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type ChatRequest struct {
	Messages []ChatMessage
	Tools    []ToolDefinition
}

type ChatResult struct {
	Message      ChatMessage
	FinishReason string
	InputTokens  int
	OutputTokens int
}

type chatCompletionRequest struct {
	Model         string           `json:"model"`
	Messages      []ChatMessage    `json:"messages"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	Stream        bool             `json:"stream"`
	StreamOptions map[string]any   `json:"stream_options,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error json.RawMessage `json:"error"`
}

// StreamChat runs one streamed chat completion. Content deltas go to onDelta as they
// arrive; tool-call fragments are accumulated and returned on the final message.
// An onDelta error aborts the stream.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest, onDelta func(delta string) error) (ChatResult, error) {
	const path = "/v1/chat/completions"
	start := time.Now()
	body := chatCompletionRequest{
		Model:         c.cfg.ChatModel,
		Messages:      req.Messages,
		Tools:         req.Tools,
		Stream:        true,
		StreamOptions: map[string]any{"include_usage": true},
		Temperature:   c.cfg.Temperature,
	}

	resp, err := c.send(ctx, path, body, "text/event-stream")
	if err != nil {
		c.metrics.ObserveLLMRequest(c.cfg.ChatModel, path, statusLabel(err), time.Since(start), 0, 0)
		return ChatResult{}, err
	}
	defer resp.Body.Close()

	var (
		content strings.Builder
		result  ChatResult
		calls   = map[int]*ToolCall{}
	)
	err = streamSSE(resp.Body, func(_ string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			return nil
		}
		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if len(chunk.Error) > 0 && string(chunk.Error) != "null" {
			return fmt.Errorf("openai stream error: %s", string(chunk.Error))
		}
		if chunk.Usage != nil {
			result.InputTokens = chunk.Usage.PromptTokens
			result.OutputTokens = chunk.Usage.CompletionTokens
		}
		for _, choice := range chunk.Choices {
			if choice.Index != 0 {
				continue
			}
			if choice.FinishReason != "" {
				result.FinishReason = choice.FinishReason
			}
			for _, tc := range choice.Delta.ToolCalls {
				acc, ok := calls[tc.Index]
				if !ok {
					acc = &ToolCall{Type: "function"}
					calls[tc.Index] = acc
				}
				if tc.ID != "" {
					acc.ID = tc.ID
				}
				if tc.Type != "" {
					acc.Type = tc.Type
				}
				acc.Function.Name += tc.Function.Name
				acc.Function.Arguments += tc.Function.Arguments
			}
			if d := strings.TrimRight(choice.Delta.Content, "\u0000"); d != "" {
				content.WriteString(d)
				if onDelta != nil {
					if err := onDelta(d); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		c.metrics.ObserveLLMRequest(c.cfg.ChatModel, path, statusLabel(err), time.Since(start), result.InputTokens, result.OutputTokens)
		return ChatResult{}, err
	}
	c.metrics.ObserveLLMRequest(c.cfg.ChatModel, path, "ok", time.Since(start), result.InputTokens, result.OutputTokens)

	result.Message = ChatMessage{Role: RoleAssistant, Content: content.String()}
	idx := make([]int, 0, len(calls))
	for i := range calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		result.Message.ToolCalls = append(result.Message.ToolCalls, *calls[i])
	}
	return result, nil
}
