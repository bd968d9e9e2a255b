package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/openai"
)

// Model streams one completion. Content deltas go to onDelta; the returned message holds
// the full content and any tool calls.
type Model interface {
	Stream(ctx context.Context, msgs []conversation.Message, tools []ToolSpec, onDelta func(string) error) (conversation.Message, error)
}

type OpenAIModel struct {
	client *openai.Client
}

func NewOpenAIModel(client *openai.Client) *OpenAIModel {
	return &OpenAIModel{client: client}
}

func (m *OpenAIModel) Stream(ctx context.Context, msgs []conversation.Message, specs []ToolSpec, onDelta func(string) error) (conversation.Message, error) {
	req := openai.ChatRequest{Messages: toChatMessages(msgs)}
	for _, s := range specs {
		req.Tools = append(req.Tools, openai.ToolDefinition{
			Type: "function",
			Function: openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	res, err := m.client.StreamChat(ctx, req, onDelta)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return conversation.Message{}, err
		}
		return conversation.Message{}, fmt.Errorf("%w: %w", pkgerrors.ErrUpstreamModel, err)
	}
	return fromChatMessage(res.Message), nil
}

func toChatMessages(msgs []conversation.Message) []openai.ChatMessage {
	out := make([]openai.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := openai.ChatMessage{Content: m.Content}
		switch m.Role {
		case conversation.RoleHuman:
			cm.Role = openai.RoleUser
		case conversation.RoleSystem:
			cm.Role = openai.RoleSystem
		case conversation.RoleTool:
			cm.Role = openai.RoleTool
			cm.ToolCallID = m.ToolCallID
		default:
			cm.Role = openai.RoleAssistant
			for _, tc := range m.ToolCalls {
				args := string(tc.Arguments)
				if args == "" {
					args = "{}"
				}
				cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: openai.FunctionCall{Name: tc.Name, Arguments: args},
				})
			}
		}
		out = append(out, cm)
	}
	return out
}

func fromChatMessage(cm openai.ChatMessage) conversation.Message {
	msg := conversation.AI(cm.Content)
	for _, tc := range cm.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if tc.Function.Arguments == "" {
			args = nil
		} else if !json.Valid(args) {
			quoted, _ := json.Marshal(tc.Function.Arguments)
			args = quoted
		}
		msg.ToolCalls = append(msg.ToolCalls, conversation.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return msg
}
