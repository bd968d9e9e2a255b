// Package conversation holds the message model of a chat thread. Messages are values:
// enrichment and appends return new values and never touch shared ones.
package conversation

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleTool   Role = "tool"
	RoleSystem Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleHuman, RoleAI, RoleTool, RoleSystem:
		return true
	}
	return false
}

type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type Message struct {
	ID         string          `json:"id"`
	Role       Role            `json:"role"`
	Content    string          `json:"content"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Artifact   json.RawMessage `json:"artifact,omitempty"`

	InteractionID string         `json:"interaction_id,omitempty"`
	GeneratedAt   time.Time      `json:"generated_at,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func Human(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func AI(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAI, Content: content, ToolCalls: calls}
}

// ToolResult is the message answering one tool call. artifact carries the raw payload
// (for retrieval, the document records) next to the model-facing content.
func ToolResult(callID, name, content string, artifact json.RawMessage) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Name: name, Content: content, Artifact: artifact}
}

func (m Message) HasToolCalls() bool {
	return m.Role == RoleAI && len(m.ToolCalls) > 0
}

// Clone returns a deep copy.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			tc.Arguments = append(json.RawMessage(nil), tc.Arguments...)
			out.ToolCalls[i] = tc
		}
	}
	if m.Artifact != nil {
		out.Artifact = append(json.RawMessage(nil), m.Artifact...)
	}
	out.Metadata = maps.Clone(m.Metadata)
	return out
}

// Enrich stamps a message with the interaction it belongs to and its generation time.
// It returns a new message and assigns an ID when the message has none.
func Enrich(m Message, interactionID string, at time.Time) Message {
	out := m.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.InteractionID = interactionID
	out.GeneratedAt = at.UTC()
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	if interactionID != "" {
		out.Metadata["interaction_id"] = interactionID
	}
	out.Metadata["generated_at"] = out.GeneratedAt.Format(time.RFC3339Nano)
	return out
}
