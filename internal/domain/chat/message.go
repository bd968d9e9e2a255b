package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ChatMessage struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   string    `gorm:"column:user_id;not null;index:idx_chat_message_thread_seq,unique,priority:1" json:"user_id"`
	ThreadID string    `gorm:"column:thread_id;not null;index:idx_chat_message_thread_seq,unique,priority:2" json:"thread_id"`

	Seq int64 `gorm:"column:seq;not null;index:idx_chat_message_thread_seq,unique,priority:3" json:"seq"`

	Role       string         `gorm:"column:role;not null;index" json:"role"`
	Content    string         `gorm:"column:content;type:text;not null" json:"content"`
	Name       string         `gorm:"column:name" json:"name,omitempty"`
	ToolCallID string         `gorm:"column:tool_call_id" json:"tool_call_id,omitempty"`
	ToolCalls  datatypes.JSON `gorm:"type:jsonb;column:tool_calls" json:"tool_calls,omitempty"`
	Artifact   datatypes.JSON `gorm:"type:jsonb;column:artifact" json:"artifact,omitempty"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`

	InteractionID string    `gorm:"column:interaction_id;index" json:"interaction_id,omitempty"`
	GeneratedAt   time.Time `gorm:"column:generated_at;not null" json:"generated_at"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_message" }
