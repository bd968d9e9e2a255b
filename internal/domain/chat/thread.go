package chat

import "time"

// ChatThread is the history index row of one conversation. Thread ids are client supplied
// and only unique per user, so the key is (user_id, thread_id).
type ChatThread struct {
	UserID   string `gorm:"column:user_id;primaryKey" json:"user_id"`
	ThreadID string `gorm:"column:thread_id;primaryKey" json:"thread_id"`

	// Per-thread sequencing for chat_message.seq.
	NextSeq int64 `gorm:"column:next_seq;not null" json:"next_seq"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (ChatThread) TableName() string { return "chat_thread" }
