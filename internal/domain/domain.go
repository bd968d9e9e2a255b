package domain

import (
	"github.com/yungbote/rag-backend/internal/domain/chat"
	"github.com/yungbote/rag-backend/internal/domain/documents"
)

type (
	ChatMessage = chat.ChatMessage
	ChatThread  = chat.ChatThread
	Document    = documents.Document
)

// Models lists every table managed by AutoMigrate.
func Models() []any {
	return []any{
		&ChatThread{},
		&ChatMessage{},
		&Document{},
	}
}
