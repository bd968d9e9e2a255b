package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/rag-backend/internal/data/repos/chat"
	"github.com/yungbote/rag-backend/internal/data/repos/documents"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

type ChatThreadRepo = chat.ChatThreadRepo
type ChatMessageRepo = chat.ChatMessageRepo
type DocumentRepo = documents.DocumentRepo

type Repos struct {
	ChatThreads  ChatThreadRepo
	ChatMessages ChatMessageRepo
	Documents    DocumentRepo
	ChatStore    *chat.Store
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		ChatThreads:  chat.NewChatThreadRepo(db, log),
		ChatMessages: chat.NewChatMessageRepo(db, log),
		Documents:    documents.NewDocumentRepo(db, log),
		ChatStore:    chat.NewStore(db, log),
	}
}
