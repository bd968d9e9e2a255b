package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/rag-backend/internal/data/repos"
	"github.com/yungbote/rag-backend/internal/data/repos/chat"
	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

// Conversation holds the two conversation ports chosen by HISTORY_BACKEND.
type Conversation struct {
	Messages conversation.MessageLog
	History  conversation.HistoryIndex
}

func wireRepos(db *gorm.DB, log *logger.Logger) repos.Repos {
	log.Info("Wiring repos...")
	return repos.New(db, log)
}

func wireConversation(log *logger.Logger, cfg Config, rs repos.Repos, clients Clients) Conversation {
	switch cfg.HistoryBackend {
	case "memory":
		mem := conversation.NewMemoryStore()
		log.Warn("conversation store is in memory; threads are lost on restart")
		return Conversation{Messages: mem, History: mem}
	case "redis":
		return Conversation{
			Messages: rs.ChatStore,
			History:  chat.NewRedisHistory(clients.Redis, log, clients.RedisPrefix),
		}
	default:
		return Conversation{Messages: rs.ChatStore, History: rs.ChatStore}
	}
}
