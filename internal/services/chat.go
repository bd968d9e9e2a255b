package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/rag-backend/internal/modules/chat/agent"
	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/envutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

type ChatService interface {
	// Invoke runs one turn and streams it into sink. The turn is bounded by the configured
	// timeout on top of ctx.
	Invoke(ctx context.Context, cfg conversation.RunConfig, content string, sink agent.Sink) (agent.Result, error)
	History(ctx context.Context, userID string) ([]conversation.HistoryEntry, error)
	Thread(ctx context.Context, userID, threadID string) ([]conversation.Message, error)
}

type Runner interface {
	Run(ctx context.Context, cfg conversation.RunConfig, input string, sink agent.Sink) (agent.Result, error)
}

type chatService struct {
	log         *logger.Logger
	runner      Runner
	messages    conversation.MessageLog
	history     conversation.HistoryIndex
	turnTimeout time.Duration
}

// ChatTurnTimeoutFromEnv reads CHAT_TURN_TIMEOUT_SECONDS (default 120).
func ChatTurnTimeoutFromEnv() time.Duration {
	return envutil.Seconds("CHAT_TURN_TIMEOUT_SECONDS", 120*time.Second)
}

func NewChatService(log *logger.Logger, runner Runner, messages conversation.MessageLog, history conversation.HistoryIndex, turnTimeout time.Duration) ChatService {
	return &chatService{
		log:         log.With("service", "ChatService"),
		runner:      runner,
		messages:    messages,
		history:     history,
		turnTimeout: turnTimeout,
	}
}

func (s *chatService) Invoke(ctx context.Context, cfg conversation.RunConfig, content string, sink agent.Sink) (agent.Result, error) {
	if strings.TrimSpace(content) == "" {
		return agent.Result{}, fmt.Errorf("content required: %w", pkgerrors.ErrInvalidArgument)
	}
	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}
	return s.runner.Run(ctx, cfg, content, sink)
}

func (s *chatService) History(ctx context.Context, userID string) ([]conversation.HistoryEntry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user_id required: %w", pkgerrors.ErrTenantViolation)
	}
	out, err := s.history.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []conversation.HistoryEntry{}
	}
	return out, nil
}

func (s *chatService) Thread(ctx context.Context, userID, threadID string) ([]conversation.Message, error) {
	key := conversation.Key{ThreadID: threadID, UserID: userID}
	if err := (conversation.RunConfig{ThreadID: threadID, UserID: userID}).Validate(); err != nil {
		return nil, err
	}
	log, err := s.messages.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	out := log.Messages()
	if out == nil {
		out = []conversation.Message{}
	}
	return out, nil
}
