package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/rag-backend/internal/http/response"
	"github.com/yungbote/rag-backend/internal/modules/chat/conversation"
	"github.com/yungbote/rag-backend/internal/modules/chat/stream"
	"github.com/yungbote/rag-backend/internal/observability"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/ctxutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/services"
)

const HeaderThreadID = "X-Thread-Id"

type ChatHandler struct {
	log     *logger.Logger
	chat    services.ChatService
	metrics *observability.Metrics
	stream  stream.Options
}

func NewChatHandler(log *logger.Logger, chat services.ChatService, metrics *observability.Metrics, opts stream.Options) *ChatHandler {
	return &ChatHandler{log: log.With("handler", "ChatHandler"), chat: chat, metrics: metrics, stream: opts}
}

type invokeReq struct {
	Content string `json:"content"`
}

// POST /api/chat/invoke
func (h *ChatHandler) Invoke(c *gin.Context) {
	var req invokeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		response.RespondErr(c, fmt.Errorf("content required: %w", pkgerrors.ErrInvalidArgument))
		return
	}
	threadID := strings.TrimSpace(c.GetHeader(HeaderThreadID))
	if threadID == "" {
		threadID = uuid.NewString()
	}
	cfg := conversation.RunConfig{
		ThreadID:      threadID,
		UserID:        ctxutil.UserID(c.Request.Context()),
		InteractionID: uuid.NewString(),
	}
	if err := cfg.Validate(); err != nil {
		response.RespondErr(c, err)
		return
	}
	c.Header(HeaderThreadID, threadID)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	em := stream.New(h.log, h.metrics, h.stream)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		defer em.Close()
		if _, err := h.chat.Invoke(ctx, cfg, req.Content, em); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return
			}
			h.log.Warn("chat turn failed", "thread_id", threadID, "error", err)
			_ = em.Fail(err)
		}
	}()

	if err := em.Serve(ctx, c.Writer); err != nil && !errors.Is(err, context.Canceled) {
		h.log.Debug("stream ended early", "thread_id", threadID, "error", err)
	}
	cancel()
	<-finished
}

// GET /api/chat/get_user_conversation_history
func (h *ChatHandler) History(c *gin.Context) {
	entries, err := h.chat.History(c.Request.Context(), ctxutil.UserID(c.Request.Context()))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chats": entries})
}

// GET /api/chat/get_user_conversation_thread
func (h *ChatHandler) Thread(c *gin.Context) {
	threadID := strings.TrimSpace(c.GetHeader(HeaderThreadID))
	if threadID == "" {
		threadID = strings.TrimSpace(c.Query("thread_id"))
	}
	msgs, err := h.chat.Thread(c.Request.Context(), ctxutil.UserID(c.Request.Context()), threadID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	c.Header(HeaderThreadID, threadID)
	response.RespondOK(c, gin.H{"messages": msgs})
}
