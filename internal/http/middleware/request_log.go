package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/rag-backend/internal/platform/ctxutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

// RequestLogger emits one line per request once the handler returns. For the chat stream that
// is when the event stream closes, so duration covers the whole turn.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		kv := []any{
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		ctx := c.Request.Context()
		if td := ctxutil.GetTraceData(ctx); td != nil {
			kv = append(kv, "trace_id", td.TraceID, "request_id", td.RequestID)
		}
		if uid := ctxutil.UserID(ctx); uid != "" {
			kv = append(kv, "user_id", uid)
		}
		if tid := c.Writer.Header().Get("X-Thread-Id"); tid != "" {
			kv = append(kv, "thread_id", tid)
		}
		if last := c.Errors.Last(); last != nil {
			kv = append(kv, "error", last.Error())
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			log.Error("request failed", kv...)
		case status >= 400:
			log.Warn("request rejected", kv...)
		case route == "/healthcheck":
			log.Debug("request", kv...)
		default:
			log.Info("request", kv...)
		}
	}
}
