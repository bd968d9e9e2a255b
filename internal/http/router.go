package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/rag-backend/internal/http/handlers"
	httpMW "github.com/yungbote/rag-backend/internal/http/middleware"
	"github.com/yungbote/rag-backend/internal/observability"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AuthMiddleware *httpMW.AuthMiddleware

	ChatHandler     *httpH.ChatHandler
	DocumentHandler *httpH.DocumentHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachTraceContext())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Chat
	if cfg.ChatHandler != nil {
		api.POST("/chat/invoke", cfg.ChatHandler.Invoke)
		api.GET("/chat/get_user_conversation_history", cfg.ChatHandler.History)
		api.GET("/chat/get_user_conversation_thread", cfg.ChatHandler.Thread)
	}

	// Documents
	if cfg.DocumentHandler != nil {
		api.POST("/document/upload", cfg.DocumentHandler.Upload)
		api.GET("/document/list", cfg.DocumentHandler.List)
		api.DELETE("/document/:document_id", cfg.DocumentHandler.Delete)
	}

	return r
}
