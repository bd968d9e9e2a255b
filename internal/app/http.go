package app

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	httpx "github.com/yungbote/rag-backend/internal/http"
	httpH "github.com/yungbote/rag-backend/internal/http/handlers"
	httpMW "github.com/yungbote/rag-backend/internal/http/middleware"
	"github.com/yungbote/rag-backend/internal/modules/chat/stream"
	"github.com/yungbote/rag-backend/internal/observability"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

type readyChecker interface {
	Ready(ctx context.Context) error
}

func healthProbes(db *gorm.DB, rdb *goredis.Client, vectors any) map[string]httpH.Probe {
	probes := map[string]httpH.Probe{}
	if db != nil {
		probes["database"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if rdb != nil {
		probes["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if rc, ok := vectors.(readyChecker); ok {
		probes["vector_store"] = rc.Ready
	}
	return probes
}

func wireServer(log *logger.Logger, cfg Config, db *gorm.DB, clients Clients, svcs Services, metrics *observability.Metrics) (*httpx.Server, error) {
	log.Info("Wiring HTTP...")
	authCfg, err := httpMW.ResolveAuthConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return httpx.NewServer(httpx.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     cfg.ServiceName,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, authCfg),
		ChatHandler:     httpH.NewChatHandler(log, svcs.Chat, metrics, stream.DefaultOptions()),
		DocumentHandler: httpH.NewDocumentHandler(log, svcs.Documents, cfg.UploadMaxBytes),
		HealthHandler:   httpH.NewHealthHandler(healthProbes(db, clients.Redis, clients.Vectors)),
	}), nil
}
