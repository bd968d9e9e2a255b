package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/rag-backend/internal/observability"
	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/platform/openai"
	"github.com/yungbote/rag-backend/internal/platform/redisx"
	"github.com/yungbote/rag-backend/internal/platform/rerank"
	"github.com/yungbote/rag-backend/internal/platform/unstructured"
	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

type Clients struct {
	OpenAI       *openai.Client
	Reranker     *rerank.Client
	Unstructured *unstructured.Client
	Vectors      vectorstore.Store
	// Redis is set only when HISTORY_BACKEND=redis.
	Redis       *goredis.Client
	RedisPrefix string
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")

	ocfg, err := openai.ResolveConfigFromEnv()
	if err != nil {
		return Clients{}, fmt.Errorf("openai config: %w", err)
	}
	oai, err := openai.NewClient(log, ocfg, metrics)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	rcfg, err := rerank.ResolveConfigFromEnv()
	if err != nil {
		return Clients{}, fmt.Errorf("reranker config: %w", err)
	}
	reranker, err := rerank.NewClient(log, rcfg)
	if err != nil {
		return Clients{}, fmt.Errorf("init reranker client: %w", err)
	}

	ucfg, err := unstructured.ResolveConfigFromEnv()
	if err != nil {
		return Clients{}, fmt.Errorf("unstructured config: %w", err)
	}
	parts, err := unstructured.NewClient(log, ucfg)
	if err != nil {
		return Clients{}, fmt.Errorf("init unstructured client: %w", err)
	}

	vectors, err := resolveVectorStore(ctx, log, cfg, metrics)
	if err != nil {
		return Clients{}, err
	}

	out := Clients{OpenAI: oai, Reranker: reranker, Unstructured: parts, Vectors: vectors}
	if cfg.HistoryBackend == "redis" {
		redisCfg, err := redisx.ResolveConfigFromEnv()
		if err != nil {
			return Clients{}, err
		}
		rdb, err := redisx.Connect(ctx, log, redisCfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
		out.RedisPrefix = redisCfg.Prefix
	}
	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
