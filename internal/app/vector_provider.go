package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"

	"github.com/yungbote/rag-backend/internal/observability"
	"github.com/yungbote/rag-backend/internal/platform/chromem"
	"github.com/yungbote/rag-backend/internal/platform/logger"
	"github.com/yungbote/rag-backend/internal/platform/qdrant"
	"github.com/yungbote/rag-backend/internal/platform/vectorstore"
)

type VectorProvider string

const (
	VectorProviderQdrant  VectorProvider = "qdrant"
	VectorProviderChromem VectorProvider = "chromem"
)

var (
	newQdrantVectorStore  = qdrant.NewVectorStore
	newChromemVectorStore = chromem.New
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider     VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorMissingQdrantURL    VectorProviderBootstrapErrorCode = "missing_qdrant_url"
	VectorProviderBootstrapErrorInvalidQdrantURL    VectorProviderBootstrapErrorCode = "invalid_qdrant_url"
	VectorProviderBootstrapErrorMissingQdrantColl   VectorProviderBootstrapErrorCode = "missing_qdrant_collection"
	VectorProviderBootstrapErrorInvalidQdrantVector VectorProviderBootstrapErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderBootstrapErrorQdrantConfigFailed  VectorProviderBootstrapErrorCode = "qdrant_config_failed"
	VectorProviderBootstrapErrorConnectFailed       VectorProviderBootstrapErrorCode = "connect_failed"
	VectorProviderBootstrapErrorProviderInitFailed  VectorProviderBootstrapErrorCode = "provider_init_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf("vector provider bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore builds the backend named by VECTOR_BACKEND. Qdrant is probed for
// readiness before it is handed out.
func resolveVectorStore(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (vectorstore.Store, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.VectorBackend))
	log.Info("Selecting vector store provider", "provider", provider)

	switch VectorProvider(provider) {
	case VectorProviderQdrant:
		qcfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			return nil, bootstrapFailed(log, provider, err)
		}
		vs, err := newQdrantVectorStore(log, qcfg)
		if err != nil {
			return nil, bootstrapFailed(log, provider, err)
		}
		if err := vs.Ready(ctx); err != nil {
			return nil, bootstrapFailed(log, provider, err)
		}
		return instrumentVectorStore(provider, vs, metrics), nil

	case VectorProviderChromem:
		vs, err := newChromemVectorStore(log, chromem.ResolveConfigFromEnv())
		if err != nil {
			return nil, bootstrapFailed(log, provider, err)
		}
		return instrumentVectorStore(provider, vs, metrics), nil

	default:
		err := &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: provider,
			Cause:    fmt.Errorf("unsupported vector provider %q", provider),
		}
		log.Error("Vector store provider selection failed", "provider", provider, "error_code", err.Code, "error", err)
		return nil, err
	}
}

func bootstrapFailed(log *logger.Logger, provider string, err error) error {
	classified := classifyVectorProviderBootstrapError(provider, err)
	log.Error(
		"Vector store provider bootstrap failed",
		"provider", provider,
		"error_code", vectorProviderBootstrapErrorCode(classified),
		"error", classified,
	)
	return classified
}

func classifyVectorProviderBootstrapError(provider string, err error) error {
	code := VectorProviderBootstrapErrorProviderInitFailed

	var urlErr *neturl.Error
	var netErr net.Error
	var cfgErr *qdrant.ConfigError
	switch {
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		code = VectorProviderBootstrapErrorConnectFailed
	case strings.Contains(strings.ToLower(err.Error()), "connection refused"):
		code = VectorProviderBootstrapErrorConnectFailed
	case errors.As(err, &cfgErr):
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderBootstrapErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderBootstrapErrorInvalidQdrantURL
		case qdrant.ConfigErrorMissingCollection:
			code = VectorProviderBootstrapErrorMissingQdrantColl
		case qdrant.ConfigErrorInvalidVectorDim:
			code = VectorProviderBootstrapErrorInvalidQdrantVector
		default:
			code = VectorProviderBootstrapErrorQdrantConfigFailed
		}
	}
	return &VectorProviderBootstrapError{Code: code, Provider: provider, Cause: err}
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return VectorProviderBootstrapErrorConnectFailed
}
