package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/rag-backend/internal/http/response"
	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/ctxutil"
	"github.com/yungbote/rag-backend/internal/platform/envutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

type AuthConfig struct {
	Secret string
	// Algorithms is the allow-list of signing methods, e.g. HS256.
	Algorithms []string
}

// ResolveAuthConfigFromEnv reads JWT_SECRET and JWT_ALG (comma list, default HS256).
func ResolveAuthConfigFromEnv() (AuthConfig, error) {
	cfg := AuthConfig{
		Secret:     envutil.String("JWT_SECRET", ""),
		Algorithms: envutil.StringList("JWT_ALG", []string{"HS256"}),
	}
	if cfg.Secret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required: %w", pkgerrors.ErrInvalidConfig)
	}
	for _, alg := range cfg.Algorithms {
		switch alg {
		case "HS256", "HS384", "HS512":
		default:
			return cfg, fmt.Errorf("JWT_ALG %q not supported: %w", alg, pkgerrors.ErrInvalidConfig)
		}
	}
	return cfg, nil
}

type AuthMiddleware struct {
	log *logger.Logger
	cfg AuthConfig
}

func NewAuthMiddleware(log *logger.Logger, cfg AuthConfig) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), cfg: cfg}
}

// Verify parses a bearer token and returns ctx carrying the token subject as user id.
func (am *AuthMiddleware) Verify(ctx context.Context, tokenString string) (context.Context, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(am.cfg.Secret), nil
	}, jwt.WithValidMethods(am.cfg.Algorithms), jwt.WithExpirationRequired())
	if err != nil {
		return ctx, fmt.Errorf("parse token: %v: %w", err, pkgerrors.ErrUnauthorized)
	}
	if !parsed.Valid {
		return ctx, fmt.Errorf("invalid or expired token: %w", pkgerrors.ErrUnauthorized)
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return ctx, fmt.Errorf("token has no subject: %w", pkgerrors.ErrUnauthorized)
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: sub, Claims: claims}), nil
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearer(c)
		if tokenString == "" {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing or invalid token"))
			c.Abort()
			return
		}
		ctx, err := am.Verify(c.Request.Context(), tokenString)
		if err != nil {
			am.log.Debug("token rejected", "error", err)
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", err)
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
