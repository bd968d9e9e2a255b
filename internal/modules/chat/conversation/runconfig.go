package conversation

import (
	"context"
	"fmt"
	"strings"

	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
)

// RunConfig identifies one conversation turn: the thread, its owning user (the tenant
// boundary) and optionally the request/response exchange.
type RunConfig struct {
	ThreadID      string
	UserID        string
	InteractionID string
}

func (c RunConfig) Key() Key {
	return Key{ThreadID: c.ThreadID, UserID: c.UserID}
}

func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("run config: user_id required: %w", pkgerrors.ErrTenantViolation)
	}
	if strings.TrimSpace(c.ThreadID) == "" {
		return fmt.Errorf("run config: thread_id required: %w", pkgerrors.ErrInvalidArgument)
	}
	return nil
}

// ToRunnable renders the transport-level config map. The checkpoint namespace is the
// user id so persisted state is partitioned per tenant.
func (c RunConfig) ToRunnable() map[string]any {
	configurable := map[string]any{
		"thread_id":     c.ThreadID,
		"user_id":       c.UserID,
		"checkpoint_ns": c.UserID,
	}
	if c.InteractionID != "" {
		configurable["interaction_id"] = c.InteractionID
	}
	return map[string]any{"configurable": configurable}
}

// FromRunnable reverses ToRunnable.
func FromRunnable(m map[string]any) (RunConfig, error) {
	configurable, ok := m["configurable"].(map[string]any)
	if !ok {
		return RunConfig{}, fmt.Errorf("runnable config: missing configurable: %w", pkgerrors.ErrInvalidArgument)
	}
	str := func(k string) string {
		s, _ := configurable[k].(string)
		return s
	}
	cfg := RunConfig{
		ThreadID:      str("thread_id"),
		UserID:        str("user_id"),
		InteractionID: str("interaction_id"),
	}
	if ns := str("checkpoint_ns"); ns != "" && ns != cfg.UserID {
		return RunConfig{}, fmt.Errorf("runnable config: checkpoint_ns %q does not match user: %w", ns, pkgerrors.ErrTenantViolation)
	}
	return cfg, cfg.Validate()
}

type runConfigKey struct{}

func WithRunConfig(ctx context.Context, cfg RunConfig) context.Context {
	return context.WithValue(ctx, runConfigKey{}, cfg)
}

func RunConfigFromContext(ctx context.Context) (RunConfig, bool) {
	if ctx == nil {
		return RunConfig{}, false
	}
	cfg, ok := ctx.Value(runConfigKey{}).(RunConfig)
	return cfg, ok
}
