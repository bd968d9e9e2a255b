package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/yungbote/rag-backend/internal/pkg/errors"
	"github.com/yungbote/rag-backend/internal/platform/envutil"
	"github.com/yungbote/rag-backend/internal/platform/logger"
)

type Config struct {
	Port           string
	LogMode        string
	ServiceName    string
	Environment    string
	VectorBackend  string
	HistoryBackend string
	UploadMaxBytes int64
	MetricsEnabled bool
}

// LoadFileDefaults reads the YAML file named by APP_CONFIG_FILE, a flat map of
// environment variable names to values, and exports every entry that the environment
// does not already set.
func LoadFileDefaults(path string) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read config file: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return 0, fmt.Errorf("parse config file %s: %v: %w", path, err, pkgerrors.ErrInvalidConfig)
	}
	applied := 0
	for k, v := range values {
		key := strings.ToUpper(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, yamlScalar(v)); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func yamlScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, yamlScalar(p))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		Port:           envutil.String("APP_PORT", "8080"),
		LogMode:        envutil.String("LOG_MODE", "development"),
		ServiceName:    envutil.String("OTEL_SERVICE_NAME", "rag-backend"),
		Environment:    envutil.String("APP_ENV", "development"),
		VectorBackend:  strings.ToLower(envutil.String("VECTOR_BACKEND", "qdrant")),
		HistoryBackend: strings.ToLower(envutil.String("HISTORY_BACKEND", "sql")),
		UploadMaxBytes: int64(envutil.Int("UPLOAD_MAX_BYTES", 50<<20)),
		MetricsEnabled: envutil.Bool("METRICS_ENABLED", true),
	}
	switch cfg.HistoryBackend {
	case "sql", "redis", "memory":
	default:
		return cfg, fmt.Errorf("HISTORY_BACKEND %q must be sql, redis or memory: %w", cfg.HistoryBackend, pkgerrors.ErrInvalidConfig)
	}
	if log != nil {
		log.Info("Loaded configuration",
			"port", cfg.Port,
			"vector_backend", cfg.VectorBackend,
			"history_backend", cfg.HistoryBackend,
		)
	}
	return cfg, nil
}
