package global

import (
	"relaygate/tools"
	"relaygate/tools/errs"
	"time"
)

// Config is the gateway's whole environment surface. Loaded once at
// startup; secrets missing from the environment are fatal there and only
// there.
type Config struct {
	BindHost string
	BindPort int

	GatewayID string

	// NatsURL points at the shared broadcast bus.
	NatsURL string

	// JWTSecret signs client bearer tokens. Falls back to the shared
	// backend secret when JWT_SECRET is unset.
	JWTSecret []byte

	// InternalSecret guards POST /internal/publish.
	InternalSecret string

	// Redis presence mirror; disabled when RedisAddr is empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PresenceTTL   time.Duration

	LogLevel string

	// LegacyConsumer enables the deprecated in-process broadcast adapter.
	LegacyConsumer bool
}

func Load() (*Config, error) {
	cfg := &Config{
		BindHost:       tools.GetEnv("BIND_HOST", "0.0.0.0"),
		BindPort:       tools.GetEnvInt("BIND_PORT", 8080),
		GatewayID:      tools.GetEnv("GATEWAY_ID", "rt_gw-1"),
		NatsURL:        tools.GetEnv("NATS_URL", "nats://127.0.0.1:4222"),
		InternalSecret: tools.GetEnv("INTERNAL_PUBLISH_SECRET", ""),
		RedisAddr:      tools.GetEnv("REDIS_ADDR", ""),
		RedisPassword:  tools.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:        tools.GetEnvInt("REDIS_DB", 0),
		PresenceTTL:    time.Duration(tools.GetEnvInt("PRESENCE_TTL_SEC", 300)) * time.Second,
		LogLevel:       tools.GetEnv("LOG_LEVEL", "info"),
		LegacyConsumer: tools.GetEnvBool("LEGACY_CONSUMER", false),
	}

	secret := tools.GetEnv("JWT_SECRET", "")
	if secret == "" {
		secret = tools.GetEnv("BACKEND_SECRET", "")
	}
	if secret == "" {
		return nil, errs.ErrMissingSecret.WithDetail("JWT_SECRET or BACKEND_SECRET")
	}
	cfg.JWTSecret = []byte(secret)

	if cfg.InternalSecret == "" {
		return nil, errs.ErrMissingSecret.WithDetail("INTERNAL_PUBLISH_SECRET")
	}
	return cfg, nil
}
