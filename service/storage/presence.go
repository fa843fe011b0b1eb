// Package storage mirrors the registry's online state into redis so
// backend services can answer "which gateway holds this user" without
// asking the gateway itself. The mirror is advisory: delivery authority
// stays with the in-process registry.
package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int

	// GatewayID is stored as the key value so lookups name the instance.
	GatewayID string

	// TTL bounds staleness if a gateway dies without cleaning up.
	TTL time.Duration
}

type Presence struct {
	rdb *redis.Client
	cfg Config
}

func NewPresence(cfg Config) (*Presence, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}
	return &Presence{rdb: rdb, cfg: cfg}, nil
}

// presence key: rt:presence:<user>
func presenceKey(userID int64) string {
	return "rt:presence:" + strconv.FormatInt(userID, 10)
}

func (p *Presence) Online(ctx context.Context, userID int64) error {
	err := p.rdb.Set(ctx, presenceKey(userID), p.cfg.GatewayID, p.cfg.TTL).Err()
	return errors.Wrap(err, "presence online")
}

func (p *Presence) Offline(ctx context.Context, userID int64) error {
	err := p.rdb.Del(ctx, presenceKey(userID)).Err()
	return errors.Wrap(err, "presence offline")
}

// Lookup reports which gateway currently holds the user, if any.
func (p *Presence) Lookup(ctx context.Context, userID int64) (string, bool, error) {
	val, err := p.rdb.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "presence lookup")
	}
	return val, true, nil
}

func (p *Presence) Close() error {
	return p.rdb.Close()
}
