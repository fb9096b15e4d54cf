package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"templeadmin/internal/authz"
	"templeadmin/internal/config"
)

// Client wraps the Redis connection shared by every API instance.
// It currently backs the permission grant cache.
type Client struct {
	rdb    *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewClient connects and pings Redis. ttl bounds how long resolved grants are cached.
func NewClient(cfg *config.RedisConfig, ttl time.Duration, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, ttl: ttl, logger: logger}, nil
}

// ── Grant cache ──

const grantPrefix = "grants:user:"

func grantKey(userID uuid.UUID) string {
	return grantPrefix + userID.String()
}

// Get returns the cached grants. Redis errors are treated as a miss.
func (c *Client) Get(ctx context.Context, userID uuid.UUID) (map[string]authz.AccessLevel, bool) {
	raw, err := c.rdb.Get(ctx, grantKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Warn("grant cache read failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
		return nil, false
	}
	grants, err := decodeGrants(raw)
	if err != nil {
		c.logger.Warn("discarding malformed grant cache entry", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, false
	}
	return grants, true
}

func (c *Client) Set(ctx context.Context, userID uuid.UUID, grants map[string]authz.AccessLevel) {
	raw, err := encodeGrants(grants)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, grantKey(userID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("grant cache write failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (c *Client) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := c.rdb.Del(ctx, grantKey(userID)).Err(); err != nil {
		c.logger.Warn("grant cache invalidation failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// Ping is used by the health check.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Levels are stored by name so entries survive reordering of the enum.
func encodeGrants(grants map[string]authz.AccessLevel) ([]byte, error) {
	named := make(map[string]string, len(grants))
	for perm, level := range grants {
		named[perm] = level.String()
	}
	return json.Marshal(named)
}

func decodeGrants(raw []byte) (map[string]authz.AccessLevel, error) {
	var named map[string]string
	if err := json.Unmarshal(raw, &named); err != nil {
		return nil, err
	}
	grants := make(map[string]authz.AccessLevel, len(named))
	for perm, name := range named {
		level, err := authz.ParseLevel(name)
		if err != nil {
			return nil, err
		}
		grants[perm] = level
	}
	return grants, nil
}
