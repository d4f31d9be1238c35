package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cinequiz/apiserver/config"
	"github.com/cinequiz/apiserver/types"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"go.uber.org/zap"
)

const revokedKeyPrefix = "revoked:"

// RevokedTokenCache keeps revoked refresh token ids in Redis. Each key
// expires together with the token it blocks, so the set never needs purging.
type RevokedTokenCache struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Addr).Wrap(err)
	}
	return client, nil
}

func NewRevokedTokenCache(client *redis.Client, logger *zap.Logger) *RevokedTokenCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevokedTokenCache{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

func revokedKey(tokenID string) string {
	return fmt.Sprintf("%s%s", revokedKeyPrefix, tokenID)
}

// Revoke stores the token id until the token's own expiry. SET overwrites,
// so revoking twice is a no-op.
func (c *RevokedTokenCache) Revoke(ctx context.Context, token types.RevokedToken) error {
	ttl := token.ExpiresAt.Sub(c.now())
	if ttl < time.Second {
		ttl = time.Second
	}

	key := revokedKey(token.TokenID)
	if err := c.client.Set(ctx, key, strconv.FormatInt(token.UserID, 10), ttl).Err(); err != nil {
		c.logger.Error("failed to store revoked token", zap.Error(err), zap.String("token_id", token.TokenID))
		return oops.Code("REVOKED_TOKEN_CACHE_SET_FAILED").With("token_id", token.TokenID).Wrap(err)
	}
	return nil
}

func (c *RevokedTokenCache) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.client.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		c.logger.Error("failed to look up revoked token", zap.Error(err), zap.String("token_id", tokenID))
		return false, oops.Code("REVOKED_TOKEN_CACHE_LOOKUP_FAILED").With("token_id", tokenID).Wrap(err)
	}
	return n > 0, nil
}
