package persistence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRefreshStore records revoked refresh-token lineages in Redis. Entries
// carry the remaining refresh TTL so the denylist cleans itself up.
type RedisRefreshStore struct {
	client *redis.Client
}

// NewRedisRefreshStore wraps a connected client.
func NewRedisRefreshStore(client *redis.Client) *RedisRefreshStore {
	return &RedisRefreshStore{client: client}
}

func (s *RedisRefreshStore) Revoke(ctx context.Context, lineageID string, ttl time.Duration) error {
	return s.client.Set(ctx, revokedKey(lineageID), "1", ttl).Err()
}

func (s *RedisRefreshStore) IsRevoked(ctx context.Context, lineageID string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKey(lineageID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func revokedKey(lineageID string) string {
	return "auth:revoked:" + lineageID
}
