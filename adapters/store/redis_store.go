package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
	"github.com/redis/go-redis/v9"
)

// consumeScript deletes the nonce only when the stored value matches.
// Returns 1 on success, 0 on mismatch, -1 when the key is absent.
var consumeScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
	return -1
end
if current == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

// RedisNonceStore is a Redis implementation of the NonceStore interface.
// Expiry is delegated to Redis key TTLs.
type RedisNonceStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisNonceStore creates a new Redis nonce store
func NewRedisNonceStore(client redis.UniversalClient) ports.NonceStore {
	return &RedisNonceStore{
		client: client,
		prefix: "pairgate:nonce:",
	}
}

// Put stores the nonce with a TTL equal to its lifetime, replacing any previous one.
// The TTL comes from the record alone so the issuer's clock never meets the local one.
func (s *RedisNonceStore) Put(ctx context.Context, record core.NonceRecord) error {
	if record.IssuedAt.IsZero() {
		return fmt.Errorf("nonce issue time required: %w", core.ErrInvalidNonce)
	}
	ttl := record.Lifetime()
	if ttl <= 0 {
		return fmt.Errorf("nonce already expired: %w", core.ErrInvalidNonce)
	}

	if err := s.client.Set(ctx, s.prefix+record.OwnerKey, record.Value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store nonce: %w: %w", core.ErrStorageUnavailable, err)
	}

	return nil
}

// Consume runs the check-and-delete script so concurrent redemptions cannot both succeed
func (s *RedisNonceStore) Consume(ctx context.Context, ownerKey, value string, now time.Time) error {
	res, err := consumeScript.Run(ctx, s.client, []string{s.prefix + ownerKey}, value).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to consume nonce: %w: %w", core.ErrStorageUnavailable, err)
	}
	if res != 1 {
		return core.ErrInvalidNonce
	}

	return nil
}
