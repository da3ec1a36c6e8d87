// Package cache provides a Redis-backed TTL cache over chain reads for query
// paths. Authorization resolution and the reconciliation sweep never read
// through this cache; stale ownership must not influence transfer decisions.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"landledger/internal/chain"
	"landledger/internal/platform/redis"
	id "landledger/pkg/domain"
)

type cachedParcel struct {
	PropertyID string `json:"property_id"`
	Owner      string `json:"owner"`
}

// ReadCache answers RegisteredParcel lookups from Redis when a fresh entry
// exists, falling back to the live client. With no Redis client configured
// it delegates every read straight to the client.
type ReadCache struct {
	client chain.Client
	redis  *redis.Client
	ttl    time.Duration
}

// New wraps the chain client with a read cache. redisClient may be nil.
func New(client chain.Client, redisClient *redis.Client, ttl time.Duration) *ReadCache {
	return &ReadCache{client: client, redis: redisClient, ttl: ttl}
}

// RegisteredParcel returns the on-chain record for tokenID, cached for the
// configured TTL. Cache failures degrade to a live read, never to an error.
func (c *ReadCache) RegisteredParcel(ctx context.Context, tokenID id.TokenID) (chain.ParcelRecord, error) {
	if c.redis == nil {
		return c.client.RegisteredParcel(ctx, tokenID)
	}

	// Any cache failure, including a miss, degrades to a live read.
	key := cacheKey(tokenID)
	if payload, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		var entry cachedParcel
		if err := json.Unmarshal(payload, &entry); err == nil {
			return chain.ParcelRecord{
				TokenID:    tokenID,
				PropertyID: id.PropertyID(entry.PropertyID),
				Owner:      id.WalletAddress(entry.Owner),
			}, nil
		}
	}

	record, err := c.client.RegisteredParcel(ctx, tokenID)
	if err != nil {
		return chain.ParcelRecord{}, err
	}

	payload, err := json.Marshal(cachedParcel{
		PropertyID: record.PropertyID.String(),
		Owner:      record.Owner.String(),
	})
	if err == nil {
		_ = c.redis.Set(ctx, key, payload, c.ttl).Err()
	}
	return record, nil
}

func cacheKey(tokenID id.TokenID) string {
	return fmt.Sprintf("chain:parcel:%d", tokenID)
}
