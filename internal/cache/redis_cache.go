package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var (
	_ MessageCache = (*RedisCache)(nil)
	_ ReplyCache   = (*RedisCache)(nil)
)

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type sentValue struct {
	RemoteMessageID string    `json:"remoteMessageId"`
	SentAt          time.Time `json:"sentAt"`
}

func sentKey(shipmentID uuid.UUID) string {
	return fmt.Sprintf("prompt:%s", shipmentID)
}

func replyKey(messageSID string) string {
	return fmt.Sprintf("reply:%s", messageSID)
}

func (c *RedisCache) StoreSent(ctx context.Context, shipmentID uuid.UUID, remoteMessageID string, sentAt time.Time) error {
	val := sentValue{
		RemoteMessageID: remoteMessageID,
		SentAt:          sentAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, sentKey(shipmentID), b, c.ttl).Err()
}

func (c *RedisCache) GetReply(ctx context.Context, messageSID string) (string, bool, error) {
	text, err := c.rdb.Get(ctx, replyKey(messageSID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (c *RedisCache) StoreReply(ctx context.Context, messageSID, text string) error {
	return c.rdb.Set(ctx, replyKey(messageSID), text, c.ttl).Err()
}
