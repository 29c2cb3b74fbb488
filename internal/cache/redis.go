package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache memoizes availability grids per spa and date. Each grid lives
// in one hash so a single DEL drops every service combination of that day.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// GetAvailability returns nil, nil on a miss.
func (c *RedisCache) GetAvailability(ctx context.Context, spaID domain.ID, date, signature string) ([]domain.SlotAvailability, error) {
	data, err := c.client.HGet(ctx, availabilityKey(spaID, date), signature).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var slots []domain.SlotAvailability
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func (c *RedisCache) SetAvailability(ctx context.Context, spaID domain.ID, date, signature string, slots []domain.SlotAvailability) error {
	payload, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	key := availabilityKey(spaID, date)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, signature, payload)
	pipe.Expire(ctx, key, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) InvalidateAvailability(ctx context.Context, spaID domain.ID, date string) error {
	return c.client.Del(ctx, availabilityKey(spaID, date)).Err()
}

func availabilityKey(spaID domain.ID, date string) string {
	return fmt.Sprintf("cache:availability:%s:%s", spaID, date)
}
