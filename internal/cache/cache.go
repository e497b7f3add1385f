// Package cache keeps short-lived user snapshots in Redis for the read endpoints.
// The ledger never reads from it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digkill/veocreator/internal/models"
)

type UserCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewUserCache(client redis.UniversalClient, ttl time.Duration) *UserCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UserCache{client: client, ttl: ttl}
}

func key(userID string) string {
	return "user:" + userID
}

// Get returns the cached snapshot, or nil on a miss.
func (c *UserCache) Get(ctx context.Context, userID string) (*models.User, error) {
	raw, err := c.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached user: %w", err)
	}
	var u models.User
	if err := json.Unmarshal(raw, &u); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		_ = c.client.Del(ctx, key(userID)).Err()
		return nil, nil
	}
	return &u, nil
}

func (c *UserCache) Set(ctx context.Context, user *models.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := c.client.Set(ctx, key(user.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache user: %w", err)
	}
	return nil
}

func (c *UserCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate user: %w", err)
	}
	return nil
}
