package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scenesync/internal/model"
)

// SessionCache maps invite codes to session metadata in Redis, so code
// uniqueness and join-by-code hold across engine instances.
type SessionCache interface {
	// Reserve atomically claims an invite code for a session. It returns
	// false when another session already holds the code.
	Reserve(ctx context.Context, inviteCode string, meta *model.SessionMeta) (bool, error)
	GetMeta(ctx context.Context, inviteCode string) (*model.SessionMeta, error)
	Delete(ctx context.Context, inviteCode string) error
}

type sessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache creates a session cache whose entries expire with the
// session lifetime
func NewSessionCache(client *redis.Client) SessionCache {
	return &sessionCache{
		client: client,
		ttl:    24 * time.Hour,
	}
}

func (c *sessionCache) key(inviteCode string) string {
	return fmt.Sprintf("invite:%s", inviteCode)
}

func (c *sessionCache) Reserve(ctx context.Context, inviteCode string, meta *model.SessionMeta) (bool, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return false, err
	}
	// SET NX makes two racing creates that drew the same code settle on a
	// single winner; the loser redraws.
	return c.client.SetNX(ctx, c.key(inviteCode), data, c.ttl).Result()
}

func (c *sessionCache) GetMeta(ctx context.Context, inviteCode string) (*model.SessionMeta, error) {
	data, err := c.client.Get(ctx, c.key(inviteCode)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta model.SessionMeta
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *sessionCache) Delete(ctx context.Context, inviteCode string) error {
	return c.client.Del(ctx, c.key(inviteCode)).Err()
}
