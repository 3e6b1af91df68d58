package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"scenesync/internal/model"
)

// RedisChannel fans envelopes out over Redis pub/sub so every engine
// instance serving a session sees the same stream.
type RedisChannel struct {
	client *redis.Client
}

// NewRedisChannel creates a channel backed by the given Redis client
func NewRedisChannel(client *redis.Client) *RedisChannel {
	return &RedisChannel{client: client}
}

func (c *RedisChannel) topic(sessionID string) string {
	return fmt.Sprintf("scenesync:session:%s", sessionID)
}

// Publish sends one envelope to every subscriber of the session
func (c *RedisChannel) Publish(ctx context.Context, env model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := c.client.Publish(ctx, c.topic(env.SessionID), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", c.topic(env.SessionID), err)
	}
	return nil
}

// Subscribe pumps envelopes for a session into the handler until cancelled
func (c *RedisChannel) Subscribe(ctx context.Context, sessionID string, h Handler) (func(), error) {
	sub := c.client.Subscribe(ctx, c.topic(sessionID))
	// Force the subscription to be established before we report success.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", c.topic(sessionID), err)
	}

	log := logrus.WithFields(logrus.Fields{
		"component":  "broadcast",
		"session_id": sessionID,
	})

	go func() {
		for msg := range sub.Channel() {
			var env model.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.WithError(err).Warn("dropping undecodable envelope")
				continue
			}
			h(env)
		}
	}()

	return func() {
		if err := sub.Close(); err != nil {
			log.WithError(err).Warn("failed to close subscription")
		}
	}, nil
}
