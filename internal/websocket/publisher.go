package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Publisher pushes events into a tenant's redis channel. The ws servers
// subscribed to that channel fan the event out to connected consoles, so
// API servers never hold websocket connections themselves.
type Publisher struct {
	redisClient *redis.Client
}

func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redisClient: redisClient}
}

type eventEnvelope struct {
	Event     string      `json:"event"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func (p *Publisher) PublishTenant(tenantID, event string, payload interface{}) error {
	if tenantID == "" {
		return fmt.Errorf("websocket publish: tenantID required")
	}
	if p.redisClient == nil {
		return fmt.Errorf("websocket publish: redis client not initialised")
	}

	messageJSON, err := json.Marshal(eventEnvelope{
		Event:     event,
		Timestamp: time.Now().Unix(),
		Data:      payload,
	})
	if err != nil {
		return fmt.Errorf("websocket publish: marshal payload: %w", err)
	}

	if err := p.redisClient.Publish(context.Background(), tenantID, string(messageJSON)).Err(); err != nil {
		return fmt.Errorf("websocket publish: redis publish: %w", err)
	}
	return nil
}
