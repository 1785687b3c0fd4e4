package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/redis"
)

const (
	mirrorKey     = "sf:live:last-good"
	mirrorPattern = "sf:live:*"
)

// Mirror shares the last good response between replicas.
type Mirror interface {
	Load(ctx context.Context) ([]byte, bool, error)
	Store(ctx context.Context, body []byte, ttl time.Duration) error
	Clear(ctx context.Context) (int64, error)
}

type RedisMirror struct {
	client *redis.Client
}

func NewRedisMirror(client *redis.Client) *RedisMirror {
	return &RedisMirror{client: client}
}

func (m *RedisMirror) Load(ctx context.Context) ([]byte, bool, error) {
	var raw json.RawMessage
	found, err := m.client.GetJSON(ctx, mirrorKey, &raw)
	if err != nil || !found {
		return nil, false, err
	}
	return raw, true, nil
}

func (m *RedisMirror) Store(ctx context.Context, body []byte, ttl time.Duration) error {
	return m.client.SetJSON(ctx, mirrorKey, json.RawMessage(body), ttl)
}

func (m *RedisMirror) Clear(ctx context.Context) (int64, error) {
	return m.client.FlushByPattern(ctx, mirrorPattern)
}
