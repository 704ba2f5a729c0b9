package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aidar/groupmap/internal/domain"
)

// PresenceDedup remembers the last presence payload applied for each
// identity so a repeat of it inside the TTL can skip the write. Only the most
// recent payload counts: A, B, A applies all three.
// Key format: presence:last:<identity>, value: sha256 of the payload
type PresenceDedup struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPresenceDedup creates a PresenceDedup wrapping the given Redis client.
func NewPresenceDedup(client *redis.Client, ttl time.Duration) *PresenceDedup {
	return &PresenceDedup{client: client, ttl: ttl}
}

// Seen atomically records the payload as the latest one and reports whether
// it equals the previous latest.
func (d *PresenceDedup) Seen(ctx context.Context, userID string, update domain.ProfileUpdate) (bool, error) {
	sum, err := digest(update)
	if err != nil {
		return false, err
	}

	prev, err := d.client.SetArgs(ctx, key(userID), sum, redis.SetArgs{TTL: d.ttl, Get: true}).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return prev == sum, nil
}

// Forget drops the record after a write that did not go through.
func (d *PresenceDedup) Forget(ctx context.Context, userID string, _ domain.ProfileUpdate) error {
	return d.client.Del(ctx, key(userID)).Err()
}

func key(userID string) string {
	return "presence:last:" + userID
}

func digest(update domain.ProfileUpdate) (string, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return "", fmt.Errorf("dedup digest: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
