package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "webhook:"

// Deduplicator claims provider webhook event ids so each event is applied at most once
// across every replica of the service
type Deduplicator struct {
	client goredis.Cmdable
	ttl    time.Duration
}

// NewDeduplicator creates a Redis backed webhook deduplicator. Claims expire after ttl.
func NewDeduplicator(client goredis.Cmdable, ttl time.Duration) *Deduplicator {
	return &Deduplicator{client: client, ttl: ttl}
}

// Claim returns true when this caller is the first to see the event
func (d *Deduplicator) Claim(ctx context.Context, providerName, eventID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKey(providerName, eventID), time.Now().UTC().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook event %s: %w", eventID, err)
	}
	return ok, nil
}

// Release drops a claim so a redelivery of the event is processed again
func (d *Deduplicator) Release(ctx context.Context, providerName, eventID string) error {
	if err := d.client.Del(ctx, dedupKey(providerName, eventID)).Err(); err != nil {
		return fmt.Errorf("failed to release webhook event %s: %w", eventID, err)
	}
	return nil
}

func dedupKey(providerName, eventID string) string {
	return dedupKeyPrefix + providerName + ":" + eventID
}
