package memory

import (
	"context"
	"sync"
	"time"
)

// Deduplicator remembers webhook claims in process memory for ttl
type Deduplicator struct {
	mu     sync.Mutex
	ttl    time.Duration
	claims map[string]time.Time
}

// NewDeduplicator creates an in-process webhook deduplicator
func NewDeduplicator(ttl time.Duration) *Deduplicator {
	return &Deduplicator{ttl: ttl, claims: make(map[string]time.Time)}
}

func (d *Deduplicator) Claim(ctx context.Context, providerName, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := providerName + ":" + eventID
	now := time.Now()
	if expires, ok := d.claims[key]; ok && (d.ttl <= 0 || now.Before(expires)) {
		return false, nil
	}
	d.claims[key] = now.Add(d.ttl)
	return true, nil
}

func (d *Deduplicator) Release(ctx context.Context, providerName, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claims, providerName+":"+eventID)
	return nil
}
