// Package natskv implements the cache port on NATS JetStream KV,
// letting several hooktrace replicas share aggregation results.
package natskv

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Bucket is the KV bucket holding shared aggregation results.
const Bucket = "hooktrace-results"

// Cache wraps a NATS JetStream KeyValue store as a remote cache.
type Cache struct {
	kv jetstream.KeyValue
}

// Open creates or binds the results bucket and returns a cache over
// it. Entry lifetime is enforced at the bucket level.
func Open(ctx context.Context, js jetstream.JetStream, ttl time.Duration) (*Cache, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: Bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{kv: kv}, nil
}

// New wraps an existing KV bucket.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Get retrieves a cached aggregation result.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set stores a result. The per-call TTL is ignored; the bucket TTL
// governs expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, key, value)
	return err
}

// Delete removes a result.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
