package storage

import (
	"context"
	"time"
)

// Store is the shared key-value capability every component is built on.
// Failures other than a missing key are wrapped in ErrStoreUnavailable.
type Store interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value; ttl == 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error

	SAdd(ctx context.Context, key, member string) error
	SRem(ctx context.Context, key, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	Publish(ctx context.Context, channel, payload string) error
	// Subscribe returns once the subscription is active, so every payload
	// published after it returns is delivered.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription yields payloads in publish order. Messages is closed when the
// subscription ends, either through Close or because the store dropped it.
type Subscription interface {
	Messages() <-chan string
	Close() error
}
