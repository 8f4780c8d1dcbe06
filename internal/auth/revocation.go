package auth

import (
	"context"
	"time"

	"github.com/Novip1906/tasks-live/internal/storage"
)

const blacklistPrefix = "blacklist:"

// RevocationLedger records tokens invalidated before their natural expiry.
// Each entry lives exactly as long as the token it revokes would have.
type RevocationLedger struct {
	store storage.Store
	now   func() time.Time
}

func NewRevocationLedger(store storage.Store, now func() time.Time) *RevocationLedger {
	if now == nil {
		now = time.Now
	}
	return &RevocationLedger{store: store, now: now}
}

// IsRevoked returns an error wrapping ErrStoreUnavailable when the store
// cannot answer; callers must then reject the token.
func (l *RevocationLedger) IsRevoked(ctx context.Context, token string) (bool, error) {
	return l.store.Exists(ctx, blacklistPrefix+token)
}

// Revoke is a no-op for tokens that have already expired.
func (l *RevocationLedger) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	return l.store.Set(ctx, blacklistPrefix+token, "1", ttl)
}

// RevokeOnce revokes token only if nobody has yet and reports whether this
// call did it. Expired tokens count as revoked by this call.
func (l *RevocationLedger) RevokeOnce(ctx context.Context, token string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return true, nil
	}
	return l.store.SetNX(ctx, blacklistPrefix+token, "1", ttl)
}
