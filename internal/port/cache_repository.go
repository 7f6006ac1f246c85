package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key claimed by SetIdempotency
	ReleaseIdempotency(ctx context.Context, key string) error

	// RevokeToken marks a token id as signed out until ttl elapses
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error

	// IsTokenRevoked reports whether a token id has been signed out
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}
