package repository

import (
	"context"
	"encoding/json"
	"time"
)

// MetadataRepository stores the per-user metadata blob, one JSON value per key.
// Get returns a nil value and no error when the key was never written.
type MetadataRepository interface {
	Get(ctx context.Context, userID, key string) (json.RawMessage, error)
	Set(ctx context.Context, userID, key string, value json.RawMessage) error
}

type timeoutRepository struct {
	next    MetadataRepository
	timeout time.Duration
}

// WithTimeout bounds every call to next by d. A non-positive d returns next unchanged.
func WithTimeout(next MetadataRepository, d time.Duration) MetadataRepository {
	if d <= 0 {
		return next
	}
	return &timeoutRepository{next: next, timeout: d}
}

func (r *timeoutRepository) Get(ctx context.Context, userID, key string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.Get(ctx, userID, key)
}

func (r *timeoutRepository) Set(ctx context.Context, userID, key string, value json.RawMessage) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.Set(ctx, userID, key, value)
}
