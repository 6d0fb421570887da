package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/repository"
	"github.com/redis/go-redis/v9"
)

const (
	metadataKeyPrefix = "user_metadata:"
)

// metadataRepository keeps every user's metadata in one hash, field per key.
type metadataRepository struct {
	client   redis.Cmdable
	maxBytes int
}

func NewMetadataRepository(client redis.Cmdable, maxBytes int) repository.MetadataRepository {
	return &metadataRepository{
		client:   client,
		maxBytes: maxBytes,
	}
}

func (r *metadataRepository) hashKey(userID string) string {
	return metadataKeyPrefix + userID
}

func (r *metadataRepository) Get(ctx context.Context, userID, key string) (json.RawMessage, error) {
	if userID == "" {
		return nil, errors.New("cannot read metadata for empty userID")
	}

	val, err := r.client.HGet(ctx, r.hashKey(userID), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to read %s for user %s from redis: %v", repository.ErrRemoteUnavailable, key, userID, err)
	}
	if !json.Valid(val) {
		return nil, fmt.Errorf("%w: stored %s for user %s is not valid JSON", repository.ErrRemoteUnavailable, key, userID)
	}
	return json.RawMessage(val), nil
}

func (r *metadataRepository) Set(ctx context.Context, userID, key string, value json.RawMessage) error {
	if userID == "" {
		return errors.New("cannot write metadata for empty userID")
	}
	if !json.Valid(value) {
		return fmt.Errorf("%w: %s value is not valid JSON", repository.ErrRemoteRejected, key)
	}
	if r.maxBytes > 0 && len(value) > r.maxBytes {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", repository.ErrRemoteRejected, key, len(value), r.maxBytes)
	}

	if err := r.client.HSet(ctx, r.hashKey(userID), key, []byte(value)).Err(); err != nil {
		return fmt.Errorf("%w: failed to write %s for user %s to redis: %v", repository.ErrRemoteUnavailable, key, userID, err)
	}
	return nil
}
