package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableClient points at a port nothing listens on, so every command fails fast.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestMetadataRepository_SetRejectsOversizedValue(t *testing.T) {
	repo := NewMetadataRepository(unreachableClient(t), 16)

	err := repo.Set(context.Background(), "user-1", "savedProperties", json.RawMessage(`[{"id":1,"name":"a long name"}]`))
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrRemoteRejected)
}

func TestMetadataRepository_SetRejectsInvalidJSON(t *testing.T) {
	repo := NewMetadataRepository(unreachableClient(t), 0)

	err := repo.Set(context.Background(), "user-1", "savedProperties", json.RawMessage(`[{`))
	assert.ErrorIs(t, err, repository.ErrRemoteRejected)
}

func TestMetadataRepository_ConnectionErrorsAreUnavailable(t *testing.T) {
	repo := NewMetadataRepository(unreachableClient(t), 1024)
	ctx := context.Background()

	_, err := repo.Get(ctx, "user-1", "savedProperties")
	assert.ErrorIs(t, err, repository.ErrRemoteUnavailable)

	err = repo.Set(ctx, "user-1", "savedProperties", json.RawMessage(`[]`))
	assert.ErrorIs(t, err, repository.ErrRemoteUnavailable)
}

func TestMetadataRepository_EmptyUserID(t *testing.T) {
	repo := NewMetadataRepository(unreachableClient(t), 1024)

	_, err := repo.Get(context.Background(), "", "savedProperties")
	assert.Error(t, err)
	assert.Error(t, repo.Set(context.Background(), "", "savedProperties", json.RawMessage(`[]`)))
}
