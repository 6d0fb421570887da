//go:build integration

package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/repository"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var testDB *mongo.Database

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}
	if err = pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mongo",
		Tag:        "5.0",
		Env: []string{
			"MONGO_INITDB_ROOT_USERNAME=root",
			"MONGO_INITDB_ROOT_PASSWORD=password",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start MongoDB resource: %s", err)
	}

	uri := fmt.Sprintf("mongodb://root:password@%s/?authSource=admin", resource.GetHostPort("27017/tcp"))
	var client *mongo.Client
	if err = pool.Retry(func() error {
		var connErr error
		client, connErr = mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
		if connErr != nil {
			return connErr
		}
		return client.Ping(context.Background(), nil)
	}); err != nil {
		log.Fatalf("Could not connect to MongoDB: %s", err)
	}
	testDB = client.Database("saved_service_test")

	code := m.Run()

	_ = client.Disconnect(context.Background())
	if err := pool.Purge(resource); err != nil {
		log.Printf("Could not purge MongoDB: %s", err)
	}
	os.Exit(code)
}

func TestMetadataRepository_Integration_RoundTrip(t *testing.T) {
	repo := NewMetadataRepository(testDB, "user_metadata", 8192)
	ctx := context.Background()

	val, err := repo.Get(ctx, "user-int", "savedProperties")
	require.NoError(t, err)
	assert.Nil(t, val)

	blob := json.RawMessage(`[{"id":3,"name":"Industrial Warehouse","savedAt":"2025-08-30T12:00:00.000Z"}]`)
	require.NoError(t, repo.Set(ctx, "user-int", "savedProperties", blob))
	require.NoError(t, repo.Set(ctx, "user-int", "theme", json.RawMessage(`"dark"`)))

	val, err = repo.Get(ctx, "user-int", "savedProperties")
	require.NoError(t, err)
	assert.JSONEq(t, string(blob), string(val))

	var doc bson.M
	require.NoError(t, testDB.Collection("user_metadata").FindOne(ctx, bson.M{"_id": "user-int"}).Decode(&doc))
	assert.Contains(t, doc, "updated_at")
	assert.Len(t, doc["metadata"], 2)

	err = repo.Set(ctx, "user-int", "savedProperties", json.RawMessage(`[`+strings.Repeat(`{"id":1},`, 1000)+`{"id":2}]`))
	assert.ErrorIs(t, err, repository.ErrRemoteRejected)

	val, err = repo.Get(ctx, "user-int", "savedProperties")
	require.NoError(t, err)
	assert.JSONEq(t, string(blob), string(val))
}
