//go:build integration

package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/app/config"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/service"
	"github.com/nats-io/nats.go"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNatsURL string

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}
	if err = pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "nats",
		Tag:        "2.9",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start NATS resource: %s", err)
	}

	testNatsURL = fmt.Sprintf("nats://%s", resource.GetHostPort("4222/tcp"))
	if err = pool.Retry(func() error {
		nc, err := nats.Connect(testNatsURL)
		if err != nil {
			return err
		}
		nc.Close()
		return nil
	}); err != nil {
		log.Fatalf("Could not connect to NATS: %s", err)
	}

	code := m.Run()

	if err := pool.Purge(resource); err != nil {
		log.Printf("Could not purge NATS: %s", err)
	}
	os.Exit(code)
}

func TestNATS_Integration_RevocationAndSyncEvents(t *testing.T) {
	log := logger.NewNop()
	nc, err := NewConnection(config.NATSConfig{URL: testNatsURL, Enabled: true}, log)
	require.NoError(t, err)
	defer Close(nc, log)

	revoker := new(MockRevoker)
	revoked := make(chan struct{}, 1)
	revoker.On("Revoke", mock.Anything, "user-1", "session revoked").Return(true).Run(func(mock.Arguments) {
		revoked <- struct{}{}
	}).Once()

	sub := NewSessionSubscriber(revoker, log)
	require.NoError(t, sub.Start(nc))
	defer sub.Stop()

	synced := make(chan *nats.Msg, 1)
	syncSub, err := nc.ChanSubscribe(SavedSyncedSubject, synced)
	require.NoError(t, err)
	defer func() { _ = syncSub.Unsubscribe() }()
	require.NoError(t, nc.Flush())

	pub, err := NewSyncPublisher(nc, log)
	require.NoError(t, err)
	require.NoError(t, pub.PublishSynced(context.Background(), service.SyncEvent{
		UserID: "user-1", Count: 1, IDs: []entity.PropertyID{"7"}, SyncedAt: time.Now().UTC(),
	}))

	select {
	case msg := <-synced:
		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "user-1", got["user_id"])
		assert.Equal(t, []interface{}{float64(7)}, got["ids"])
	case <-time.After(5 * time.Second):
		t.Fatal("sync event was not delivered")
	}

	require.NoError(t, nc.Publish(SessionRevokedSubject, []byte(`{"user_id":"user-1"}`)))
	select {
	case <-revoked:
	case <-time.After(5 * time.Second):
		t.Fatal("revocation was not handled")
	}
	revoker.AssertExpectations(t)
}
