package grpc

import (
	"context"
	"testing"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/repository"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type fakeStore struct {
	subs []func(service.Snapshot)
}

func (f *fakeStore) Subscribe(fn func(service.Snapshot)) func() {
	f.subs = append(f.subs, fn)
	fn(service.Snapshot{State: service.StateUninitialized})
	return func() { f.subs = nil }
}

func (f *fakeStore) publish(s service.Snapshot) {
	for _, fn := range f.subs {
		fn(s)
	}
}

func check(t *testing.T, hs *health.Server) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestWatchStore_FollowsLastError(t *testing.T) {
	hs := health.NewServer()
	store := &fakeStore{}

	stop := WatchStore(store, hs)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(t, hs))

	store.publish(service.Snapshot{State: service.StateReady, LastError: repository.ErrRemoteUnavailable})
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(t, hs))

	store.publish(service.Snapshot{State: service.StateReady})
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(t, hs))

	stop()
	assert.Empty(t, store.subs)
}
