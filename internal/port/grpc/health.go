package grpc

import (
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/service"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health-checked service name.
const ServiceName = "saved.SavedProperties"

// HealthSetter is implemented by *health.Server.
type HealthSetter interface {
	SetServingStatus(service string, status grpc_health_v1.HealthCheckResponse_ServingStatus)
}

// SnapshotSubscriber is implemented by *service.SavedStore.
type SnapshotSubscriber interface {
	Subscribe(fn func(service.Snapshot)) (unsubscribe func())
}

// WatchStore keeps the health of ServiceName in line with the store: serving
// while the last synchronization succeeded, not serving after a failure.
func WatchStore(store SnapshotSubscriber, hs HealthSetter) (stop func()) {
	return store.Subscribe(func(snap service.Snapshot) {
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if snap.LastError != nil {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(ServiceName, status)
	})
}
