package service

import (
	"context"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/domain/entity"
)

// Metrics receives store activity. Implementations must be safe for concurrent use.
type Metrics interface {
	MutationAccepted(action string)
	RemoteWrite(d time.Duration, err error)
	Reconciled(fromRemote bool)
	SavedCount(n int)
}

// SyncEvent is announced after a write of the saved list succeeds.
type SyncEvent struct {
	UserID   string              `json:"user_id"`
	Count    int                 `json:"count"`
	IDs      []entity.PropertyID `json:"ids"`
	SyncedAt time.Time           `json:"synced_at"`
}

type EventPublisher interface {
	PublishSynced(ctx context.Context, ev SyncEvent) error
}

type noopMetrics struct{}

func (noopMetrics) MutationAccepted(string)          {}
func (noopMetrics) RemoteWrite(time.Duration, error) {}
func (noopMetrics) Reconciled(bool)                  {}
func (noopMetrics) SavedCount(int)                   {}

type noopPublisher struct{}

func (noopPublisher) PublishSynced(context.Context, SyncEvent) error { return nil }
