package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/service"
)

const SavedSyncedSubject = "saved_properties.synced"

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subj string, data []byte) error
}

type SyncPublisher struct {
	conn Conn
	log  logger.Logger
}

func NewSyncPublisher(conn Conn, log logger.Logger) (*SyncPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS connection cannot be nil")
	}
	return &SyncPublisher{conn: conn, log: log}, nil
}

func (p *SyncPublisher) PublishSynced(ctx context.Context, ev service.SyncEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal message to JSON for subject %s: %w", SavedSyncedSubject, err)
	}
	if err := p.conn.Publish(SavedSyncedSubject, data); err != nil {
		return fmt.Errorf("failed to publish message to NATS subject %s: %w", SavedSyncedSubject, err)
	}
	p.log.Debugw("Published NATS message", "subject", SavedSyncedSubject, "user_id", ev.UserID, "count", ev.Count)
	return nil
}
