package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"github.com/nats-io/nats.go"
)

const SessionRevokedSubject = "identity.session.revoked"

type SessionRevokedPayload struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

// Revoker ends the local session of a user.
type Revoker interface {
	Revoke(ctx context.Context, userID, reason string) bool
}

type SessionSubscriber struct {
	revoker Revoker
	log     logger.Logger
	sub     *nats.Subscription
}

func NewSessionSubscriber(revoker Revoker, log logger.Logger) *SessionSubscriber {
	return &SessionSubscriber{revoker: revoker, log: log}
}

func (s *SessionSubscriber) Start(nc *nats.Conn) error {
	sub, err := nc.Subscribe(SessionRevokedSubject, func(msg *nats.Msg) {
		if err := s.handle(context.Background(), msg.Data); err != nil {
			s.log.Warnw("Ignoring session revocation", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", SessionRevokedSubject, err)
	}
	s.sub = sub
	s.log.Infow("Subscribed to NATS subject", "subject", SessionRevokedSubject)
	return nil
}

func (s *SessionSubscriber) Stop() {
	if s.sub == nil {
		return
	}
	if err := s.sub.Unsubscribe(); err != nil {
		s.log.Warnw("Failed to unsubscribe", "subject", SessionRevokedSubject, "error", err)
	}
	s.sub = nil
}

func (s *SessionSubscriber) handle(ctx context.Context, data []byte) error {
	var payload SessionRevokedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}
	reason := payload.Reason
	if reason == "" {
		reason = "session revoked"
	}
	if s.revoker.Revoke(ctx, userID, reason) {
		s.log.Infow("Session revoked", "user_id", userID, "reason", reason)
	}
	return nil
}
