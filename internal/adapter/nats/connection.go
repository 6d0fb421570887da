package nats

import (
	"fmt"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/app/config"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"github.com/nats-io/nats.go"
)

const (
	connectWait   = 5 * time.Second
	maxReconnects = 5
	reconnectWait = 2 * time.Second
)

func NewConnection(cfg config.NATSConfig, log logger.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("SavedService NATS Client"),
		nats.Timeout(connectWait),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Errorw("NATS error", "subject", subject, "error", err)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warnw("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	log.Infow("Successfully connected to NATS", "url", nc.ConnectedUrl())
	return nc, nil
}

// Close drains nc so buffered publishes reach the server.
func Close(nc *nats.Conn, log logger.Logger) {
	if nc == nil || nc.IsClosed() {
		return
	}
	if err := nc.Drain(); err != nil {
		log.Errorw("Error draining NATS connection", "error", err)
	}
	nc.Close()
}
