package http

import (
	"net/http"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/service"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// StreamHandler pushes every published snapshot of the store to a websocket
// client. Slow clients only ever miss intermediate snapshots, never the latest.
type StreamHandler struct {
	store    *service.SavedStore
	log      logger.Logger
	upgrader websocket.Upgrader
}

func NewStreamHandler(store *service.SavedStore, log logger.Logger) *StreamHandler {
	return &StreamHandler{
		store: store,
		log:   log.With("component", "stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	updates := make(chan service.Snapshot, 1)
	unsubscribe := s.store.Subscribe(func(snap service.Snapshot) {
		// Runs under the store lock: replace a pending snapshot instead of blocking.
		select {
		case updates <- snap:
		default:
			select {
			case <-updates:
			default:
			}
			updates <- snap
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			s.log.Debug("websocket client disconnected")
			return
		case snap := <-updates:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(toSnapshotResponse(snap)); err != nil {
				s.log.Warnw("failed to write websocket message", "error", err)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
