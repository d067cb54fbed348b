package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantrail/signals/internal/jobs"
	"github.com/quantrail/signals/pkg/logger"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// JobSubscriber hands out progress event channels. Satisfied by jobs.Queue.
type JobSubscriber interface {
	Subscribe() (<-chan jobs.ProgressEvent, func())
}

// StreamHandler pushes job progress events over a websocket.
type StreamHandler struct {
	queue    JobSubscriber
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

func NewStreamHandler(queue JobSubscriber, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		queue: queue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log,
	}
}

// Serve upgrades the connection and relays progress events until the client
// disconnects.
// GET /api/jobs/stream
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := h.queue.Subscribe()
	defer unsubscribe()

	// Drain reads so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case event := <-events:
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.WithError(err).Debug("Websocket write failed")
				}
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
