package pubsub

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.dedis.ch/onet/v3/log"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the API is served cross-origin, so accept any browser origin
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub exposes a Broker over websocket. Clients connect to the handler,
// optionally scoping to one job with the job_id query parameter, and receive
// every matching Event as a JSON message.
type Hub struct {
	broker *Broker
}

// NewHub wraps broker.
func NewHub(broker *Broker) *Hub {
	return &Hub{broker: broker}
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects. A disconnected or slow client never affects training.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed:", err)
		return
	}

	jobID := r.URL.Query().Get("job_id")
	events, cancel := h.broker.Subscribe(jobID, 64)

	// the read pump only watches for the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer conn.Close()
	for ev := range events {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			cancel()
			// drain so the publisher-side buffer is released promptly
			for range events {
			}
			return
		}
	}
}
