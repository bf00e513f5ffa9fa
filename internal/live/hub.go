package live

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	subscriberBuf  = 256
	maxMessageSize = 1 << 20
)

// message is one relayed event together with the camera it belongs to,
// so the hub can filter per subscriber without re-parsing JSON.
type message struct {
	cameraID string
	payload  []byte
}

// subscriber is one /live client. A subscriber with an empty cameraID
// receives every camera's events.
type subscriber struct {
	conn     *websocket.Conn
	send     chan message
	cameraID string
}

// Hub fans events ingested from pipelines out to subscribers. All
// subscriber bookkeeping happens on the run loop goroutine; slow
// subscribers whose send buffer fills up are dropped rather than
// allowed to stall the broadcast.
type Hub struct {
	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan message

	subscribers map[*subscriber]bool
	logger      *slog.Logger
}

// NewHub creates a Hub. Call Run to start the fan-out loop.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		broadcast:   make(chan message, 256),
		subscribers: make(map[*subscriber]bool),
		logger:      logger,
	}
}

// Broadcast queues one event for fan-out. Never blocks; events are
// dropped when the hub is saturated.
func (h *Hub) Broadcast(cameraID string, payload []byte) {
	select {
	case h.broadcast <- message{cameraID: cameraID, payload: payload}:
	default:
		h.logger.Debug("hub broadcast dropped, queue full")
	}
}

// Run executes the fan-out loop until done is closed. All remaining
// subscribers are disconnected on exit.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case sub := <-h.register:
			h.subscribers[sub] = true
			h.logger.Debug("subscriber connected",
				"camera_id", sub.cameraID, "subscribers", len(h.subscribers))

		case sub := <-h.unregister:
			h.drop(sub)

		case msg := <-h.broadcast:
			for sub := range h.subscribers {
				if sub.cameraID != "" && sub.cameraID != msg.cameraID {
					continue
				}
				select {
				case sub.send <- msg:
				default:
					h.logger.Debug("slow subscriber dropped", "camera_id", sub.cameraID)
					h.drop(sub)
				}
			}

		case <-done:
			for sub := range h.subscribers {
				h.drop(sub)
			}
			return
		}
	}
}

func (h *Hub) drop(sub *subscriber) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.send)
	h.logger.Debug("subscriber disconnected", "subscribers", len(h.subscribers))
}

// writePump drains the subscriber's send channel onto its connection
// and keeps the connection alive with pings. Runs on its own
// goroutine, one per subscriber.
func (sub *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards incoming messages and unregisters the subscriber
// when the connection drops.
func (sub *subscriber) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- sub:
		default:
		}
		sub.conn.Close()
	}()
	sub.conn.SetReadLimit(maxMessageSize)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}
