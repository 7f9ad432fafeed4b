// Package ws exposes the event bus over WebSocket. Each connection gets its
// own bus subscription: a snapshot event first, then the live tail in
// sequence order. The hub also handles ping/pong keepalives so stale
// connections get cleaned up automatically.
package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jugogpt/tracker-engine/internal/bus"
)

const (
	writeTimeout = 3 * time.Second
	pingInterval = 20 * time.Second
	readTimeout  = 60 * time.Second
)

// Hub upgrades HTTP requests and bridges them to bus subscriptions. It holds
// no connection state of its own; the bus tracks subscribers.
type Hub struct {
	bus      *bus.Bus
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

// NewHub allocates a hub over the given bus.
func NewHub(b *bus.Bus, log *logrus.Logger) *Hub {
	return &Hub{
		bus: b,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns an http.Handler that upgrades incoming requests and streams
// the event feed until the client goes away or falls too far behind.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
			return
		}
		go h.serve(conn)
	})
}

// serve runs one connection. This goroutine is the only writer; the read
// loop forwards client pings through a channel.
func (h *Hub) serve(conn *websocket.Conn) {
	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub.ID)
	defer conn.Close()

	clientPing := make(chan struct{}, 4)
	readClosed := make(chan struct{})
	go h.readLoop(conn, clientPing, readClosed)

	// The snapshot goes out first so the client can render current state
	// before the live tail starts at Snapshot.NextSeq.
	snapEv := bus.Event{
		Type: bus.TypeSnapshot,
		Data: sub.Snapshot,
		Seq:  sub.Snapshot.NextSeq - 1,
		TS:   bus.NowTS(),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(snapEv); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				// Disconnected by the bus as unreachable.
				h.log.WithField("subscriber", sub.ID).Debug("ws: feed closed")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-clientPing:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("pong")); err != nil {
				return
			}

		case <-readClosed:
			return
		}
	}
}

// readLoop drains client messages. A text "ping" gets a "pong" back for
// clients that can't send protocol-level pings.
func (h *Hub) readLoop(conn *websocket.Conn, clientPing chan<- struct{}, done chan<- struct{}) {
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if kind == websocket.TextMessage && string(msg) == "ping" {
			select {
			case clientPing <- struct{}{}:
			default:
			}
		}
	}
}
