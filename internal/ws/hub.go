// Package ws carries the recognition event channel on both ends. Hub is the
// daemon side: it fans encoded telemetry events out to every connected
// client and keeps them alive with pings. Manager is the client side: it
// holds one reconnecting connection and decodes what arrives.
package ws

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/large-farva/earshot/internal/telemetry"
)

// Hub manages WebSocket client connections. Register, unregister and
// broadcast all go through channels consumed by Run, so it is safe for
// concurrent use.
type Hub struct {
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	upgrader   websocket.Upgrader
	log        *log.Logger

	// PingInterval is how often idle clients are pinged.
	PingInterval time.Duration

	count atomic.Int32
}

// NewHub allocates a hub. Call Run in a goroutine to start the event loop.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients:      make(map[*websocket.Conn]struct{}),
		register:     make(chan *websocket.Conn, 16),
		unregister:   make(chan *websocket.Conn, 16),
		broadcast:    make(chan []byte, 256),
		log:          logger,
		PingInterval: 20 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Run processes registrations, broadcasts and pings in a single select
// loop. It closes all clients when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(h.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int32(len(h.clients)))
			h.logf("client connected (%d total)", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logf("client disconnected (%d total)", len(h.clients))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				_ = c.SetWriteDeadline(time.Now().Add(3 * time.Second))
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.drop(c)
				}
			}

		case <-ping.C:
			for c := range h.clients {
				_ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *websocket.Conn) {
	delete(h.clients, c)
	h.count.Store(int32(len(h.clients)))
	_ = c.Close()
}

// Handler returns an http.Handler that upgrades requests to WebSocket
// connections and registers them with the hub. Clients never send
// anything meaningful; the read loop only exists to notice disconnects and
// answer pings.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written an HTTP error response.
			return
		}
		h.register <- conn

		go func() {
			defer func() { h.unregister <- conn }()
			_ = conn.SetReadDeadline(time.Now().Add(3 * h.PingInterval))
			conn.SetPongHandler(func(string) error {
				_ = conn.SetReadDeadline(time.Now().Add(3 * h.PingInterval))
				return nil
			})

			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// Publish encodes ev and queues it for delivery to all connected clients.
// If the broadcast queue is full the event is dropped rather than blocking
// the caller.
func (h *Hub) Publish(ev telemetry.Event) {
	b, err := telemetry.Encode(ev)
	if err != nil {
		h.logf("encode %s: %v", ev.Kind(), err)
		return
	}
	h.BroadcastRaw(b)
}

// BroadcastRaw queues an already-encoded frame.
func (h *Hub) BroadcastRaw(b []byte) {
	select {
	case h.broadcast <- b:
	default:
		h.logf("broadcast queue full, dropping frame")
	}
}

func (h *Hub) logf(format string, args ...any) {
	if h.log != nil {
		h.log.Printf(format, args...)
	}
}
