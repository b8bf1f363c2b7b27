package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RNSsanjay/Nefty-Trade/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub fans market updates out to WebSocket clients. Every push is an
// envelope {type, data, ts}; a newly connected client immediately gets
// the latest quote and market status it missed.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	latestQuote  *model.Quote
	latestStatus string
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

// HandleWS upgrades the request and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	conn.EnableWriteCompression(true)

	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("[gateway] ws client connected (%d total)", count)

	client.sendInitialState()
	go client.writePump()
	go client.readPump()
}

// RemoveClient drops a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastQuote pushes a live quote tick to every client.
func (h *Hub) BroadcastQuote(q model.Quote) {
	h.mu.Lock()
	h.latestQuote = &q
	h.mu.Unlock()
	h.broadcast("quote", q)
}

// BroadcastStatus pushes a market phase transition to every client.
func (h *Hub) BroadcastStatus(status string) {
	h.mu.Lock()
	h.latestStatus = status
	h.mu.Unlock()
	h.broadcast("marketStatus", map[string]string{"status": status})
}

// BroadcastReprice notifies clients that a session's positions were
// marked to market.
func (h *Hub) BroadcastReprice(sessionID string, totalPnl float64) {
	h.broadcast("reprice", map[string]interface{}{
		"sessionId": sessionID,
		"totalPnl":  totalPnl,
	})
}

func (h *Hub) broadcast(msgType string, payload interface{}) {
	envelope, err := json.Marshal(map[string]interface{}{
		"type": msgType,
		"data": payload,
		"ts":   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- envelope:
		default:
			// Slow client: drop the tick rather than block the hub.
		}
	}
}
