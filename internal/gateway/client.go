package gateway

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// sendInitialState queues the last known quote and market status so a
// fresh client does not wait for the next poll tick.
func (c *Client) sendInitialState() {
	c.hub.mu.RLock()
	quote := c.hub.latestQuote
	status := c.hub.latestStatus
	c.hub.mu.RUnlock()

	enqueue := func(msgType string, payload interface{}) {
		envelope, err := json.Marshal(map[string]interface{}{
			"type":    msgType,
			"data":    payload,
			"ts":      time.Now().UTC().Format(time.RFC3339Nano),
			"initial": true,
		})
		if err != nil {
			return
		}
		select {
		case c.send <- envelope:
		default:
		}
	}

	if status != "" {
		enqueue("marketStatus", map[string]string{"status": status})
	}
	if quote != nil {
		enqueue("quote", quote)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Coalesce queued messages into one frame.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection for pongs and close frames. Inbound
// payloads are ignored; the API is REST, the socket is push-only.
func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
