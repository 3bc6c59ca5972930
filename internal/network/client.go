package network

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// PlayerAction represents an incoming command from a connected host.
type PlayerAction struct {
	Type       string          `json:"type"`        // "ATTACH", "MOVE", "CONSUME_ITEM", etc.
	SurvivorID string          `json:"survivor_id"` // Who triggered the action
	Payload    json.RawMessage `json:"payload"`     // Action-specific data
}

// Client represents an active WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	windowStart time.Time
	windowCount int
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.sendBuffer),
	}
}

// Register adds the client to the hub.
func (c *Client) Register() {
	c.hub.register <- c
}

// ReadPump pumps messages from the websocket connection into the engine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}
		c.hub.metrics.RecordWSMessage(true)

		var action PlayerAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.hub.logger.Error("Failed to parse PlayerAction from WebSocket: " + err.Error())
			c.hub.metrics.RecordWSError()
			continue
		}

		c.handlePlayerAction(action)
	}
}

func (c *Client) handlePlayerAction(action PlayerAction) {
	// Rate limiting: movement signals arrive every tick, so the limit is a
	// per-second window rather than a flat cooldown.
	now := time.Now()
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.windowCount = 0
	}
	c.windowCount++
	if c.windowCount > c.hub.maxMsgsPerSec {
		c.hub.logger.Warn("Rate limit exceeded for client action from " + action.SurvivorID)
		return
	}

	if action.SurvivorID == "" {
		c.hub.logger.Warn("PlayerAction missing survivor_id, type " + action.Type)
		return
	}

	ctx := context.Background()
	switch action.Type {
	case "ATTACH":
		c.handleAttach(ctx, action)
	case "DETACH":
		c.hub.engine.Detach(ctx, action.SurvivorID)
	case "MOVE", "TELEPORT":
		// Teleports count as movement; the decay multiplier applies either way.
		c.hub.engine.OnMovement(action.SurvivorID)
	case "CONSUME_ITEM":
		c.handleConsume(ctx, action)
	case "DEATH":
		c.hub.engine.OnTerminalEvent(ctx, action.SurvivorID)
	default:
		c.hub.logger.Warn("Unknown PlayerAction type: " + action.Type)
	}
}

func (c *Client) handleAttach(ctx context.Context, action PlayerAction) {
	var parsed struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(action.Payload, &parsed); err != nil {
		c.hub.logger.Warn("Failed to parse attach payload for " + action.SurvivorID)
		return
	}
	if parsed.Name == "" {
		parsed.Name = action.SurvivorID
	}
	if _, err := c.hub.engine.Attach(ctx, action.SurvivorID, parsed.Name); err != nil {
		// Already recovered in memory; nothing more for the client to do.
		return
	}
}

func (c *Client) handleConsume(ctx context.Context, action PlayerAction) {
	var parsed struct {
		ItemID string `json:"item_id"`
	}
	if err := json.Unmarshal(action.Payload, &parsed); err != nil {
		c.hub.logger.Warn("Failed to parse consume payload for " + action.SurvivorID)
		return
	}
	if parsed.ItemID == "" {
		c.hub.logger.Warn("Consume action without item_id from " + action.SurvivorID)
		return
	}
	if err := c.hub.engine.OnItemConsumed(ctx, action.SurvivorID, parsed.ItemID); err != nil {
		c.hub.metrics.RecordWSError()
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
