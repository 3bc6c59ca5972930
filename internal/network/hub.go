package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/arcworks/realistic-survival/server/internal/engine"
	"github.com/arcworks/realistic-survival/server/internal/events"
	"github.com/arcworks/realistic-survival/server/internal/platform/logger"
	"github.com/arcworks/realistic-survival/server/internal/platform/metrics"
	"github.com/arcworks/realistic-survival/server/internal/platform/optimization"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex

	engine        *engine.Engine
	logger        *logger.Logger
	metrics       *metrics.Collector
	sendBuffer    int
	maxMsgsPerSec int
}

// NewHub initializes a new WebSocket Hub. Buffer sizes come from the
// optimization profile so a busy server can absorb broadcast bursts.
func NewHub(eng *engine.Engine, cfg *optimization.Config, log *logger.Logger, m *metrics.Collector) *Hub {
	return &Hub{
		broadcast:     make(chan []byte, cfg.BroadcastChannelBuffer),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		clients:       make(map[*Client]bool),
		engine:        eng,
		logger:        log,
		metrics:       m,
		sendBuffer:    cfg.ClientSendBuffer,
		maxMsgsPerSec: cfg.MaxMessagesPerSecond,
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket Hub shutting down.")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.logger.Info("New WebSocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.RecordWSConnection(-1)
				h.logger.Info("WebSocket client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					h.metrics.RecordWSMessage(false)
				default:
					// Slow consumer; drop it rather than stall the hub.
					close(client.send)
					delete(h.clients, client)
					h.metrics.RecordWSConnection(-1)
					h.metrics.RecordWSError()
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastEvent serializes a GameEvent and sends it to all connected clients.
func (h *Hub) BroadcastEvent(event events.GameEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to serialize GameEvent for WebSocket broadcast: " + err.Error())
		h.metrics.RecordWSError()
		return
	}
	h.broadcast <- payload
}

// BroadcastMessage serializes an arbitrary message and sends it to all
// connected clients. Used for out-of-band frames like effect applications.
func (h *Hub) BroadcastMessage(msg interface{}) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to serialize message for WebSocket broadcast: " + err.Error())
		h.metrics.RecordWSError()
		return
	}
	h.broadcast <- payload
}

// StartEventPoller spawns a goroutine to poll the EventLog and push new
// events to the Hub. This lets the Hub run independently from the engine's
// tick loop while picking up the same events.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog) {
	go func() {
		pollInterval := time.NewTicker(200 * time.Millisecond)
		defer pollInterval.Stop()

		lastProcessed := 0

		for {
			select {
			case <-ctx.Done():
				return
			case <-pollInterval.C:
				allEvents := eventLog.Replay()
				if len(allEvents) > lastProcessed {
					for _, event := range allEvents[lastProcessed:] {
						h.BroadcastEvent(event)
					}
					lastProcessed = len(allEvents)
				}
			}
		}
	}()
}
