// Package network - events_api.go
// JSON export of the survival event feed: the immutable history of
// attaches, thirst transitions, and damage applications.
package network

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/arcworks/realistic-survival/server/internal/events"
	"github.com/arcworks/realistic-survival/server/internal/platform/logger"
)

// EventFeedHandler provides the event history API.
type EventFeedHandler struct {
	eventLog *events.EventLog
	logger   *logger.Logger
}

// NewEventFeedHandler creates a new event feed handler.
func NewEventFeedHandler(el *events.EventLog, log *logger.Logger) *EventFeedHandler {
	return &EventFeedHandler{
		eventLog: el,
		logger:   log,
	}
}

// FeedEvent is a sanitized event for public viewing.
type FeedEvent struct {
	ID         string      `json:"id"`
	Timestamp  string      `json:"timestamp"`
	Type       string      `json:"type"`
	SurvivorID string      `json:"survivor_id,omitempty"`
	Summary    string      `json:"summary"`
	Details    interface{} `json:"details,omitempty"`
}

// FeedResponse is the API response for the event feed.
type FeedResponse struct {
	TotalEvents int         `json:"total_events"`
	FilteredBy  string      `json:"filtered_by,omitempty"`
	GeneratedAt string      `json:"generated_at"`
	Events      []FeedEvent `json:"events"`
}

// HandleFeed returns the event history.
// GET /api/events?survivor=XUID&type=THIRST_DAMAGE&limit=N
func (eh *EventFeedHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		eh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	survivorID := r.URL.Query().Get("survivor")
	eventType := r.URL.Query().Get("type")
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, _ = strconv.Atoi(limitStr)
	}

	allEvents := eh.eventLog.Replay()

	var feedEvents []FeedEvent
	filterDesc := ""
	for _, e := range allEvents {
		if survivorID != "" {
			if e.SurvivorID != survivorID {
				continue
			}
			filterDesc = "survivor " + survivorID
		}
		if eventType != "" && string(e.Type) != eventType {
			continue
		}
		feedEvents = append(feedEvents, eh.convertToFeedEvent(e))
	}

	if limit > 0 && len(feedEvents) > limit {
		feedEvents = feedEvents[len(feedEvents)-limit:]
	}

	response := FeedResponse{
		TotalEvents: len(feedEvents),
		FilteredBy:  filterDesc,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      feedEvents,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleEventDetail returns a single event including its full payload.
// GET /api/events/detail?event_id=XXX
func (eh *EventFeedHandler) HandleEventDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		eh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		eh.jsonError(w, "Missing event_id", http.StatusBadRequest)
		return
	}

	for _, e := range eh.eventLog.Replay() {
		if e.ID == eventID {
			detail := eh.convertToFeedEvent(e)
			detail.Details = e.Payload

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(detail)
			return
		}
	}

	eh.jsonError(w, "Event not found", http.StatusNotFound)
}

// HandleStats returns aggregate statistics for the feed.
// GET /api/events/stats
func (eh *EventFeedHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		eh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	allEvents := eh.eventLog.Replay()

	stats := map[string]int{
		"total_events":   len(allEvents),
		"attaches":       0,
		"thirst_changes": 0,
		"damage_events":  0,
		"items_consumed": 0,
	}
	for _, e := range allEvents {
		switch e.Type {
		case events.EventTypeAttached:
			stats["attaches"]++
		case events.EventTypeThirstChanged:
			stats["thirst_changes"]++
		case events.EventTypeThirstDamage:
			stats["damage_events"]++
		case events.EventTypeItemConsumed:
			stats["items_consumed"]++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"generated_at": time.Now().Format(time.RFC3339),
		"stats":        stats,
	})
}

// RegisterRoutes sets up the event feed API routes.
func (eh *EventFeedHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/events", eh.HandleFeed)
	mux.HandleFunc("/api/events/detail", eh.HandleEventDetail)
	mux.HandleFunc("/api/events/stats", eh.HandleStats)
}

// convertToFeedEvent transforms an internal event to public format.
func (eh *EventFeedHandler) convertToFeedEvent(e events.GameEvent) FeedEvent {
	return FeedEvent{
		ID:         e.ID,
		Timestamp:  e.Timestamp.Format("15:04:05"),
		Type:       string(e.Type),
		SurvivorID: e.SurvivorID,
		Summary:    summarizeEvent(e),
	}
}

func summarizeEvent(e events.GameEvent) string {
	switch e.Type {
	case events.EventTypeAttached:
		return "A survivor joined and their thirst was restored from storage."
	case events.EventTypeDetached:
		return "A survivor left; their thirst was saved."
	case events.EventTypeThirstChanged:
		return "A survivor's thirst level changed."
	case events.EventTypeThirstDamage:
		return "A survivor took dehydration damage."
	case events.EventTypeItemConsumed:
		return "A survivor consumed an item."
	case events.EventTypeTerminalReset:
		return "A survivor's thirst was reset."
	case events.EventTypeConfigReloaded:
		return "The thirst configuration was reloaded."
	default:
		return "Something happened..."
	}
}

// jsonError sends an error response.
func (eh *EventFeedHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
