// Package network - admin_api.go
// REST surface for server operators: configuration reloads, the survivor
// roster, and item catalog management.
package network

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/arcworks/realistic-survival/server/internal/engine"
	"github.com/arcworks/realistic-survival/server/internal/infra/storage"
	"github.com/arcworks/realistic-survival/server/internal/platform/logger"
)

// AdminBridge handles operator interactions.
type AdminBridge struct {
	engine *engine.Engine
	thirst storage.ThirstRepository
	items  storage.ItemRepository
	logger *logger.Logger
}

// NewAdminBridge creates a new operator API handler.
func NewAdminBridge(eng *engine.Engine, thirst storage.ThirstRepository, items storage.ItemRepository, log *logger.Logger) *AdminBridge {
	return &AdminBridge{
		engine: eng,
		thirst: thirst,
		items:  items,
		logger: log,
	}
}

// HandleReload re-reads the settings file and restarts the tick loop.
// POST /api/reload
func (ab *AdminBridge) HandleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ab.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res := ab.engine.Reload(r.Context())
	ab.logger.Event("ADMIN_RELOAD", "OPERATOR", "Configuration reloaded")

	adjusted := make([]map[string]string, 0, len(res.Adjustments))
	for _, adj := range res.Adjustments {
		adjusted = append(adjusted, map[string]string{
			"key":    adj.Key,
			"reason": string(adj.Reason),
		})
	}
	ab.jsonSuccess(w, map[string]interface{}{
		"success":  true,
		"config":   res.Config,
		"adjusted": adjusted,
	})
}

// SurvivorView is a roster entry for operator viewing.
type SurvivorView struct {
	XUID      string  `json:"xuid"`
	Name      string  `json:"name"`
	Thirst    float64 `json:"thirst"`
	Online    bool    `json:"online"`
	UpdatedAt string  `json:"updated_at"`
}

// HandleSurvivors returns the survivor roster: durable records annotated
// with the live in-memory level for anyone currently attached.
// GET /api/survivors
func (ab *AdminBridge) HandleSurvivors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ab.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := ab.thirst.GetAll(r.Context())
	if err != nil {
		ab.jsonError(w, "Failed to read survivor records", http.StatusInternalServerError)
		return
	}
	live := ab.engine.Levels()

	views := make([]SurvivorView, 0, len(records))
	for _, rec := range records {
		view := SurvivorView{
			XUID:      rec.XUID,
			Name:      rec.Name,
			Thirst:    rec.Level,
			UpdatedAt: humanize.Time(rec.UpdatedAt),
		}
		if level, ok := live[rec.XUID]; ok {
			view.Thirst = level
			view.Online = true
		}
		views = append(views, view)
	}

	ab.jsonSuccess(w, map[string]interface{}{
		"survivors":    views,
		"online_count": len(live),
		"timestamp":    time.Now().Unix(),
	})
}

// ItemUpsertRequest is the payload for creating or updating a catalog item.
type ItemUpsertRequest struct {
	ItemID      string               `json:"item_id"`
	Name        string               `json:"name"`
	ThirstDelta float64              `json:"thirst_delta"`
	Effects     []storage.ItemEffect `json:"effects,omitempty"`
}

// HandleItems lists the item catalog or upserts an entry.
// GET|POST /api/items
func (ab *AdminBridge) HandleItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := ab.items.GetAll(r.Context())
		if err != nil {
			ab.jsonError(w, "Failed to read item catalog", http.StatusInternalServerError)
			return
		}
		ab.jsonSuccess(w, map[string]interface{}{"items": items})

	case http.MethodPost:
		var req ItemUpsertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ab.jsonError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.ItemID == "" {
			ab.jsonError(w, "Missing item_id", http.StatusBadRequest)
			return
		}

		rec := storage.ItemRecord{
			ItemID:      strings.ToLower(req.ItemID),
			Name:        req.Name,
			ThirstDelta: req.ThirstDelta,
			Effects:     req.Effects,
		}
		if err := ab.items.Upsert(r.Context(), rec); err != nil {
			ab.jsonError(w, "Failed to save item", http.StatusInternalServerError)
			return
		}
		ab.logger.Event("ADMIN_ITEM_UPSERT", "OPERATOR", "Item "+rec.ItemID+" saved")
		ab.jsonSuccess(w, map[string]interface{}{"success": true, "item_id": rec.ItemID})

	default:
		ab.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleConfig returns the active thirst configuration.
// GET /api/config
func (ab *AdminBridge) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ab.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ab.jsonSuccess(w, ab.engine.Config())
}

// RegisterRoutes sets up the operator API routes.
func (ab *AdminBridge) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/reload", ab.HandleReload)
	mux.HandleFunc("/api/survivors", ab.HandleSurvivors)
	mux.HandleFunc("/api/items", ab.HandleItems)
	mux.HandleFunc("/api/config", ab.HandleConfig)
}

// jsonError sends an error response.
func (ab *AdminBridge) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// jsonSuccess sends a success response.
func (ab *AdminBridge) jsonSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}
