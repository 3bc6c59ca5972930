// Package main is the entry point for the Realistic Survival thirst server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arcworks/realistic-survival/server/internal/engine"
	"github.com/arcworks/realistic-survival/server/internal/events"
	"github.com/arcworks/realistic-survival/server/internal/infra/kvstore"
	"github.com/arcworks/realistic-survival/server/internal/infra/storage"
	"github.com/arcworks/realistic-survival/server/internal/network"
	"github.com/arcworks/realistic-survival/server/internal/platform/logger"
	"github.com/arcworks/realistic-survival/server/internal/platform/metrics"
	"github.com/arcworks/realistic-survival/server/internal/platform/optimization"
)

// SQLitePersisterAdapter translates domain events to storage events.
type SQLitePersisterAdapter struct {
	repo   *storage.SQLiteEventRepository
	logger *logger.Logger
}

func (a *SQLitePersisterAdapter) Append(event events.GameEvent) error {
	var payloadMap map[string]interface{}
	if event.Payload != nil {
		payloadBytes, err := json.Marshal(event.Payload)
		if err != nil {
			// Journal the event anyway; an empty payload beats losing the row.
			a.logger.Warn("Failed to marshal payload for event " + event.ID + ": " + err.Error())
		} else if err := json.Unmarshal(payloadBytes, &payloadMap); err != nil {
			a.logger.Warn("Failed to convert payload for event " + event.ID + ": " + err.Error())
		}
	}

	return a.repo.Append(context.Background(), storage.EventRecord{
		ID:         event.ID,
		Timestamp:  event.Timestamp,
		EventType:  string(event.Type),
		SurvivorID: event.SurvivorID,
		Payload:    payloadMap,
	})
}

// seedDefaultItems populates the item catalog on first boot so a fresh
// server has drinkable items out of the box.
func seedDefaultItems(ctx context.Context, repo storage.ItemRepository, appLogger *logger.Logger) {
	existing, err := repo.GetAll(ctx)
	if err != nil {
		appLogger.Error("Failed to query item catalog: " + err.Error())
		return
	}
	if len(existing) > 0 {
		return
	}

	appLogger.Info("Item catalog empty. Seeding default drinkables...")
	defaults := []storage.ItemRecord{
		{ItemID: "water_bottle", Name: "Water Bottle", ThirstDelta: 30},
		{ItemID: "potion", Name: "Potion", ThirstDelta: 35},
		{ItemID: "milk_bucket", Name: "Milk Bucket", ThirstDelta: 20},
		{ItemID: "melon_slice", Name: "Melon Slice", ThirstDelta: 5},
		{ItemID: "apple", Name: "Apple", ThirstDelta: 3},
		{ItemID: "golden_apple", Name: "Golden Apple", ThirstDelta: 10,
			Effects: []storage.ItemEffect{{Name: "regeneration", Duration: 5, Amplifier: 1}}},
	}
	for _, item := range defaults {
		if err := repo.Upsert(ctx, item); err != nil {
			appLogger.Error("Failed to seed item " + item.ItemID + ": " + err.Error())
		}
	}
}

// seedDefaultTexts fills in user-facing strings so operators only need to
// edit the language file to retranslate them.
func seedDefaultTexts(store *kvstore.Store) {
	defaults := map[string]string{
		"THIRST_LABEL":          "Thirst",
		"THIRST_DAMAGE_MESSAGE": "You are taking dehydration damage! Drink something!",
	}
	for key, value := range defaults {
		if v, ok := store.Get(key); !ok || v == "" {
			_ = store.Set(key, value)
		}
	}
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dataDir := flag.String("data", "data", "directory for settings, language and database files")
	lowResource := flag.Bool("low-resource", false, "tune buffers for small hosts")
	flag.Parse()

	log.Println("[ARS-SERVER] Initializing Realistic Survival Thirst Server...")

	appLogger := logger.NewLogger()

	perfCfg := optimization.DefaultConfig()
	if *lowResource {
		perfCfg = optimization.LowResourceConfig()
	}

	settingsStore, err := kvstore.Open(filepath.Join(*dataDir, "settings.txt"))
	if err != nil {
		appLogger.Error("Failed to open settings store: " + err.Error())
		os.Exit(1)
	}
	langStore, err := kvstore.Open(filepath.Join(*dataDir, "language.txt"))
	if err != nil {
		appLogger.Error("Failed to open language store: " + err.Error())
		os.Exit(1)
	}
	seedDefaultTexts(langStore)
	texts := kvstore.NewCatalog(langStore, "language", appLogger)

	dbPath := filepath.Join(*dataDir, "survival.db")
	appLogger.Info("Initializing SQLite database '" + dbPath + "'...")
	db, err := storage.InitSQLite(dbPath)
	if err != nil {
		appLogger.Error("Failed to initialize SQLite: " + err.Error())
		os.Exit(1)
	}
	db.SetMaxOpenConns(perfCfg.DBMaxOpenConns)
	db.SetMaxIdleConns(perfCfg.DBMaxIdleConns)

	thirstRepo := storage.NewSQLiteThirstRepository(db)
	itemRepo := storage.NewSQLiteItemRepository(db)
	eventRepo := storage.NewSQLiteEventRepository(db)

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewEventLog(&SQLitePersisterAdapter{repo: eventRepo, logger: appLogger})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seedDefaultItems(ctx, itemRepo, appLogger)

	appLogger.Info("Bootstrapping Thirst Engine...")
	effects := network.NewEffectBroadcaster()
	survivalEngine := engine.NewEngine(engine.Deps{
		Logger:   appLogger,
		Metrics:  metrics.Get(),
		EventLog: eventLog,
		Thirst:   thirstRepo,
		Items:    itemRepo,
		Settings: settingsStore,
		Texts:    texts,
		Effects:  effects,
		Runner:   engine.TickerRunner{},
	})

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(survivalEngine, perfCfg, appLogger, metrics.Get())
	effects.Bind(hub)
	go hub.Run(ctx)
	hub.StartEventPoller(ctx, eventLog)

	survivalEngine.Start()

	// Setup API Routes
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r, appLogger)
	})

	admin := network.NewAdminBridge(survivalEngine, thirstRepo, itemRepo, appLogger)
	admin.RegisterRoutes(mux)

	feed := network.NewEventFeedHandler(eventLog, appLogger)
	feed.RegisterRoutes(mux)

	mux.HandleFunc("/metrics", metrics.Handler())
	mux.HandleFunc("/metrics/prometheus", metrics.PrometheusHandler())
	mux.HandleFunc("/api/optimize", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(optimization.Analyze(metrics.Get().Snapshot()))
	})

	server := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		log.Println("[ARS-SERVER] HTTP API & WS Server listening on " + *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Println("[ARS-SERVER] Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[ARS-SERVER] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	survivalEngine.Stop(shutdownCtx)
	_ = server.Shutdown(shutdownCtx)
	_ = db.Close()
	log.Println("[ARS-SERVER] Shutdown complete.")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Hosts connect from their own process; origin is not meaningful
	},
}

// serveWs handles websocket requests from the peer.
func serveWs(hub *network.Hub, w http.ResponseWriter, r *http.Request, log *logger.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade websocket connection")
		return
	}

	client := network.NewClient(hub, conn)
	client.Register()

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.WritePump()
	go client.ReadPump()
}
