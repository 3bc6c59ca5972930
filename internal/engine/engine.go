package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arcworks/realistic-survival/server/internal/domain/thirst"
	"github.com/arcworks/realistic-survival/server/internal/events"
	"github.com/arcworks/realistic-survival/server/internal/infra/storage"
	"github.com/arcworks/realistic-survival/server/internal/platform/logger"
	"github.com/arcworks/realistic-survival/server/internal/platform/metrics"
)

// EffectApplier delivers a timed effect (e.g. dehydration damage, an item
// buff) to a survivor. The implementation must no-op for survivors that are
// no longer active.
type EffectApplier interface {
	Apply(xuid, effect string, durationSeconds, amplifier int) error
}

// TextSource resolves user-facing strings. Never consulted on a decision
// path, only for presentation.
type TextSource interface {
	Text(key string) string
}

// ThirstChangedPayload is emitted whenever a survivor's displayed (whole
// number) thirst value changes.
type ThirstChangedPayload struct {
	Level   float64 `json:"level"`
	Display int     `json:"display"`
	Label   string  `json:"label"`
}

// ThirstDamagePayload is emitted when dehydration damage is applied.
type ThirstDamagePayload struct {
	Message string `json:"message"`
}

// ItemConsumedPayload records a catalog item taking effect.
type ItemConsumedPayload struct {
	ItemID string  `json:"item_id"`
	Delta  float64 `json:"delta"`
}

// ConfigReloadedPayload records an administrative configuration swap.
type ConfigReloadedPayload struct {
	Config   thirst.Config `json:"config"`
	Adjusted int           `json:"adjusted"`
}

// Deps are the collaborators the engine is wired with at startup.
type Deps struct {
	Logger   *logger.Logger
	Metrics  *metrics.Collector
	EventLog *events.EventLog
	Thirst   storage.ThirstRepository
	Items    storage.ItemRepository
	Settings thirst.Settings
	Texts    TextSource
	Effects  EffectApplier

	// Runner is the host repeating-task facility. Nil selects the
	// self-rescheduling timer fallback.
	Runner     TaskRunner
	TickPeriod time.Duration // Defaults to TickRate
}

// Engine is the central orchestrator for the thirst system: it owns the
// state store, drives the tick loop, and keeps durable storage in sync.
type Engine struct {
	logger   *logger.Logger
	metrics  *metrics.Collector
	eventLog *events.EventLog
	repo     storage.ThirstRepository
	items    storage.ItemRepository
	settings thirst.Settings
	texts    TextSource
	effects  EffectApplier
	runner   TaskRunner

	tickPeriod time.Duration
	store      *StateStore
	threshold  *ThresholdController

	mu    sync.Mutex // guards cfg and sched
	cfg   thirst.Config
	sched Scheduler
}

// NewEngine wires up the thirst engine. Start must be called before any
// ticks happen.
func NewEngine(d Deps) *Engine {
	if d.TickPeriod == 0 {
		d.TickPeriod = TickRate
	}
	return &Engine{
		logger:     d.Logger,
		metrics:    d.Metrics,
		eventLog:   d.EventLog,
		repo:       d.Thirst,
		items:      d.Items,
		settings:   d.Settings,
		texts:      d.Texts,
		effects:    d.Effects,
		runner:     d.Runner,
		tickPeriod: d.TickPeriod,
		store:      NewStateStore(),
		threshold:  NewThresholdController(),
		cfg:        thirst.DefaultConfig(),
	}
}

// Start loads the configuration and begins ticking.
func (e *Engine) Start() {
	res := thirst.LoadConfig(e.settings)
	e.logAdjustments(res)

	e.mu.Lock()
	e.cfg = res.Config
	e.sched = NewScheduler(e.runner, e.tickPeriod, e.tick, e.logger)
	sched := e.sched
	e.mu.Unlock()

	sched.Start()
	e.logger.Info("Thirst engine started.")
}

// Stop cancels the scheduler and performs a final save for every survivor
// still in memory.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	sched := e.sched
	e.sched = nil
	cfg := e.cfg
	e.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	for _, xuid := range e.store.Active() {
		e.persist(ctx, xuid, cfg)
	}
	e.logger.Info("Thirst engine stopped; survivor records saved.")
}

// Reload re-reads the settings and atomically restarts the scheduler so no
// tick ever observes a half-updated configuration: the old task is fully
// stopped before the new one starts.
func (e *Engine) Reload(ctx context.Context) thirst.LoadResult {
	e.mu.Lock()
	old := e.sched
	e.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	res := thirst.LoadConfig(e.settings)
	e.logAdjustments(res)

	e.mu.Lock()
	e.cfg = res.Config
	e.sched = NewScheduler(e.runner, e.tickPeriod, e.tick, e.logger)
	sched := e.sched
	e.mu.Unlock()
	sched.Start()

	e.metrics.RecordReload()
	e.eventLog.Append(events.GameEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeConfigReloaded,
		Payload:   ConfigReloadedPayload{Config: res.Config, Adjusted: len(res.Adjustments)},
	})
	e.logger.Info("Thirst configuration reloaded.")
	return res
}

// Config returns the current configuration snapshot.
func (e *Engine) Config() thirst.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Levels returns a copy of the in-memory thirst levels for debug surfaces.
func (e *Engine) Levels() map[string]float64 {
	return e.store.Levels()
}

// Attach registers a survivor session: the durable record is adopted when it
// exists, otherwise the configured initial level is written as a new record.
// Storage failures are recovered with the initial level in memory only; the
// error is returned so callers can distinguish the two outcomes.
func (e *Engine) Attach(ctx context.Context, xuid, name string) (float64, error) {
	cfg := e.Config()
	e.store.Attach(xuid, name)

	rec, err := e.repo.Get(ctx, xuid)
	if err != nil {
		e.store.Reset(xuid, cfg.InitialLevel)
		e.logger.Error("Failed to load thirst for " + name + ": " + err.Error())
		return cfg.InitialLevel, err
	}

	var level float64
	if rec == nil {
		level = cfg.InitialLevel
		e.store.Reset(xuid, level)
		e.persist(ctx, xuid, cfg)
		e.logger.Info("New survivor " + name + ", initial thirst " + formatLevel(level))
	} else {
		level = thirst.Clamp(rec.Level)
		e.store.Reset(xuid, level)
		e.logger.Info("Loaded thirst for " + name + ": " + formatLevel(level))
	}

	e.eventLog.Append(events.GameEvent{
		ID:         events.GenerateEventID(),
		Timestamp:  time.Now(),
		Type:       events.EventTypeAttached,
		SurvivorID: xuid,
		Payload:    ThirstChangedPayload{Level: level, Display: int(level), Label: e.textOr("THIRST_LABEL", "Thirst")},
	})
	return level, nil
}

// Detach saves the survivor's state and forgets it from memory. The durable
// record is never destroyed.
func (e *Engine) Detach(ctx context.Context, xuid string) {
	if !e.store.Contains(xuid) {
		return
	}
	cfg := e.Config()
	e.persist(ctx, xuid, cfg)
	name := e.store.Name(xuid)
	e.store.Forget(xuid)

	e.eventLog.Append(events.GameEvent{
		ID:         events.GenerateEventID(),
		Timestamp:  time.Now(),
		Type:       events.EventTypeDetached,
		SurvivorID: xuid,
	})
	e.logger.Event("DETACH", xuid, name+" detached, thirst saved")
}

// OnMovement flags the survivor as moving for the current tick window.
// Repeated signals within one window are debounced into a single flag.
func (e *Engine) OnMovement(xuid string) {
	if !e.store.Contains(xuid) {
		return
	}
	e.store.MarkMoving(xuid)
}

// OnConsumption applies a direct thirst delta plus any accompanying timed
// effects, then writes through to durable storage.
func (e *Engine) OnConsumption(ctx context.Context, xuid string, delta float64, effs []thirst.Effect) {
	if !e.store.Contains(xuid) {
		return
	}
	cfg := e.Config()
	e.applyDelta(xuid, delta, cfg)
	for _, ef := range effs {
		if e.effects == nil {
			break
		}
		if err := e.effects.Apply(xuid, ef.Name, ef.Duration, ef.Amplifier); err != nil {
			e.logger.Error("Failed to apply effect " + ef.Name + " to " + xuid + ": " + err.Error())
		}
	}
	e.persist(ctx, xuid, cfg)
}

// OnItemConsumed resolves a consumed item through the catalog. Items with
// no catalog entry, and consumptions by detached survivors, are a silent
// no-op: nothing changes, so nothing is journaled.
func (e *Engine) OnItemConsumed(ctx context.Context, xuid, itemID string) error {
	if !e.store.Contains(xuid) {
		return nil
	}
	id := strings.ToLower(itemID)
	item, err := e.items.Get(ctx, id)
	if err != nil {
		e.logger.Error("Failed to look up item " + id + ": " + err.Error())
		return err
	}
	if item == nil {
		return nil
	}

	effs := make([]thirst.Effect, 0, len(item.Effects))
	for _, ef := range item.Effects {
		effs = append(effs, thirst.Effect{Name: ef.Name, Duration: ef.Duration, Amplifier: ef.Amplifier})
	}
	e.OnConsumption(ctx, xuid, item.ThirstDelta, effs)

	e.eventLog.Append(events.GameEvent{
		ID:         events.GenerateEventID(),
		Timestamp:  time.Now(),
		Type:       events.EventTypeItemConsumed,
		SurvivorID: xuid,
		Payload:    ItemConsumedPayload{ItemID: id, Delta: item.ThirstDelta},
	})
	e.logger.Event("CONSUME", xuid, "Consumed "+id)
	return nil
}

// OnTerminalEvent resets the survivor to the configured initial level (e.g.
// on death) and saves the overwrite immediately.
func (e *Engine) OnTerminalEvent(ctx context.Context, xuid string) {
	if !e.store.Contains(xuid) {
		return
	}
	cfg := e.Config()
	e.store.Reset(xuid, cfg.InitialLevel)
	e.persist(ctx, xuid, cfg)

	e.eventLog.Append(events.GameEvent{
		ID:         events.GenerateEventID(),
		Timestamp:  time.Now(),
		Type:       events.EventTypeTerminalReset,
		SurvivorID: xuid,
		Payload:    ThirstChangedPayload{Level: cfg.InitialLevel, Display: int(cfg.InitialLevel), Label: e.textOr("THIRST_LABEL", "Thirst")},
	})
	e.logger.Event("TERMINAL_RESET", xuid, "thirst reset to "+formatLevel(cfg.InitialLevel))
}

// tick processes one scheduler firing. The whole body is isolated so a
// failure degrades to "this tick did nothing further" while the scheduler
// itself survives and fires again.
func (e *Engine) tick() {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(fmt.Sprintf("thirst tick failed: %v", r))
		}
		e.metrics.RecordTick(time.Since(started))
	}()

	e.mu.Lock()
	cfg := e.cfg // one consistent snapshot for the whole tick
	checkTick := e.threshold.Advance()
	e.mu.Unlock()

	for _, xuid := range e.store.Active() {
		e.tickSurvivor(xuid, cfg, checkTick)
	}

	if checkTick {
		e.mu.Lock()
		e.threshold.Reset()
		e.mu.Unlock()
	}
}

// tickSurvivor runs one survivor's slice of the tick: decay, threshold
// check, movement flag clear, write-through save — in that order. A failure
// here must not reach the sibling survivors.
func (e *Engine) tickSurvivor(xuid string, cfg thirst.Config, checkTick bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(fmt.Sprintf("survivor tick failed for %s: %v", xuid, r))
		}
	}()

	// The Active() snapshot may be stale: a detach landing after it was
	// taken has already written the final save, and ticking the stale
	// entry would resurrect it and clobber that record.
	if !e.store.Contains(xuid) {
		return
	}

	moving := e.store.Moving(xuid)
	if delta := thirst.DecayDelta(cfg, moving); delta != 0 {
		e.applyDelta(xuid, delta, cfg)
	}

	if checkTick && e.store.Get(xuid, cfg.InitialLevel) <= thirst.MinLevel {
		e.applyThresholdDamage(xuid, cfg)
	}

	e.store.ClearMoving(xuid)
	e.persist(context.Background(), xuid, cfg)
}

// applyDelta mutates the survivor's level and emits the user-facing
// notification whenever the displayed whole number changes.
func (e *Engine) applyDelta(xuid string, delta float64, cfg thirst.Config) float64 {
	prev := e.store.Get(xuid, cfg.InitialLevel)
	next := e.store.ApplyDelta(xuid, delta, cfg.InitialLevel)

	if math.Floor(next) != math.Floor(prev) {
		e.eventLog.Append(events.GameEvent{
			ID:         events.GenerateEventID(),
			Timestamp:  time.Now(),
			Type:       events.EventTypeThirstChanged,
			SurvivorID: xuid,
			Payload:    ThirstChangedPayload{Level: next, Display: int(next), Label: e.textOr("THIRST_LABEL", "Thirst")},
		})
	}
	return next
}

// applyThresholdDamage re-verifies eligibility before hurting anyone: the
// survivor may have detached or recovered since the check tick began.
func (e *Engine) applyThresholdDamage(xuid string, cfg thirst.Config) {
	if !e.store.Contains(xuid) {
		return
	}
	if e.store.Get(xuid, cfg.InitialLevel) > thirst.MinLevel {
		return
	}

	if e.effects != nil {
		if err := e.effects.Apply(xuid, "instant_damage", 1, 1); err != nil {
			e.logger.Error("Failed to apply thirst damage to " + xuid + ": " + err.Error())
			return
		}
	}
	e.metrics.RecordDamage()

	msg := e.textOr("THIRST_DAMAGE_MESSAGE", "You are taking dehydration damage! Drink something!")
	e.eventLog.Append(events.GameEvent{
		ID:         events.GenerateEventID(),
		Timestamp:  time.Now(),
		Type:       events.EventTypeThirstDamage,
		SurvivorID: xuid,
		Payload:    ThirstDamagePayload{Message: msg},
	})
	e.logger.Event("THIRST_DAMAGE", xuid, "dehydration damage applied")
}

// persist writes one survivor's record through to durable storage. A failed
// write is logged and dropped; the in-memory value stays authoritative until
// the next successful save.
func (e *Engine) persist(ctx context.Context, xuid string, cfg thirst.Config) {
	rec := storage.ThirstRecord{
		XUID:      xuid,
		Name:      e.store.Name(xuid),
		Level:     e.store.Get(xuid, cfg.InitialLevel),
		UpdatedAt: time.Now().UTC(),
	}

	started := time.Now()
	err := e.repo.Upsert(ctx, rec)
	e.metrics.RecordSave(time.Since(started), err)
	if err != nil {
		e.logger.Warn("Failed to persist thirst for " + xuid + ": " + err.Error())
	}
}

func (e *Engine) logAdjustments(res thirst.LoadResult) {
	for _, adj := range res.Adjustments {
		e.logger.Warn("Setting " + adj.Key + " " + string(adj.Reason) +
			"; using default " + strconv.FormatFloat(adj.Applied, 'f', -1, 64))
	}
}

func (e *Engine) textOr(key, fallback string) string {
	if e.texts == nil {
		return fallback
	}
	if v := e.texts.Text(key); v != "" {
		return v
	}
	return fallback
}

func formatLevel(level float64) string {
	return strconv.FormatFloat(level, 'f', 1, 64)
}
