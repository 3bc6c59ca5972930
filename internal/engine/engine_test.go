package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/arcworks/realistic-survival/server/internal/domain/thirst"
	"github.com/arcworks/realistic-survival/server/internal/events"
	"github.com/arcworks/realistic-survival/server/internal/infra/storage"
	"github.com/arcworks/realistic-survival/server/internal/platform/logger"
	"github.com/arcworks/realistic-survival/server/internal/platform/metrics"
)

type mapSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func (s *mapSettings) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *mapSettings) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

type memThirstRepo struct {
	mu        sync.Mutex
	records   map[string]storage.ThirstRecord
	upserts   int
	getErr    error
	upsertErr error
	panicOn   string // xuid whose Upsert panics
}

func (r *memThirstRepo) Get(_ context.Context, xuid string) (*storage.ThirstRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	rec, ok := r.records[xuid]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *memThirstRepo) Upsert(_ context.Context, rec storage.ThirstRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.XUID == r.panicOn {
		panic("storage backend gone")
	}
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.records[rec.XUID] = rec
	r.upserts++
	return nil
}

func (r *memThirstRepo) GetAll(_ context.Context) ([]storage.ThirstRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]storage.ThirstRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func (r *memThirstRepo) level(xuid string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[xuid]
	return rec.Level, ok
}

func (r *memThirstRepo) record(xuid string) (storage.ThirstRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[xuid]
	return rec, ok
}

type memItemRepo struct {
	mu    sync.Mutex
	items map[string]storage.ItemRecord
}

func (r *memItemRepo) Get(_ context.Context, itemID string) (*storage.ItemRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (r *memItemRepo) Upsert(_ context.Context, item storage.ItemRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ItemID] = item
	return nil
}

func (r *memItemRepo) GetAll(_ context.Context) ([]storage.ItemRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]storage.ItemRecord, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	return out, nil
}

type effectCall struct {
	xuid      string
	effect    string
	duration  int
	amplifier int
}

type recordingEffects struct {
	mu    sync.Mutex
	calls []effectCall
	err   error
}

func (a *recordingEffects) Apply(xuid, effect string, durationSeconds, amplifier int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.calls = append(a.calls, effectCall{xuid, effect, durationSeconds, amplifier})
	return nil
}

func (a *recordingEffects) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// newTestEngine starts an engine with no scheduling facility so tests drive
// tick() by hand.
func newTestEngine(settings map[string]string) (*Engine, *memThirstRepo, *memItemRepo, *recordingEffects) {
	repo := &memThirstRepo{records: make(map[string]storage.ThirstRecord)}
	items := &memItemRepo{items: make(map[string]storage.ItemRecord)}
	eff := &recordingEffects{}
	e := NewEngine(Deps{
		Logger:     logger.NewLogger(),
		Metrics:    metrics.Get(),
		EventLog:   events.NewEventLog(nil),
		Thirst:     repo,
		Items:      items,
		Settings:   &mapSettings{values: settings},
		Effects:    eff,
		TickPeriod: -1,
	})
	e.Start()
	return e, repo, items, eff
}

func defaultSettings() map[string]string {
	return map[string]string{
		thirst.KeyDecayPerSecond:   "1.0",
		thirst.KeyMovingMultiplier: "2.0",
		thirst.KeyInitialLevel:     "100",
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAttachNewSurvivorWritesInitialRecord(t *testing.T) {
	e, repo, _, _ := newTestEngine(defaultSettings())

	level, err := e.Attach(context.Background(), "x1", "Ada")
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if level != 100.0 {
		t.Errorf("Expected initial level 100, got %v", level)
	}
	stored, ok := repo.level("x1")
	if !ok || stored != 100.0 {
		t.Errorf("Expected one durable record at 100, got %v (present=%v)", stored, ok)
	}
}

func TestAttachExistingSurvivorAdoptsStoredLevel(t *testing.T) {
	e, repo, _, _ := newTestEngine(defaultSettings())
	repo.records["x1"] = storage.ThirstRecord{XUID: "x1", Name: "Ada", Level: 42.5}

	level, err := e.Attach(context.Background(), "x1", "Ada")
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if level != 42.5 {
		t.Errorf("Expected stored level 42.5, got %v", level)
	}
	if repo.upserts != 0 {
		t.Errorf("Adopting an existing record should not write, got %d upserts", repo.upserts)
	}
}

func TestAttachStorageFailureRecoversInMemory(t *testing.T) {
	e, repo, _, _ := newTestEngine(defaultSettings())
	repo.getErr = errors.New("database is locked")

	level, err := e.Attach(context.Background(), "x1", "Ada")
	if err == nil {
		t.Fatal("Expected the storage error to surface")
	}
	if level != 100.0 {
		t.Errorf("Expected recovery with initial level 100, got %v", level)
	}
	if got := e.Levels()["x1"]; got != 100.0 {
		t.Errorf("Expected in-memory level 100, got %v", got)
	}
}

func TestDecayExactness(t *testing.T) {
	settings := defaultSettings()
	settings[thirst.KeyDecayPerSecond] = "0.1"
	e, _, _, _ := newTestEngine(settings)
	e.Attach(context.Background(), "x1", "Ada")

	e.tick()
	if got := e.Levels()["x1"]; !almostEqual(got, 99.9) {
		t.Errorf("Expected 99.9 after one stationary tick, got %v", got)
	}

	e.OnMovement("x1")
	e.tick()
	if got := e.Levels()["x1"]; !almostEqual(got, 99.7) {
		t.Errorf("Expected 99.7 after one moving tick, got %v", got)
	}
}

func TestClampBounds(t *testing.T) {
	e, _, _, _ := newTestEngine(defaultSettings())
	e.Attach(context.Background(), "x1", "Ada")

	e.OnConsumption(context.Background(), "x1", -1000, nil)
	if got := e.Levels()["x1"]; got != thirst.MinLevel {
		t.Errorf("Expected clamp at %v, got %v", thirst.MinLevel, got)
	}
	e.OnConsumption(context.Background(), "x1", 1000, nil)
	if got := e.Levels()["x1"]; got != thirst.MaxLevel {
		t.Errorf("Expected clamp at %v, got %v", thirst.MaxLevel, got)
	}
}

func TestMovementDebounce(t *testing.T) {
	settings := defaultSettings()
	settings[thirst.KeyDecayPerSecond] = "0.1"
	e, _, _, _ := newTestEngine(settings)
	e.Attach(context.Background(), "x1", "Ada")

	// Many signals within one window collapse into a single moving tick.
	e.OnMovement("x1")
	e.OnMovement("x1")
	e.OnMovement("x1")
	e.tick()
	if got := e.Levels()["x1"]; !almostEqual(got, 99.8) {
		t.Errorf("Expected 99.8 after debounced moving tick, got %v", got)
	}

	// The flag does not leak into the next window.
	e.tick()
	if got := e.Levels()["x1"]; !almostEqual(got, 99.7) {
		t.Errorf("Expected 99.7 after stationary tick, got %v", got)
	}
}

func TestThresholdDamageCadence(t *testing.T) {
	e, _, _, eff := newTestEngine(defaultSettings())
	e.Attach(context.Background(), "x1", "Ada")
	e.OnConsumption(context.Background(), "x1", -1000, nil)

	for i := 0; i < 30; i++ {
		e.tick()
	}
	if got := eff.count(); got != 3 {
		t.Errorf("Expected damage on every 10th tick (3 in 30), got %d", got)
	}
	eff.mu.Lock()
	first := eff.calls[0]
	eff.mu.Unlock()
	if first.effect != "instant_damage" || first.duration != 1 || first.amplifier != 1 {
		t.Errorf("Unexpected damage effect: %+v", first)
	}
}

func TestThresholdRecoveryCancelsDamage(t *testing.T) {
	e, _, _, eff := newTestEngine(defaultSettings())
	e.Attach(context.Background(), "x1", "Ada")
	e.OnConsumption(context.Background(), "x1", -1000, nil)

	for i := 0; i < 9; i++ {
		e.tick()
	}
	e.OnConsumption(context.Background(), "x1", 50, nil)
	e.tick() // check tick, but the survivor recovered
	if got := eff.count(); got != 0 {
		t.Errorf("Expected no damage after recovery, got %d applications", got)
	}
}

func TestEndToEndDehydration(t *testing.T) {
	e, repo, _, eff := newTestEngine(defaultSettings())
	e.Attach(context.Background(), "x1", "Ada")

	for i := 0; i < 50; i++ {
		e.tick()
	}
	if got := e.Levels()["x1"]; got != 50.0 {
		t.Fatalf("Expected 50 after 50 stationary ticks, got %v", got)
	}

	for i := 0; i < 25; i++ {
		e.OnMovement("x1")
		e.tick()
	}
	if got := e.Levels()["x1"]; got != 0.0 {
		t.Fatalf("Expected 0 after 25 moving ticks, got %v", got)
	}

	// The next check tick (80) delivers exactly one damage application.
	for i := 0; i < 5; i++ {
		e.tick()
	}
	if got := eff.count(); got != 1 {
		t.Errorf("Expected exactly one damage application, got %d", got)
	}
	if got, _ := repo.level("x1"); got != 0.0 {
		t.Errorf("Expected write-through save at 0, got %v", got)
	}
}

func TestReloadSwapsConfig(t *testing.T) {
	e, _, _, _ := newTestEngine(defaultSettings())
	e.Attach(context.Background(), "x1", "Ada")

	e.tick()
	if got := e.Levels()["x1"]; got != 99.0 {
		t.Fatalf("Expected 99 before reload, got %v", got)
	}

	e.settings.Set(thirst.KeyDecayPerSecond, "5.0")
	res := e.Reload(context.Background())
	if res.Config.DecayPerSecond != 5.0 {
		t.Fatalf("Expected reloaded decay 5.0, got %v", res.Config.DecayPerSecond)
	}
	e.tick()
	if got := e.Levels()["x1"]; got != 94.0 {
		t.Errorf("Expected 94 after reloaded tick, got %v", got)
	}
}

func TestDetachSavesAndForgets(t *testing.T) {
	e, repo, _, _ := newTestEngine(defaultSettings())
	e.Attach(context.Background(), "x1", "Ada")
	e.OnConsumption(context.Background(), "x1", -40, nil)

	e.Detach(context.Background(), "x1")
	if got, ok := repo.level("x1"); !ok || got != 60.0 {
		t.Errorf("Expected final save at 60, got %v (present=%v)", got, ok)
	}
	if _, ok := e.Levels()["x1"]; ok {
		t.Error("Expected survivor forgotten from memory")
	}

	// Signals for a detached survivor are silent no-ops.
	e.OnMovement("x1")
	e.tick()
	if got, _ := repo.level("x1"); got != 60.0 {
		t.Errorf("Detached survivor must not tick, got %v", got)
	}
}

func TestDetachDuringTickLeavesRecordIntact(t *testing.T) {
	e, repo, _, _ := newTestEngine(defaultSettings())
	e.Attach(context.Background(), "x1", "Ada")
	e.OnConsumption(context.Background(), "x1", -60, nil)

	// A detach can land between the tick loop taking its snapshot and the
	// survivor's slice running; the stale slice must be a no-op.
	snapshot := e.store.Active()
	e.Detach(context.Background(), "x1")
	if got, _ := repo.level("x1"); got != 40.0 {
		t.Fatalf("Expected final save at 40 before stale tick, got %v", got)
	}

	for _, xuid := range snapshot {
		e.tickSurvivor(xuid, e.Config(), false)
	}

	rec, ok := repo.record("x1")
	if !ok || rec.Level != 40.0 {
		t.Errorf("Durable record clobbered after detach: level = %v, want 40", rec.Level)
	}
	if rec.Name != "Ada" {
		t.Errorf("Durable record name = %q, want Ada", rec.Name)
	}
	if _, ok := e.Levels()["x1"]; ok {
		t.Error("Detached survivor resurrected in the in-memory store")
	}
}

func TestOnItemConsumedDetachedIsSilent(t *testing.T) {
	e, _, items, eff := newTestEngine(defaultSettings())
	items.items["water_bottle"] = storage.ItemRecord{
		ItemID:      "water_bottle",
		Name:        "Water Bottle",
		ThirstDelta: 30,
	}

	if err := e.OnItemConsumed(context.Background(), "ghost", "water_bottle"); err != nil {
		t.Fatalf("Detached consumption must be a no-op, got error: %v", err)
	}
	if eff.count() != 0 {
		t.Errorf("Expected no effect applications, got %d", eff.count())
	}
	if got := len(e.eventLog.Replay()); got != 0 {
		t.Errorf("Expected nothing journaled for a detached survivor, got %d events", got)
	}
}

func TestTerminalEventResetsToInitial(t *testing.T) {
	e, repo, _, _ := newTestEngine(defaultSettings())
	repo.records["x1"] = storage.ThirstRecord{XUID: "x1", Name: "Ada", Level: 12.0}
	e.Attach(context.Background(), "x1", "Ada")

	e.OnTerminalEvent(context.Background(), "x1")
	if got := e.Levels()["x1"]; got != 100.0 {
		t.Errorf("Expected reset to 100, got %v", got)
	}
	if got, _ := repo.level("x1"); got != 100.0 {
		t.Errorf("Expected reset saved immediately, got %v", got)
	}
}

func TestSurvivorFailureIsIsolated(t *testing.T) {
	e, repo, _, _ := newTestEngine(defaultSettings())
	e.Attach(context.Background(), "x1", "Ada")
	e.Attach(context.Background(), "x2", "Ben")
	repo.panicOn = "x1"

	e.tick()
	if got := e.Levels()["x2"]; got != 99.0 {
		t.Errorf("Expected x2 to tick despite x1 failing, got %v", got)
	}
	if got, _ := repo.level("x2"); got != 99.0 {
		t.Errorf("Expected x2 persisted despite x1 failing, got %v", got)
	}
}

func TestOnItemConsumed(t *testing.T) {
	e, _, items, eff := newTestEngine(defaultSettings())
	e.Attach(context.Background(), "x1", "Ada")
	e.OnConsumption(context.Background(), "x1", -50, nil)
	items.items["golden_apple"] = storage.ItemRecord{
		ItemID:      "golden_apple",
		Name:        "Golden Apple",
		ThirstDelta: 20,
		Effects:     []storage.ItemEffect{{Name: "regeneration", Duration: 5, Amplifier: 2}},
	}

	if err := e.OnItemConsumed(context.Background(), "x1", "Golden_Apple"); err != nil {
		t.Fatalf("OnItemConsumed failed: %v", err)
	}
	if got := e.Levels()["x1"]; got != 70.0 {
		t.Errorf("Expected 70 after item, got %v", got)
	}
	if eff.count() != 1 {
		t.Fatalf("Expected one effect application, got %d", eff.count())
	}

	// Unknown items change nothing.
	if err := e.OnItemConsumed(context.Background(), "x1", "mystery_meat"); err != nil {
		t.Fatalf("Unknown item must be a no-op, got error: %v", err)
	}
	if got := e.Levels()["x1"]; got != 70.0 {
		t.Errorf("Unknown item must not change level, got %v", got)
	}
}

func TestSaveFailureKeepsMemoryAuthoritative(t *testing.T) {
	e, repo, _, _ := newTestEngine(defaultSettings())
	e.Attach(context.Background(), "x1", "Ada")
	repo.upsertErr = errors.New("disk full")

	e.tick()
	if got := e.Levels()["x1"]; got != 99.0 {
		t.Errorf("Expected decay to proceed despite save failure, got %v", got)
	}
}

func TestStopSavesAllSurvivors(t *testing.T) {
	e, repo, _, _ := newTestEngine(defaultSettings())
	e.Attach(context.Background(), "x1", "Ada")
	e.Attach(context.Background(), "x2", "Ben")
	e.tick()
	repo.mu.Lock()
	repo.upserts = 0
	repo.mu.Unlock()

	e.Stop(context.Background())
	if repo.upserts != 2 {
		t.Errorf("Expected a final save per survivor, got %d", repo.upserts)
	}
}
