package engine

import (
	"sort"
	"sync"

	"github.com/arcworks/realistic-survival/server/internal/domain/thirst"
)

// StateStore owns the in-memory thirst levels, per-tick movement flags, and
// display labels for all attached survivors, behind a single mutex. Event
// handlers and the tick loop both mutate it concurrently.
type StateStore struct {
	mu     sync.Mutex
	levels map[string]float64
	moving map[string]bool
	names  map[string]string
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{
		levels: make(map[string]float64),
		moving: make(map[string]bool),
		names:  make(map[string]string),
	}
}

// Attach registers a survivor's display label. Level is set separately via
// Reset once the durable record has been consulted.
func (s *StateStore) Attach(xuid, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[xuid] = name
}

// Contains reports whether the survivor is currently attached.
func (s *StateStore) Contains(xuid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.names[xuid]
	return ok
}

// Name returns the display label registered at attach time.
func (s *StateStore) Name(xuid string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names[xuid]
}

// Get returns the cached level, or initial when the survivor has no cached
// value yet. The lazy default is not stored.
func (s *StateStore) Get(xuid string, initial float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level, ok := s.levels[xuid]; ok {
		return level
	}
	return initial
}

// ApplyDelta adds delta to the survivor's level, clamped into the valid
// range, stores the result and returns it. Logically one read-modify-write.
// Identities that are not attached are never materialized: the computed
// value is returned but not stored, so a detach racing a tick cannot leave
// a ghost entry behind.
func (s *StateStore) ApplyDelta(xuid string, delta, initial float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.levels[xuid]
	if !ok {
		current = initial
	}
	next := thirst.Clamp(current + delta)
	if _, attached := s.names[xuid]; !attached {
		return next
	}
	s.levels[xuid] = next
	return next
}

// Reset unconditionally overwrites the survivor's level.
func (s *StateStore) Reset(xuid string, level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[xuid] = thirst.Clamp(level)
}

// MarkMoving flags the survivor as having moved during the current tick
// window. Repeated signals within one window collapse into a single flag.
func (s *StateStore) MarkMoving(xuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moving[xuid] = true
}

// Moving reports the survivor's movement flag for the current tick window.
func (s *StateStore) Moving(xuid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moving[xuid]
}

// ClearMoving resets the movement flag. Called exactly once per tick after
// decay has been applied.
func (s *StateStore) ClearMoving(xuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.moving, xuid)
}

// Forget drops the survivor from memory. The durable record survives.
func (s *StateStore) Forget(xuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.levels, xuid)
	delete(s.moving, xuid)
	delete(s.names, xuid)
}

// Active returns a sorted snapshot of attached survivor identities. The
// tick loop iterates this snapshot so a detach mid-tick cannot corrupt the
// iteration.
func (s *StateStore) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.names))
	for xuid := range s.names {
		ids = append(ids, xuid)
	}
	sort.Strings(ids)
	return ids
}

// Levels returns a copy of all cached levels, keyed by identity.
func (s *StateStore) Levels() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.levels))
	for xuid, level := range s.levels {
		out[xuid] = level
	}
	return out
}
