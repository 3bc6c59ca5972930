// Package thirst contains the pure calculation logic for the thirst system.
// This package is PURE and must NOT import any infrastructure packages.
package thirst

import "strconv"

// Level bounds. Every stored level is clamped into this range.
const (
	MinLevel = 0.0
	MaxLevel = 100.0
)

// Setting keys in the settings store.
const (
	KeyDecayPerSecond   = "thirst_decay_per_second"
	KeyMovingMultiplier = "thirst_moving_multiplier"
	KeyInitialLevel     = "thirst_initial"
)

// Config holds the process-wide decay parameters. Instances are treated as
// immutable snapshots; a reload produces a new value rather than mutating
// one in place.
type Config struct {
	DecayPerSecond   float64 `json:"decay_per_second"`
	MovingMultiplier float64 `json:"moving_multiplier"`
	InitialLevel     float64 `json:"initial_level"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		DecayPerSecond:   0.1,
		MovingMultiplier: 2.0,
		InitialLevel:     100.0,
	}
}

// Clamp bounds a level into [MinLevel, MaxLevel].
func Clamp(level float64) float64 {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// DecayDelta computes the per-tick level change for one entity.
// It never returns a positive value: the multiplier scales the decay, it
// never reverses it. Config must already be normalized (see LoadConfig).
func DecayDelta(cfg Config, moving bool) float64 {
	if cfg.DecayPerSecond == 0 {
		return 0
	}
	decay := cfg.DecayPerSecond
	if moving {
		decay *= cfg.MovingMultiplier
	}
	return -decay
}

// Effect is a timed consequence attached to an item or to threshold damage.
type Effect struct {
	Name      string `json:"name"`
	Duration  int    `json:"duration"` // seconds
	Amplifier int    `json:"amplifier"`
}

// AdjustReason classifies why a setting was replaced during loading.
type AdjustReason string

const (
	ReasonMissing    AdjustReason = "missing"
	ReasonUnparsable AdjustReason = "unparsable"
	ReasonOutOfRange AdjustReason = "out_of_range"
)

// Adjustment records one recovered setting: which key, why, and the value
// that was substituted and written back.
type Adjustment struct {
	Key     string
	Reason  AdjustReason
	Applied float64
}

// LoadResult is the outcome of LoadConfig. An empty Adjustments slice means
// every setting was present and valid.
type LoadResult struct {
	Config      Config
	Adjustments []Adjustment
}

// Settings is the key-value store contract the loader depends on.
// A Get miss is expected to auto-create the key in the backing file.
type Settings interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// LoadConfig reads the three thirst settings, substituting and persisting a
// default for any key that is missing, unparsable, or out of range. It never
// fails: the returned Config is always usable.
func LoadConfig(s Settings) LoadResult {
	def := DefaultConfig()
	var res LoadResult

	res.Config.DecayPerSecond = loadFloat(s, KeyDecayPerSecond, def.DecayPerSecond,
		func(v float64) bool { return v >= 0 }, &res.Adjustments)
	res.Config.MovingMultiplier = loadFloat(s, KeyMovingMultiplier, def.MovingMultiplier,
		func(v float64) bool { return v >= 1.0 }, &res.Adjustments)
	res.Config.InitialLevel = loadFloat(s, KeyInitialLevel, def.InitialLevel,
		func(v float64) bool { return v >= MinLevel && v <= MaxLevel }, &res.Adjustments)

	return res
}

func loadFloat(s Settings, key string, def float64, valid func(float64) bool, adjs *[]Adjustment) float64 {
	raw, ok := s.Get(key)
	if !ok {
		writeBack(s, key, def)
		*adjs = append(*adjs, Adjustment{Key: key, Reason: ReasonMissing, Applied: def})
		return def
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeBack(s, key, def)
		*adjs = append(*adjs, Adjustment{Key: key, Reason: ReasonUnparsable, Applied: def})
		return def
	}

	if !valid(v) {
		writeBack(s, key, def)
		*adjs = append(*adjs, Adjustment{Key: key, Reason: ReasonOutOfRange, Applied: def})
		return def
	}

	return v
}

func writeBack(s Settings, key string, v float64) {
	// Best effort: a failed write-back still leaves a usable in-memory value.
	_ = s.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
}
