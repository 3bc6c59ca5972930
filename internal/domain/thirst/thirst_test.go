package thirst

import "testing"

type fakeSettings struct {
	values map[string]string
	writes map[string]string
}

func newFakeSettings(values map[string]string) *fakeSettings {
	if values == nil {
		values = make(map[string]string)
	}
	return &fakeSettings{values: values, writes: make(map[string]string)}
}

func (f *fakeSettings) Get(key string) (string, bool) {
	v, ok := f.values[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (f *fakeSettings) Set(key, value string) error {
	f.values[key] = value
	f.writes[key] = value
	return nil
}

func TestDecayDeltaStationaryAndMoving(t *testing.T) {
	cfg := Config{DecayPerSecond: 0.1, MovingMultiplier: 2.0, InitialLevel: 100}

	if d := DecayDelta(cfg, false); d != -0.1 {
		t.Errorf("stationary delta = %v, want -0.1", d)
	}
	if d := DecayDelta(cfg, true); d != -0.2 {
		t.Errorf("moving delta = %v, want -0.2", d)
	}
}

func TestDecayDeltaZeroFastPath(t *testing.T) {
	cfg := Config{DecayPerSecond: 0, MovingMultiplier: 5.0}

	if d := DecayDelta(cfg, true); d != 0 {
		t.Errorf("zero-decay delta = %v, want exactly 0", d)
	}
}

func TestClampBounds(t *testing.T) {
	if v := Clamp(-12.5); v != MinLevel {
		t.Errorf("Clamp(-12.5) = %v, want %v", v, MinLevel)
	}
	if v := Clamp(250); v != MaxLevel {
		t.Errorf("Clamp(250) = %v, want %v", v, MaxLevel)
	}
	if v := Clamp(42.5); v != 42.5 {
		t.Errorf("Clamp(42.5) = %v, want 42.5", v)
	}
}

func TestLoadConfigAllValid(t *testing.T) {
	s := newFakeSettings(map[string]string{
		KeyDecayPerSecond:   "0.5",
		KeyMovingMultiplier: "3.0",
		KeyInitialLevel:     "80",
	})

	res := LoadConfig(s)

	if len(res.Adjustments) != 0 {
		t.Fatalf("expected no adjustments, got %+v", res.Adjustments)
	}
	want := Config{DecayPerSecond: 0.5, MovingMultiplier: 3.0, InitialLevel: 80}
	if res.Config != want {
		t.Errorf("config = %+v, want %+v", res.Config, want)
	}
	if len(s.writes) != 0 {
		t.Errorf("unexpected write-backs: %v", s.writes)
	}
}

func TestLoadConfigMissingKeysWriteDefaults(t *testing.T) {
	s := newFakeSettings(nil)

	res := LoadConfig(s)

	if res.Config != DefaultConfig() {
		t.Errorf("config = %+v, want defaults", res.Config)
	}
	if len(res.Adjustments) != 3 {
		t.Fatalf("expected 3 adjustments, got %d", len(res.Adjustments))
	}
	for _, a := range res.Adjustments {
		if a.Reason != ReasonMissing {
			t.Errorf("adjustment %s reason = %s, want %s", a.Key, a.Reason, ReasonMissing)
		}
	}
	if s.writes[KeyDecayPerSecond] != "0.1" {
		t.Errorf("decay write-back = %q, want %q", s.writes[KeyDecayPerSecond], "0.1")
	}
}

func TestLoadConfigUnparsableAndOutOfRange(t *testing.T) {
	s := newFakeSettings(map[string]string{
		KeyDecayPerSecond:   "fast",
		KeyMovingMultiplier: "0.5", // multiplier must never reduce decay
		KeyInitialLevel:     "150",
	})

	res := LoadConfig(s)

	byKey := make(map[string]Adjustment)
	for _, a := range res.Adjustments {
		byKey[a.Key] = a
	}

	if byKey[KeyDecayPerSecond].Reason != ReasonUnparsable {
		t.Errorf("decay reason = %s, want %s", byKey[KeyDecayPerSecond].Reason, ReasonUnparsable)
	}
	if byKey[KeyMovingMultiplier].Reason != ReasonOutOfRange {
		t.Errorf("multiplier reason = %s, want %s", byKey[KeyMovingMultiplier].Reason, ReasonOutOfRange)
	}
	if byKey[KeyInitialLevel].Reason != ReasonOutOfRange {
		t.Errorf("initial reason = %s, want %s", byKey[KeyInitialLevel].Reason, ReasonOutOfRange)
	}
	if res.Config != DefaultConfig() {
		t.Errorf("config = %+v, want defaults", res.Config)
	}
}
