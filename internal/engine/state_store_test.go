package engine

import (
	"reflect"
	"testing"
)

func TestStateStoreLazyDefault(t *testing.T) {
	s := NewStateStore()
	s.Attach("x1", "Ada")

	if got := s.Get("x1", 100.0); got != 100.0 {
		t.Errorf("Expected lazy default 100, got %v", got)
	}
	// Reading never materializes a level; a later default still applies.
	if got := s.Get("x1", 80.0); got != 80.0 {
		t.Errorf("Expected lazy default 80, got %v", got)
	}
}

func TestStateStoreApplyDeltaClamps(t *testing.T) {
	s := NewStateStore()
	s.Attach("x1", "Ada")

	if got := s.ApplyDelta("x1", -250, 100.0); got != 0.0 {
		t.Errorf("Expected clamp at 0, got %v", got)
	}
	if got := s.ApplyDelta("x1", 1000, 100.0); got != 100.0 {
		t.Errorf("Expected clamp at 100, got %v", got)
	}
}

func TestStateStoreApplyDeltaIgnoresUnattached(t *testing.T) {
	s := NewStateStore()

	if got := s.ApplyDelta("ghost", -5, 100.0); got != 95.0 {
		t.Errorf("Expected computed value 95, got %v", got)
	}
	if len(s.Levels()) != 0 {
		t.Error("Unattached identity must not be materialized")
	}
}

func TestStateStoreResetClamps(t *testing.T) {
	s := NewStateStore()
	s.Attach("x1", "Ada")
	s.Reset("x1", 350.0)
	if got := s.Get("x1", 0); got != 100.0 {
		t.Errorf("Expected reset clamped to 100, got %v", got)
	}
}

func TestStateStoreMovingFlag(t *testing.T) {
	s := NewStateStore()
	s.Attach("x1", "Ada")

	if s.Moving("x1") {
		t.Error("New survivor must start stationary")
	}
	s.MarkMoving("x1")
	s.MarkMoving("x1")
	if !s.Moving("x1") {
		t.Error("Expected moving flag set")
	}
	s.ClearMoving("x1")
	if s.Moving("x1") {
		t.Error("Expected moving flag cleared")
	}
}

func TestStateStoreForget(t *testing.T) {
	s := NewStateStore()
	s.Attach("x1", "Ada")
	s.Reset("x1", 40.0)
	s.MarkMoving("x1")

	s.Forget("x1")
	if s.Contains("x1") {
		t.Error("Expected survivor forgotten")
	}
	if s.Moving("x1") {
		t.Error("Forget must drop the moving flag")
	}
	if got := s.Get("x1", 100.0); got != 100.0 {
		t.Errorf("Forget must drop the level, got %v", got)
	}
}

func TestStateStoreActiveIsSorted(t *testing.T) {
	s := NewStateStore()
	s.Attach("c", "Cleo")
	s.Attach("a", "Ada")
	s.Attach("b", "Ben")

	want := []string{"a", "b", "c"}
	if got := s.Active(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
