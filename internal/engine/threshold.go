package engine

// DamageCheckIntervalSeconds is how often the dehydration damage check runs.
// Intentionally coarser than the decay tick so a survivor at zero is not
// damaged several times within the same short window.
const DamageCheckIntervalSeconds = 10

// ThresholdController counts ticks between dehydration damage checks.
// It is only touched from inside the tick body, under the engine lock.
type ThresholdController struct {
	secondsSinceCheck int
	interval          int
}

// NewThresholdController creates a controller using the standard interval.
func NewThresholdController() *ThresholdController {
	return &ThresholdController{interval: DamageCheckIntervalSeconds}
}

// Advance increments the counter and reports whether this tick is a check
// tick. The caller must Reset after evaluating all survivors.
func (t *ThresholdController) Advance() bool {
	t.secondsSinceCheck++
	return t.secondsSinceCheck >= t.interval
}

// Reset zeroes the counter at the end of a check tick.
func (t *ThresholdController) Reset() {
	t.secondsSinceCheck = 0
}
