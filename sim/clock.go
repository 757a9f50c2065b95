package sim

// VTime is the logical simulation time. One unit is reported as 1 ns.
type VTime uint64

// Default timing of the testbench clock.
const (
	DefaultHalfPeriod  VTime = 5
	DefaultResetSettle VTime = 200
)

// A Clock holds the clock and reset sequencing state of a simulation.
//
// The level flips every half period. Reset stays asserted until the time has
// passed the settle threshold. A cycle is counted on every high level seen
// while reset is released.
type Clock struct {
	Time          VTime
	Cycle         uint64
	Level         bool
	ResetAsserted bool

	HalfPeriod  VTime
	ResetSettle VTime
}

// NewClock creates a clock with the clock low and reset asserted.
func NewClock(halfPeriod, resetSettle VTime) *Clock {
	if halfPeriod == 0 {
		panic("half period cannot be 0")
	}

	return &Clock{
		ResetAsserted: true,
		HalfPeriod:    halfPeriod,
		ResetSettle:   resetSettle,
	}
}

// ReleaseReset deasserts reset if the settle time has passed. It returns true
// only on the step where reset changes.
func (c *Clock) ReleaseReset() bool {
	if !c.ResetAsserted || c.Time <= c.ResetSettle {
		return false
	}

	c.ResetAsserted = false

	return true
}

// Toggle flips the clock level and returns the new level.
func (c *Clock) Toggle() bool {
	c.Level = !c.Level
	return c.Level
}

// ActiveEdge tells if the current step is an active clock edge.
func (c *Clock) ActiveEdge() bool {
	return c.Level && !c.ResetAsserted
}

// CountCycle records one more active edge.
func (c *Clock) CountCycle() uint64 {
	c.Cycle++
	return c.Cycle
}

// Advance moves the time forward by one half period.
func (c *Clock) Advance() {
	c.Time += c.HalfPeriod
}
