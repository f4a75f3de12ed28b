// Package clock tracks simulated time advanced explicitly by the host.
//
// Time only moves when the host calls Advance; dt is always a contract
// parameter passed in by the caller, never a measured wall-clock interval
// (SPEC_FULL.md §5).
package clock

import (
	"fmt"

	"git.fiblab.net/sim/microtraffic/utils/config"
)

// Clock is bookkeeping state for the provider's tick loop: how far the
// simulation has progressed and over what range it is allowed to run.
type Clock struct {
	StartStep int32
	EndStep   int32 // simulation runs over [StartStep, EndStep)

	Step int32   // current tick number
	T    float64 // current sim time (s)
}

// New builds a Clock from the scenario's step configuration.
func New(step config.ControlStep) *Clock {
	c := &Clock{
		StartStep: step.Start,
		EndStep:   step.Start + step.Total,
	}
	c.Reset()
	return c
}

// Reset rewinds the clock to its configured start.
func (c *Clock) Reset() {
	c.Step = c.StartStep
	c.T = 0
}

// Done reports whether the configured step range has been exhausted.
func (c *Clock) Done() bool {
	return c.Step >= c.EndStep
}

// Advance moves the clock forward by dt and increments the tick counter.
// Apart from Reset, it is the only place Clock's state changes.
func (c *Clock) Advance(dt float64) {
	c.T += dt
	c.Step++
}

// String renders the current sim time as HH:MM:SS.
func (c *Clock) String() string {
	h, m, s := c.HourMinuteSecond()
	return fmt.Sprintf("%02d:%02d:%02.0f", h, m, s)
}

// HourMinuteSecond splits the current sim time into hours, minutes and a
// fractional-second remainder.
func (c *Clock) HourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
