// Package actuate sits between the control logic and the GPIO layer: it
// turns "advance one compartment" into a concrete step count and settle
// wait, and owns the indicator output including flash toggling.
package actuate

import (
	"fmt"
	"time"

	"github.com/sweeney/pill-dispenser/internal/gpio"
)

// Wheel advances the compartment wheel. One call always advances exactly
// one compartment.
type Wheel struct {
	act          gpio.Actuator
	stepsPerRev  int
	compartments int
	settle       time.Duration
	position     int // compartments advanced since start
	sleep        func(time.Duration)
}

// NewWheel creates a Wheel dividing stepsPerRev motor steps across the
// given number of compartments.
func NewWheel(act gpio.Actuator, stepsPerRev, compartments int, settle time.Duration) *Wheel {
	return &Wheel{
		act:          act,
		stepsPerRev:  stepsPerRev,
		compartments: compartments,
		settle:       settle,
		sleep:        time.Sleep,
	}
}

// RotateOneCompartment advances the wheel by one compartment and waits the
// settle duration before returning. Step counts are derived from the
// cumulative step total, so a stepsPerRev that does not divide evenly
// never accumulates drift across a full revolution.
func (w *Wheel) RotateOneCompartment() error {
	steps := w.cumulativeSteps(w.position+1) - w.cumulativeSteps(w.position)
	if err := w.act.Rotate(steps); err != nil {
		return fmt.Errorf("rotate wheel: %w", err)
	}
	w.position++
	w.sleep(w.settle)
	return nil
}

// Compartment returns the wheel's current slot, 0-based.
func (w *Wheel) Compartment() int {
	return w.position % w.compartments
}

// Rotations returns the number of compartment advances since start.
func (w *Wheel) Rotations() int {
	return w.position
}

func (w *Wheel) cumulativeSteps(position int) int {
	return position * w.stepsPerRev / w.compartments
}

// Indicator drives the reminder output. It caches the last written level
// so the scheduler can assert the desired level every tick without
// redundant hardware writes.
type Indicator struct {
	act     gpio.Actuator
	level   bool
	written bool
}

// NewIndicator creates an Indicator over the given actuator.
func NewIndicator(act gpio.Actuator) *Indicator {
	return &Indicator{act: act}
}

// Set drives the output to the given level. A repeated level is a no-op.
func (i *Indicator) Set(on bool) error {
	if i.written && i.level == on {
		return nil
	}
	if err := i.act.SetOutput(on); err != nil {
		return fmt.Errorf("set indicator: %w", err)
	}
	i.level = on
	i.written = true
	return nil
}

// TickFlash advances the flash waveform. If flashing and the interval has
// elapsed since the last toggle, it returns the flipped level and the new
// toggle time; otherwise it returns the inputs unchanged. Pure: callable
// every scheduler tick regardless of state.
func TickFlash(now time.Time, interval time.Duration, flashing, on bool, lastToggle time.Time) (bool, time.Time) {
	if !flashing || now.Sub(lastToggle) < interval {
		return on, lastToggle
	}
	return !on, now
}
