// Package scheduler runs the dispenser's per-tick control sequence:
// advance the flash waveform, fire a due rotation with its forced
// post-rotation dispatch, apply the current state's poll rule, and write
// the indicator level back to hardware. Each tick completes fully before
// the next begins, and time arrives as a parameter so tests can simulate
// elapsed time without sleeping.
package scheduler

import (
	"log"
	"time"

	"github.com/sweeney/pill-dispenser/internal/actuate"
	"github.com/sweeney/pill-dispenser/internal/dispense"
)

// Sensor provides one fresh distance reading per call.
type Sensor interface {
	Poll() dispense.Reading
}

// Rotator advances the wheel by exactly one compartment per call.
type Rotator interface {
	RotateOneCompartment() error
}

// Indicator drives the reminder output level.
type Indicator interface {
	Set(on bool) error
}

// Scheduler owns the ordered tick sequence. It holds no timing state of
// its own; everything lives in the dispense.Context passed through Tick.
type Scheduler struct {
	cfg       dispense.Config
	sensor    Sensor
	wheel     Rotator
	indicator Indicator

	// OnEvent, if set, receives every controller event after it is
	// logged. Used to fan out to MQTT and the status tracker.
	OnEvent func(dispense.Event)
}

// New creates a Scheduler over the given hardware.
func New(cfg dispense.Config, sensor Sensor, wheel Rotator, indicator Indicator) *Scheduler {
	return &Scheduler{cfg: cfg, sensor: sensor, wheel: wheel, indicator: indicator}
}

// Tick runs one full control iteration at the given time and returns the
// updated Context.
func (s *Scheduler) Tick(ctx dispense.Context, now time.Time) dispense.Context {
	ctx.IndicatorOn, ctx.LastIndicatorToggleAt = actuate.TickFlash(
		now, s.cfg.FlashInterval, ctx.IndicatorFlashing, ctx.IndicatorOn, ctx.LastIndicatorToggleAt)

	if dispense.RotationDue(ctx, s.cfg, now) {
		ctx = s.rotate(ctx, now)
	}

	if dispense.PollDue(ctx, s.cfg, now) {
		var events []dispense.Event
		ctx, events = dispense.HandlePoll(ctx, s.cfg, s.sensor.Poll(), now)
		s.emit(events)
	}

	if err := s.indicator.Set(ctx.IndicatorOn); err != nil {
		log.Printf("scheduler: %v", err)
	}
	return ctx
}

// rotate advances the wheel, takes the forced post-settle poll, and
// dispatches the resulting state, discarding the prior one.
func (s *Scheduler) rotate(ctx dispense.Context, now time.Time) dispense.Context {
	if err := s.wheel.RotateOneCompartment(); err != nil {
		// The advance never happened; hold state and retry at the next
		// rotation interval instead of hammering a stuck motor.
		log.Printf("scheduler: %v", err)
		ctx.LastRotationAt = now
		return ctx
	}

	r := s.sensor.Poll()
	ctx, events := dispense.DispatchAfterRotation(ctx, s.cfg, r, now)
	s.emit(events)
	return ctx
}

func (s *Scheduler) emit(events []dispense.Event) {
	for _, e := range events {
		switch e.Type {
		case dispense.EventSensorFault:
			log.Printf("event: %s in %s", e.Type, e.From)
		case dispense.EventRotation, dispense.EventDoseTaken:
			log.Printf("event: %s (distance=%dmm)", e.Type, e.Reading.DistanceMm)
		default:
			log.Printf("event: %s -> %s", e.From, e.To)
		}
		if s.OnEvent != nil {
			s.OnEvent(e)
		}
	}
}
