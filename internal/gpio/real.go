//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// stepPulse is the STEP line half-period. 28BYJ-48 class motors with a
// driver board step reliably at this rate.
const stepPulse = 1200 * time.Microsecond

// RealActuator drives actual hardware using the Linux GPIO character device.
type RealActuator struct {
	chip     *gpiocdev.Chip
	stepLine *gpiocdev.Line
	dirLine  *gpiocdev.Line
	ledLine  *gpiocdev.Line
}

// NewRealActuator requests the stepper and LED lines on actual Raspberry
// Pi hardware. The wheel only ever advances, so DIR is driven high once
// and left there.
func NewRealActuator(pinStep, pinDir, pinLED int) (*RealActuator, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	stepLine, err := chip.RequestLine(pinStep, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request STEP pin %d: %w", pinStep, err)
	}

	dirLine, err := chip.RequestLine(pinDir, gpiocdev.AsOutput(1))
	if err != nil {
		stepLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request DIR pin %d: %w", pinDir, err)
	}

	ledLine, err := chip.RequestLine(pinLED, gpiocdev.AsOutput(0))
	if err != nil {
		dirLine.Close()
		stepLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request LED pin %d: %w", pinLED, err)
	}

	return &RealActuator{
		chip:     chip,
		stepLine: stepLine,
		dirLine:  dirLine,
		ledLine:  ledLine,
	}, nil
}

// Rotate pulses the STEP line the given number of times. It returns once
// the last pulse has been issued.
func (r *RealActuator) Rotate(steps int) error {
	for i := 0; i < steps; i++ {
		if err := r.stepLine.SetValue(1); err != nil {
			return fmt.Errorf("step pin high: %w", err)
		}
		time.Sleep(stepPulse)
		if err := r.stepLine.SetValue(0); err != nil {
			return fmt.Errorf("step pin low: %w", err)
		}
		time.Sleep(stepPulse)
	}
	return nil
}

// SetOutput sets the indicator LED level.
func (r *RealActuator) SetOutput(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.ledLine.SetValue(v); err != nil {
		return fmt.Errorf("set LED: %w", err)
	}
	return nil
}

// Close releases GPIO resources. Pins are reconfigured to input
// (matching Pi boot defaults) before closing so the motor driver and LED
// see a clean state across restarts.
func (r *RealActuator) Close() error {
	var errs []error

	lines := []struct {
		name string
		line *gpiocdev.Line
	}{
		{"STEP", r.stepLine},
		{"DIR", r.dirLine},
		{"LED", r.ledLine},
	}
	for _, l := range lines {
		if l.line == nil {
			continue
		}
		if err := l.line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", l.name, err))
		}
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", l.name, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
