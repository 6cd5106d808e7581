//go:build !linux

package gpio

import "errors"

// RealActuator is not available on non-Linux platforms.
type RealActuator struct{}

// NewRealActuator returns an error on non-Linux platforms.
func NewRealActuator(pinStep, pinDir, pinLED int) (*RealActuator, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Rotate is not implemented on non-Linux platforms.
func (r *RealActuator) Rotate(steps int) error {
	return errors.New("gpio: not supported")
}

// SetOutput is not implemented on non-Linux platforms.
func (r *RealActuator) SetOutput(on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealActuator) Close() error {
	return nil
}
