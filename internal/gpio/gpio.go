// Package gpio provides the dispenser's hardware outputs with hardware
// abstraction. The real implementation uses the Linux GPIO character
// device to drive the wheel stepper and the reminder LED. The fake
// implementation allows testing without hardware.
package gpio

// Actuator drives the wheel motor and the indicator output. Calls issue
// the I/O and return; there are no implicit retries.
type Actuator interface {
	// Rotate issues the given number of motor steps and returns once the
	// step pulses have been sent.
	Rotate(steps int) error

	// SetOutput sets the indicator line level.
	SetOutput(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Default pin assignments (BCM numbering)
const (
	DefaultPinStep = 20 // stepper STEP
	DefaultPinDir  = 21 // stepper DIR
	DefaultPinLED  = 26 // reminder indicator
)
