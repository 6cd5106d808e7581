// Package sensor turns a raw time-of-flight ranging device into a single
// blocking distance poll with a bounded retry budget. The real
// implementation talks to a VL53L0X-family part over I2C; the fake allows
// testing without hardware.
package sensor

import (
	"log"
	"time"

	"github.com/sweeney/pill-dispenser/internal/dispense"
)

// Device is the raw ranging device. Any concrete binding (I2C part,
// simulator) is external to the control logic; the driver only composes
// these five operations.
type Device interface {
	// StartRanging begins a measurement cycle.
	StartRanging() error

	// DataReady reports whether a measurement is available to read.
	DataReady() (bool, error)

	// ReadDistanceMm returns the measured distance in millimetres.
	ReadDistanceMm() (int, error)

	// ClearInterrupt acknowledges the measurement so the next cycle can run.
	ClearInterrupt() error

	// StopRanging ends the measurement cycle.
	StopRanging() error

	// Close releases device resources.
	Close() error
}

// Driver wraps a Device into the bounded poll. It holds no reading state:
// every Poll produces a fresh Reading.
type Driver struct {
	dev        Device
	maxRetries int
	retryDelay time.Duration
	sleep      func(time.Duration)
}

// NewDriver creates a Driver polling data-ready up to maxRetries times,
// retryDelay apart.
func NewDriver(dev Device, maxRetries int, retryDelay time.Duration) *Driver {
	return &Driver{
		dev:        dev,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		sleep:      time.Sleep,
	}
}

// Poll runs one full ranging cycle and returns the reading. It blocks for
// at most maxRetries*retryDelay waiting for data-ready; on exhaustion, or
// on any device error, it returns an invalid reading rather than a stale
// or garbage distance. The ranging cycle is always stopped before
// returning, success or failure.
func (d *Driver) Poll() dispense.Reading {
	if err := d.dev.StartRanging(); err != nil {
		log.Printf("sensor: start ranging: %v", err)
		return dispense.Reading{}
	}
	defer func() {
		if err := d.dev.StopRanging(); err != nil {
			log.Printf("sensor: stop ranging: %v", err)
		}
	}()

	ready := false
	for i := 0; i < d.maxRetries; i++ {
		ok, err := d.dev.DataReady()
		if err != nil {
			log.Printf("sensor: data ready: %v", err)
			return dispense.Reading{}
		}
		if ok {
			ready = true
			break
		}
		d.sleep(d.retryDelay)
	}
	if !ready {
		log.Printf("sensor: timeout waiting for measurement (%d retries)", d.maxRetries)
		return dispense.Reading{}
	}

	mm, err := d.dev.ReadDistanceMm()
	if err != nil {
		log.Printf("sensor: read distance: %v", err)
		return dispense.Reading{}
	}

	if err := d.dev.ClearInterrupt(); err != nil {
		log.Printf("sensor: clear interrupt: %v", err)
		// The distance itself is good; keep it.
	}

	return dispense.Reading{DistanceMm: mm, Valid: true}
}

// Close releases the underlying device.
func (d *Driver) Close() error {
	return d.dev.Close()
}
