// Package dispense contains the pill dispenser control logic: the state
// machine that decides, from wall-clock time and distance readings, when
// the compartment wheel rotates and what the reminder indicator shows.
// This package has NO external dependencies (no GPIO, I2C, MQTT, OS, or
// time.Sleep). Time is always injectable via time.Time parameters.
package dispense

import "time"

// State is the current mode of the dispenser.
type State string

const (
	// StateIdle: compartment empty, dose taken (or never loaded). No polling.
	StateIdle State = "IDLE"
	// StatePillsPresent: dose detected in the current compartment.
	StatePillsPresent State = "PILLS_PRESENT"
	// StateReminderActive: dose still present past the grace period,
	// indicator steady on.
	StateReminderActive State = "REMINDER_ACTIVE"
	// StateNoPillsWarning: compartment came up empty after a rotation,
	// indicator flashing.
	StateNoPillsWarning State = "NO_PILLS_WARNING"
	// StateNoPillsIdle: warning expired, indicator off, still watching for
	// a refill.
	StateNoPillsIdle State = "NO_PILLS_IDLE"
)

// Reading is one distance measurement. Valid=false means the sensor timed
// out or faulted; the distance is meaningless and must not be interpreted
// as near or far.
type Reading struct {
	DistanceMm int
	Valid      bool
}

// Config holds the timing and threshold constants. Loaded once at startup,
// never mutated.
type Config struct {
	RotationInterval     time.Duration // wheel advance cadence
	ReminderTimeout      time.Duration // grace before the steady reminder
	NoPillsFlashDuration time.Duration // how long the empty warning flashes
	PollInterval         time.Duration // sensor cadence in polling states
	FlashInterval        time.Duration // indicator toggle period
	PresentThresholdMm   int           // distance < this => pill present
	TakenThresholdMm     int           // distance > this => dose taken
	FaultDegradeCount    int           // consecutive faults before warning
}

// Context is the complete mutable state of the controller. It is a value:
// the scheduler passes it in and takes the updated copy back, so there is
// no hidden shared state and transitions are testable without hardware.
type Context struct {
	State                 State
	StateEnteredAt        time.Time
	LastRotationAt        time.Time
	LastSensorPollAt      time.Time
	IndicatorFlashing     bool
	IndicatorOn           bool
	LastIndicatorToggleAt time.Time
	ConsecutiveFaults     int
	Counts                EventCounts
}

// EventType identifies an observable controller event.
type EventType string

const (
	EventEnterIdle           EventType = "IDLE"
	EventEnterPillsPresent   EventType = "PILLS_PRESENT"
	EventEnterReminder       EventType = "REMINDER_ACTIVE"
	EventEnterNoPillsWarning EventType = "NO_PILLS_WARNING"
	EventEnterNoPillsIdle    EventType = "NO_PILLS_IDLE"
	EventRotation            EventType = "ROTATION"
	EventDoseTaken           EventType = "DOSE_TAKEN"
	EventSensorFault         EventType = "SENSOR_FAULT"
)

// Event is one observable occurrence: a state entry, a rotation, a dose
// classification, or a sensor fault.
type Event struct {
	Timestamp time.Time
	Type      EventType
	From      State // previous state for state-entry events
	To        State // state after the event
	Reading   Reading
}

// EventCounts tracks occurrences since startup, for heartbeats and the
// status page.
type EventCounts struct {
	Rotations       int
	DosesTaken      int
	Reminders       int
	NoPillsWarnings int
	SensorFaults    int
}

// PillsPresent reports whether the reading shows a dose in the compartment.
// Indeterminate (invalid) readings are never "present". The comparison is
// strictly less-than: a reading exactly at the threshold is not-present.
func (c Config) PillsPresent(r Reading) bool {
	return r.Valid && r.DistanceMm < c.PresentThresholdMm
}

// DoseTaken reports whether the reading shows a confidently emptied
// compartment (hand removed the dose, sensor sees the platform). Strictly
// greater-than: a reading exactly at the threshold is not-taken. Readings
// between the two thresholds are not-present but not confidently taken.
func (c Config) DoseTaken(r Reading) bool {
	return r.Valid && r.DistanceMm > c.TakenThresholdMm
}
