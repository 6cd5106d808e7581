// Package mqtt publishes dispenser events to a broker, with abstraction
// for testing. The controller never depends on this package; it is an
// external consumer of transition events.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/pill-dispenser/internal/dispense"
)

// Topic is the MQTT topic for dispenser controller events.
const Topic = "health/pill-dispenser/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "health/pill-dispenser/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a dispenser event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event dispense.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Dispenser DispenserPayload `json:"dispenser"`
}

// DispenserPayload contains the controller event details.
type DispenserPayload struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	From       string `json:"from,omitempty"`
	State      string `json:"state"`
	DistanceMm *int   `json:"distance_mm,omitempty"`
}

// FormatPayload creates the JSON payload for a dispenser event. The
// distance field is omitted for indeterminate readings so consumers never
// see a garbage measurement.
func FormatPayload(event dispense.Event) ([]byte, error) {
	p := Payload{
		Dispenser: DispenserPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			State:     string(event.To),
		},
	}
	if event.From != event.To {
		p.Dispenser.From = string(event.From)
	}
	if event.Reading.Valid {
		mm := event.Reading.DistanceMm
		p.Dispenser.DistanceMm = &mm
	}
	return json.Marshal(p)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
