package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Indicator     string       `json:"indicator"`
	Compartment   int          `json:"compartment"`
	LastRotation  string       `json:"last_rotation"`
	NextRotation  string       `json:"next_rotation"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Rotations       int `json:"rotations"`
	DosesTaken      int `json:"doses_taken"`
	Reminders       int `json:"reminders"`
	NoPillsWarnings int `json:"no_pills_warnings"`
	SensorFaults    int `json:"sensor_faults"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs       int64  `json:"tick_ms"`
	PollMs       int64  `json:"poll_ms"`
	RotationMs   int64  `json:"rotation_ms"`
	ReminderMs   int64  `json:"reminder_ms"`
	FlashMs      int64  `json:"flash_ms"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	PresentMm    int    `json:"present_mm"`
	TakenMm      int    `json:"taken_mm"`
	Compartments int    `json:"compartments"`
	Broker       string `json:"broker"`
	HTTPPort     string `json:"http_port"`
}

// IndicatorString reports the LED as FLASHING, ON or OFF.
func IndicatorString(snap Snapshot) string {
	switch {
	case snap.Flashing:
		return "FLASHING"
	case snap.IndicatorOn:
		return "ON"
	default:
		return "OFF"
	}
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	return StatusInner{
		State:         state,
		Indicator:     IndicatorString(snap),
		Compartment:   snap.Compartment,
		LastRotation:  snap.LastRotationAt.UTC().Format(time.RFC3339),
		NextRotation:  snap.NextRotationAt().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Rotations:       snap.Counts.Rotations,
			DosesTaken:      snap.Counts.DosesTaken,
			Reminders:       snap.Counts.Reminders,
			NoPillsWarnings: snap.Counts.NoPillsWarnings,
			SensorFaults:    snap.Counts.SensorFaults,
		},
		Config: ConfigJSON{
			TickMs:       snap.Config.TickMs,
			PollMs:       snap.Config.PollMs,
			RotationMs:   snap.Config.RotationMs,
			ReminderMs:   snap.Config.ReminderMs,
			FlashMs:      snap.Config.FlashMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			PresentMm:    snap.Config.PresentMm,
			TakenMm:      snap.Config.TakenMm,
			Compartments: snap.Config.Compartments,
			Broker:       snap.Config.Broker,
			HTTPPort:     snap.Config.HTTPPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
