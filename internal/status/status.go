// Package status provides a thread-safe status tracker for the
// pill-dispenser daemon. It is read by the HTTP handlers and serialized
// into MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/pill-dispenser/internal/dispense"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs       int64
	PollMs       int64
	RotationMs   int64
	ReminderMs   int64
	FlashMs      int64
	HeartbeatMs  int64
	PresentMm    int
	TakenMm      int
	Compartments int
	Broker       string
	HTTPPort     string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	State          dispense.State
	IndicatorOn    bool
	Flashing       bool
	Compartment    int
	LastRotationAt time.Time
	Counts         dispense.EventCounts
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Network        *NetworkInfo
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// NextRotationAt returns when the wheel is next due to advance.
func (s Snapshot) NextRotationAt() time.Time {
	return s.LastRotationAt.Add(time.Duration(s.Config.RotationMs) * time.Millisecond)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:      startTime,
			LastRotationAt: startTime,
			Config:         cfg,
		},
	}
}

// Update sets the controller state visible to HTTP and MQTT consumers.
// Called from the run loop on every tick.
func (t *Tracker) Update(ctx dispense.Context, compartment int) {
	t.mu.Lock()
	t.snap.State = ctx.State
	t.snap.IndicatorOn = ctx.IndicatorOn
	t.snap.Flashing = ctx.IndicatorFlashing
	t.snap.Compartment = compartment
	t.snap.LastRotationAt = ctx.LastRotationAt
	t.snap.Counts = ctx.Counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(net *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = net
	t.mu.Unlock()
}

// Snapshot returns a copy of the current state with Now filled in.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	snap := t.snap
	t.mu.RUnlock()
	snap.Now = time.Now()
	return snap
}
