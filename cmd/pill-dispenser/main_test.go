package main

import (
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/pill-dispenser/internal/actuate"
	"github.com/sweeney/pill-dispenser/internal/dispense"
	"github.com/sweeney/pill-dispenser/internal/gpio"
	"github.com/sweeney/pill-dispenser/internal/mqtt"
	"github.com/sweeney/pill-dispenser/internal/scheduler"
	"github.com/sweeney/pill-dispenser/internal/sensor"
	"github.com/sweeney/pill-dispenser/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants — not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "home")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected network info")
	}
	if info.Type != "wifi" || info.IP != "192.168.1.100" || info.SSID != "home" {
		t.Errorf("got %+v", info)
	}
}

func TestReadNetworkInfoUnset(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil without NETWORK_STATUS, got %+v", info)
	}
}

func TestOptionsToDispenseConfig(t *testing.T) {
	opts := options{
		poll:        2 * time.Second,
		rotateEvery: 12 * time.Hour,
		reminder:    30 * time.Minute,
		flashFor:    2 * time.Minute,
		flashEvery:  500 * time.Millisecond,
		presentMm:   60,
		takenMm:     80,
		faultLimit:  5,
	}
	cfg := opts.dispenseConfig()
	if cfg.RotationInterval != 12*time.Hour {
		t.Errorf("rotation interval: got %v", cfg.RotationInterval)
	}
	if cfg.PresentThresholdMm != 60 || cfg.TakenThresholdMm != 80 {
		t.Errorf("thresholds: got %d/%d", cfg.PresentThresholdMm, cfg.TakenThresholdMm)
	}
	if cfg.FaultDegradeCount != 5 {
		t.Errorf("fault limit: got %d", cfg.FaultDegradeCount)
	}
}

// fakeClock provides a controllable now() for runLoop tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type loopHarness struct {
	clock     *fakeClock
	publisher *mqtt.FakePublisher
	act       *gpio.FakeActuator
	tick      chan time.Time
	sig       chan os.Signal
	done      chan error
}

func startLoop(t *testing.T, heartbeat time.Duration) *loopHarness {
	t.Helper()

	clock := &fakeClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	act := gpio.NewFakeActuator()
	wheel := actuate.NewWheel(act, 4096, 14, 0)
	indicator := actuate.NewIndicator(act)
	driver := sensor.NewDriver(sensor.NewFakeDevice(30), 5, 0)

	cfg := dispense.Config{
		RotationInterval:     time.Hour,
		ReminderTimeout:      30 * time.Minute,
		NoPillsFlashDuration: 2 * time.Minute,
		PollInterval:         2 * time.Second,
		FlashInterval:        500 * time.Millisecond,
		PresentThresholdMm:   60,
		TakenThresholdMm:     80,
		FaultDegradeCount:    5,
	}
	sched := scheduler.New(cfg, driver, wheel, indicator)

	publisher := mqtt.NewFakePublisher()
	tracker := status.NewTracker(clock.Now(), status.Config{Compartments: 14, RotationMs: 3600 * 1000})

	h := &loopHarness{
		clock:     clock,
		publisher: publisher,
		act:       act,
		tick:      make(chan time.Time),
		sig:       make(chan os.Signal, 1),
		done:      make(chan error, 1),
	}

	// Capture the start time before launching the loop goroutine so tests
	// can advance the clock immediately without racing the loop's startup.
	start := clock.Now()
	go func() {
		h.done <- runLoop(sched, wheel, publisher, publisher, tracker, heartbeat, start, clock.Now, h.tick, h.sig)
	}()
	return h
}

func (h *loopHarness) stop(t *testing.T) {
	t.Helper()
	h.sig <- syscall.SIGTERM
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not shut down")
	}
}

func TestRunLoopShutdownPublishesSystemEvent(t *testing.T) {
	h := startLoop(t, 0)
	h.stop(t)

	if len(h.publisher.SystemEvents) != 1 {
		t.Fatalf("system events: got %d, want 1", len(h.publisher.SystemEvents))
	}
	ev := h.publisher.SystemEvents[0]
	if ev.Event != "SHUTDOWN" || ev.Reason != "SIGTERM" {
		t.Errorf("got %s/%s", ev.Event, ev.Reason)
	}
	if !ev.Retained {
		t.Error("shutdown event should be retained")
	}
}

func TestRunLoopRotationPublishesEvents(t *testing.T) {
	h := startLoop(t, 0)

	h.clock.Advance(time.Hour)
	h.tick <- h.clock.Now()

	h.stop(t)

	if len(h.act.Rotations) != 1 {
		t.Fatalf("rotations: got %d, want 1", len(h.act.Rotations))
	}
	if len(h.publisher.Events) != 2 {
		t.Fatalf("published events: got %d, want 2", len(h.publisher.Events))
	}
	if h.publisher.Events[0].Type != dispense.EventRotation {
		t.Errorf("first event: got %s", h.publisher.Events[0].Type)
	}
	if h.publisher.Events[1].Type != dispense.EventEnterPillsPresent {
		t.Errorf("second event: got %s", h.publisher.Events[1].Type)
	}
}

// The rotation clock must be anchored at the start time captured by the
// caller, even when the clock advances before the loop processes a tick.
func TestRunLoopRotationClockAnchoredAtStart(t *testing.T) {
	h := startLoop(t, 0)

	h.clock.Advance(time.Hour - time.Minute)
	h.tick <- h.clock.Now()
	if got := len(h.act.Rotations); got != 0 {
		t.Fatalf("rotations before the interval elapsed: got %d, want 0", got)
	}

	h.clock.Advance(time.Minute)
	h.tick <- h.clock.Now()

	h.stop(t)

	if got := len(h.act.Rotations); got != 1 {
		t.Errorf("rotations after the interval elapsed: got %d, want 1", got)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	h := startLoop(t, 10*time.Minute)

	h.clock.Advance(10 * time.Minute)
	h.tick <- h.clock.Now()

	h.stop(t)

	var heartbeats int
	for _, ev := range h.publisher.SystemEvents {
		if ev.Event == "HEARTBEAT" {
			heartbeats++
		}
	}
	if heartbeats != 1 {
		t.Errorf("heartbeats: got %d, want 1", heartbeats)
	}
}
