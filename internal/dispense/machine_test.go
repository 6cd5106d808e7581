package dispense

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		RotationInterval:     1 * time.Hour,
		ReminderTimeout:      30 * time.Minute,
		NoPillsFlashDuration: 2 * time.Minute,
		PollInterval:         2 * time.Second,
		FlashInterval:        500 * time.Millisecond,
		PresentThresholdMm:   60,
		TakenThresholdMm:     80,
		FaultDegradeCount:    5,
	}
}

func present() Reading { return Reading{DistanceMm: 30, Valid: true} }
func taken() Reading   { return Reading{DistanceMm: 120, Valid: true} }
func fault() Reading   { return Reading{Valid: false} }

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func enterState(t *testing.T, s State) Context {
	t.Helper()
	ctx, _ := Enter(NewContext(t0), s, t0)
	return ctx
}

func TestNewContext(t *testing.T) {
	ctx := NewContext(t0)
	if ctx.State != StateIdle {
		t.Errorf("initial state: got %s, want %s", ctx.State, StateIdle)
	}
	if !ctx.StateEnteredAt.Equal(t0) || !ctx.LastRotationAt.Equal(t0) {
		t.Error("initial clocks should be set to startup time")
	}
	if ctx.IndicatorOn || ctx.IndicatorFlashing {
		t.Error("indicator should start off")
	}
}

func TestPresenceThresholdBoundary(t *testing.T) {
	cfg := testConfig()

	cases := []struct {
		distance int
		present  bool
		taken    bool
	}{
		{30, true, false},
		{59, true, false},
		{60, false, false}, // exactly at present threshold: not present
		{70, false, false}, // dead band between thresholds
		{80, false, false}, // exactly at taken threshold: not taken
		{81, false, true},
		{120, false, true},
	}
	for _, c := range cases {
		r := Reading{DistanceMm: c.distance, Valid: true}
		if got := cfg.PillsPresent(r); got != c.present {
			t.Errorf("PillsPresent(%dmm): got %v, want %v", c.distance, got, c.present)
		}
		if got := cfg.DoseTaken(r); got != c.taken {
			t.Errorf("DoseTaken(%dmm): got %v, want %v", c.distance, got, c.taken)
		}
	}

	if cfg.PillsPresent(fault()) {
		t.Error("invalid reading must not classify as present")
	}
	if cfg.DoseTaken(fault()) {
		t.Error("invalid reading must not classify as taken")
	}
}

func TestIdleDoesNotPoll(t *testing.T) {
	cfg := testConfig()
	ctx := NewContext(t0)
	if PollDue(ctx, cfg, t0.Add(time.Hour)) {
		t.Error("idle state should never request a poll")
	}
}

func TestPollDueRespectsInterval(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StatePillsPresent)
	ctx.LastSensorPollAt = t0

	if PollDue(ctx, cfg, t0.Add(1*time.Second)) {
		t.Error("poll should not be due before the interval")
	}
	if !PollDue(ctx, cfg, t0.Add(2*time.Second)) {
		t.Error("poll should be due at the interval")
	}
}

func TestPillsPresentToIdleOnTaken(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StatePillsPresent)

	now := t0.Add(10 * time.Second)
	ctx, events := HandlePoll(ctx, cfg, taken(), now)

	if ctx.State != StateIdle {
		t.Fatalf("state: got %s, want %s", ctx.State, StateIdle)
	}
	if len(events) != 2 {
		t.Fatalf("expected dose-taken + idle entry, got %d events", len(events))
	}
	if events[0].Type != EventDoseTaken {
		t.Errorf("first event: got %s, want %s", events[0].Type, EventDoseTaken)
	}
	if events[1].Type != EventEnterIdle {
		t.Errorf("second event: got %s, want %s", events[1].Type, EventEnterIdle)
	}
	if ctx.Counts.DosesTaken != 1 {
		t.Errorf("doses taken count: got %d, want 1", ctx.Counts.DosesTaken)
	}
	if !ctx.StateEnteredAt.Equal(now) {
		t.Error("StateEnteredAt should be updated on transition")
	}
}

func TestPillsPresentToIdleInDeadBand(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StatePillsPresent)

	// Not present but below the taken threshold: still leaves for Idle,
	// just without the dose-taken classification.
	ctx, events := HandlePoll(ctx, cfg, Reading{DistanceMm: 70, Valid: true}, t0.Add(2*time.Second))

	if ctx.State != StateIdle {
		t.Fatalf("state: got %s, want %s", ctx.State, StateIdle)
	}
	if len(events) != 1 || events[0].Type != EventEnterIdle {
		t.Fatalf("expected only the idle entry event, got %v", events)
	}
	if ctx.Counts.DosesTaken != 0 {
		t.Errorf("dead-band removal should not count as dose taken, got %d", ctx.Counts.DosesTaken)
	}
}

func TestReminderAfterTimeout(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StatePillsPresent)

	// Just under the timeout: stays put.
	ctx, events := HandlePoll(ctx, cfg, present(), t0.Add(cfg.ReminderTimeout-time.Second))
	if ctx.State != StatePillsPresent {
		t.Fatalf("state before timeout: got %s, want %s", ctx.State, StatePillsPresent)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events before timeout, got %d", len(events))
	}

	// At the timeout: reminder comes on.
	now := t0.Add(cfg.ReminderTimeout)
	ctx, events = HandlePoll(ctx, cfg, present(), now)
	if ctx.State != StateReminderActive {
		t.Fatalf("state at timeout: got %s, want %s", ctx.State, StateReminderActive)
	}
	if len(events) != 1 || events[0].Type != EventEnterReminder {
		t.Fatalf("expected reminder entry event, got %v", events)
	}
	if !ctx.IndicatorOn {
		t.Error("reminder entry should turn the indicator on")
	}
	if ctx.IndicatorFlashing {
		t.Error("reminder indicator is steady, not flashing")
	}

	// Repeated polls past the timeout do not re-enter.
	ctx, events = HandlePoll(ctx, cfg, present(), now.Add(cfg.PollInterval))
	if len(events) != 0 {
		t.Fatalf("expected no re-entry events, got %v", events)
	}
	if ctx.Counts.Reminders != 1 {
		t.Errorf("reminder count: got %d, want 1", ctx.Counts.Reminders)
	}
}

func TestReminderToIdleClearsIndicator(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StateReminderActive)
	if !ctx.IndicatorOn {
		t.Fatal("reminder entry should turn the indicator on")
	}

	ctx, _ = HandlePoll(ctx, cfg, taken(), t0.Add(time.Minute))
	if ctx.State != StateIdle {
		t.Fatalf("state: got %s, want %s", ctx.State, StateIdle)
	}
	if ctx.IndicatorOn {
		t.Error("reminder exit should turn the indicator off")
	}
	if ctx.Counts.DosesTaken != 1 {
		t.Errorf("doses taken count: got %d, want 1", ctx.Counts.DosesTaken)
	}
}

func TestNoPillsWarningPresenceOverridesFlashTimer(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StateNoPillsWarning)
	if !ctx.IndicatorFlashing {
		t.Fatal("warning entry should start flashing")
	}

	// Presence on any poll wins immediately, well before the flash
	// duration elapses.
	ctx, events := HandlePoll(ctx, cfg, present(), t0.Add(5*time.Second))
	if ctx.State != StatePillsPresent {
		t.Fatalf("state: got %s, want %s", ctx.State, StatePillsPresent)
	}
	if len(events) != 1 || events[0].Type != EventEnterPillsPresent {
		t.Fatalf("expected pills-present entry event, got %v", events)
	}
	if ctx.IndicatorFlashing || ctx.IndicatorOn {
		t.Error("leaving the warning should stop flashing and clear the indicator")
	}
}

func TestNoPillsWarningExpiresToNoPillsIdle(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StateNoPillsWarning)

	ctx, events := HandlePoll(ctx, cfg, taken(), t0.Add(cfg.NoPillsFlashDuration))
	if ctx.State != StateNoPillsIdle {
		t.Fatalf("state: got %s, want %s", ctx.State, StateNoPillsIdle)
	}
	if len(events) != 1 || events[0].Type != EventEnterNoPillsIdle {
		t.Fatalf("expected no-pills-idle entry event, got %v", events)
	}
	if ctx.IndicatorFlashing || ctx.IndicatorOn {
		t.Error("no-pills idle should have the indicator fully off")
	}
	if ctx.Counts.DosesTaken != 0 {
		t.Error("expiring an empty-compartment warning is not a taken dose")
	}
}

func TestNoPillsIdleRefillDetected(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StateNoPillsIdle)

	ctx, _ = HandlePoll(ctx, cfg, present(), t0.Add(10*time.Second))
	if ctx.State != StatePillsPresent {
		t.Fatalf("state: got %s, want %s", ctx.State, StatePillsPresent)
	}
}

func TestRotationDueIndependentOfState(t *testing.T) {
	cfg := testConfig()

	for _, s := range []State{StateIdle, StatePillsPresent, StateReminderActive, StateNoPillsWarning, StateNoPillsIdle} {
		ctx := enterState(t, s)
		ctx.LastRotationAt = t0
		if RotationDue(ctx, cfg, t0.Add(cfg.RotationInterval-time.Second)) {
			t.Errorf("%s: rotation due too early", s)
		}
		if !RotationDue(ctx, cfg, t0.Add(cfg.RotationInterval)) {
			t.Errorf("%s: rotation should be due at the interval", s)
		}
	}
}

func TestDispatchAfterRotationOverridesReminder(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StateReminderActive)
	now := t0.Add(cfg.RotationInterval)

	ctx, events := DispatchAfterRotation(ctx, cfg, present(), now)

	if ctx.State != StatePillsPresent {
		t.Fatalf("state: got %s, want %s", ctx.State, StatePillsPresent)
	}
	if ctx.IndicatorOn {
		t.Error("reminder indicator should be cleared by the forced dispatch")
	}
	if !ctx.LastRotationAt.Equal(now) {
		t.Error("LastRotationAt should advance on rotation")
	}
	if ctx.Counts.Rotations != 1 {
		t.Errorf("rotation count: got %d, want 1", ctx.Counts.Rotations)
	}
	if len(events) != 2 || events[0].Type != EventRotation || events[1].Type != EventEnterPillsPresent {
		t.Fatalf("expected rotation + entry events, got %v", events)
	}
}

func TestDispatchAfterRotationEmptyCompartment(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StatePillsPresent)

	ctx, _ = DispatchAfterRotation(ctx, cfg, taken(), t0.Add(cfg.RotationInterval))
	if ctx.State != StateNoPillsWarning {
		t.Fatalf("state: got %s, want %s", ctx.State, StateNoPillsWarning)
	}
	if !ctx.IndicatorFlashing {
		t.Error("empty compartment after rotation should flash")
	}
}

func TestDispatchAfterRotationReentersSameState(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StateNoPillsWarning)
	ctx.LastIndicatorToggleAt = t0

	// Still empty after the next rotation: the warning restarts, clocks
	// reset, even though the state name is unchanged.
	now := t0.Add(cfg.RotationInterval)
	ctx, events := DispatchAfterRotation(ctx, cfg, taken(), now)

	if ctx.State != StateNoPillsWarning {
		t.Fatalf("state: got %s, want %s", ctx.State, StateNoPillsWarning)
	}
	if !ctx.StateEnteredAt.Equal(now) {
		t.Error("forced re-entry should reset StateEnteredAt")
	}
	if !ctx.LastIndicatorToggleAt.Equal(now) {
		t.Error("forced re-entry should reset the flash-toggle clock")
	}
	if ctx.Counts.NoPillsWarnings != 2 {
		t.Errorf("warning count: got %d, want 2", ctx.Counts.NoPillsWarnings)
	}
	if len(events) != 2 || events[1].Type != EventEnterNoPillsWarning {
		t.Fatalf("expected rotation + warning entry events, got %v", events)
	}
}

func TestDispatchAfterRotationFaultReading(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StatePillsPresent)

	ctx, events := DispatchAfterRotation(ctx, cfg, fault(), t0.Add(cfg.RotationInterval))

	if ctx.State != StateNoPillsWarning {
		t.Fatalf("unverifiable compartment should alert: got %s, want %s", ctx.State, StateNoPillsWarning)
	}
	if ctx.Counts.SensorFaults != 1 {
		t.Errorf("sensor fault count: got %d, want 1", ctx.Counts.SensorFaults)
	}
	if len(events) != 3 {
		t.Fatalf("expected rotation + fault + entry events, got %d", len(events))
	}
	if events[1].Type != EventSensorFault {
		t.Errorf("second event: got %s, want %s", events[1].Type, EventSensorFault)
	}
}

func TestFaultHoldsState(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StateReminderActive)

	ctx, events := HandlePoll(ctx, cfg, fault(), t0.Add(2*time.Second))

	if ctx.State != StateReminderActive {
		t.Fatalf("fault must hold the current state: got %s", ctx.State)
	}
	if !ctx.IndicatorOn {
		t.Error("holding the reminder must keep the indicator on")
	}
	if len(events) != 1 || events[0].Type != EventSensorFault {
		t.Fatalf("expected a single fault event, got %v", events)
	}
	if ctx.ConsecutiveFaults != 1 || ctx.Counts.SensorFaults != 1 {
		t.Errorf("fault counters: got consecutive=%d total=%d", ctx.ConsecutiveFaults, ctx.Counts.SensorFaults)
	}
}

func TestFaultDegradesAfterConsecutiveCount(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StatePillsPresent)

	now := t0
	for i := 0; i < cfg.FaultDegradeCount-1; i++ {
		now = now.Add(cfg.PollInterval)
		var events []Event
		ctx, events = HandlePoll(ctx, cfg, fault(), now)
		if ctx.State != StatePillsPresent {
			t.Fatalf("fault %d: state changed early to %s", i+1, ctx.State)
		}
		if len(events) != 1 {
			t.Fatalf("fault %d: expected a single fault event, got %d", i+1, len(events))
		}
	}

	now = now.Add(cfg.PollInterval)
	ctx, events := HandlePoll(ctx, cfg, fault(), now)
	if ctx.State != StateNoPillsWarning {
		t.Fatalf("persistent faults should degrade to warning: got %s", ctx.State)
	}
	if len(events) != 2 || events[1].Type != EventEnterNoPillsWarning {
		t.Fatalf("expected fault + warning entry events, got %v", events)
	}
	if ctx.ConsecutiveFaults != 0 {
		t.Errorf("degrade should reset the consecutive counter, got %d", ctx.ConsecutiveFaults)
	}
}

func TestValidReadingResetsConsecutiveFaults(t *testing.T) {
	cfg := testConfig()
	ctx := enterState(t, StatePillsPresent)

	ctx, _ = HandlePoll(ctx, cfg, fault(), t0.Add(2*time.Second))
	ctx, _ = HandlePoll(ctx, cfg, fault(), t0.Add(4*time.Second))
	ctx, _ = HandlePoll(ctx, cfg, present(), t0.Add(6*time.Second))

	if ctx.ConsecutiveFaults != 0 {
		t.Errorf("valid reading should reset consecutive faults, got %d", ctx.ConsecutiveFaults)
	}
	if ctx.Counts.SensorFaults != 2 {
		t.Errorf("total fault count should be preserved, got %d", ctx.Counts.SensorFaults)
	}
}

func TestFlashingOnlyInWarningState(t *testing.T) {
	for _, s := range []State{StateIdle, StatePillsPresent, StateReminderActive, StateNoPillsIdle} {
		ctx := enterState(t, s)
		if ctx.IndicatorFlashing {
			t.Errorf("%s: flashing must only be set in %s", s, StateNoPillsWarning)
		}
	}
	ctx := enterState(t, StateNoPillsWarning)
	if !ctx.IndicatorFlashing {
		t.Error("warning entry must start flashing")
	}
}
