package dispense

import "time"

// stateSpec holds the per-state behavior. The table below is the single
// source of truth for entry actions, exit actions, and poll rules; nothing
// outside it changes Context.State.
type stateSpec struct {
	polls bool
	event EventType
	enter func(ctx *Context, now time.Time)
	exit  func(ctx *Context, now time.Time)
	// poll returns the target state for a valid reading, or "" to stay.
	poll func(ctx *Context, cfg Config, r Reading, now time.Time) State
}

var table = map[State]stateSpec{
	StateIdle: {
		event: EventEnterIdle,
		enter: indicatorOff,
	},
	StatePillsPresent: {
		polls: true,
		event: EventEnterPillsPresent,
		enter: indicatorOff,
		poll: func(ctx *Context, cfg Config, r Reading, now time.Time) State {
			if !cfg.PillsPresent(r) {
				return StateIdle
			}
			if now.Sub(ctx.StateEnteredAt) >= cfg.ReminderTimeout {
				return StateReminderActive
			}
			return ""
		},
	},
	StateReminderActive: {
		polls: true,
		event: EventEnterReminder,
		enter: func(ctx *Context, now time.Time) {
			ctx.IndicatorOn = true
			ctx.IndicatorFlashing = false
			ctx.Counts.Reminders++
		},
		exit: func(ctx *Context, now time.Time) {
			ctx.IndicatorOn = false
		},
		poll: func(ctx *Context, cfg Config, r Reading, now time.Time) State {
			if !cfg.PillsPresent(r) {
				return StateIdle
			}
			return ""
		},
	},
	StateNoPillsWarning: {
		polls: true,
		event: EventEnterNoPillsWarning,
		enter: func(ctx *Context, now time.Time) {
			ctx.IndicatorFlashing = true
			ctx.IndicatorOn = true
			ctx.LastIndicatorToggleAt = now
			ctx.Counts.NoPillsWarnings++
		},
		exit: func(ctx *Context, now time.Time) {
			ctx.IndicatorFlashing = false
			ctx.IndicatorOn = false
		},
		poll: func(ctx *Context, cfg Config, r Reading, now time.Time) State {
			if cfg.PillsPresent(r) {
				return StatePillsPresent
			}
			if now.Sub(ctx.StateEnteredAt) >= cfg.NoPillsFlashDuration {
				return StateNoPillsIdle
			}
			return ""
		},
	},
	StateNoPillsIdle: {
		polls: true,
		event: EventEnterNoPillsIdle,
		enter: indicatorOff,
		poll: func(ctx *Context, cfg Config, r Reading, now time.Time) State {
			if cfg.PillsPresent(r) {
				return StatePillsPresent
			}
			return ""
		},
	},
}

func indicatorOff(ctx *Context, now time.Time) {
	ctx.IndicatorOn = false
	ctx.IndicatorFlashing = false
}

// NewContext returns the startup Context: idle, with all clocks set to now
// so the first rotation fires one full interval after boot.
func NewContext(now time.Time) Context {
	return Context{
		State:            StateIdle,
		StateEnteredAt:   now,
		LastRotationAt:   now,
		LastSensorPollAt: now,
	}
}

// Enter transitions the machine to the given state: runs the current
// state's exit action, updates StateEnteredAt, runs the new state's entry
// action, and returns the updated Context plus the entry event. Callers
// must only reach this through HandlePoll or DispatchAfterRotation.
func Enter(ctx Context, to State, now time.Time) (Context, Event) {
	from := ctx.State
	if spec, ok := table[from]; ok && spec.exit != nil {
		spec.exit(&ctx, now)
	}
	ctx.State = to
	ctx.StateEnteredAt = now
	spec := table[to]
	if spec.enter != nil {
		spec.enter(&ctx, now)
	}
	return ctx, Event{Timestamp: now, Type: spec.event, From: from, To: to}
}

// RotationDue reports whether the wheel should advance. It is independent
// of the current state.
func RotationDue(ctx Context, cfg Config, now time.Time) bool {
	return now.Sub(ctx.LastRotationAt) >= cfg.RotationInterval
}

// PollDue reports whether the current state wants a sensor reading now.
// Idle never polls; it waits for the next rotation.
func PollDue(ctx Context, cfg Config, now time.Time) bool {
	if !table[ctx.State].polls {
		return false
	}
	return now.Sub(ctx.LastSensorPollAt) >= cfg.PollInterval
}

// HandlePoll applies one steady-state sensor reading to the machine and
// returns the updated Context and any events to report.
//
// An invalid reading never moves the machine between presence states: it
// holds the current state, emits a fault event, and counts consecutive
// faults. After FaultDegradeCount consecutive faults the machine degrades
// to NoPillsWarning so the flashing indicator also flags sensor trouble.
func HandlePoll(ctx Context, cfg Config, r Reading, now time.Time) (Context, []Event) {
	ctx.LastSensorPollAt = now

	if !r.Valid {
		return handleFault(ctx, cfg, r, now)
	}
	ctx.ConsecutiveFaults = 0

	spec := table[ctx.State]
	if spec.poll == nil {
		return ctx, nil
	}
	target := spec.poll(&ctx, cfg, r, now)
	if target == "" || target == ctx.State {
		return ctx, nil
	}

	var events []Event
	// Leaving a pill-holding state for Idle means the dose left the
	// compartment; classify it as taken only past the taken threshold.
	if target == StateIdle && cfg.DoseTaken(r) {
		ctx.Counts.DosesTaken++
		events = append(events, Event{Timestamp: now, Type: EventDoseTaken, From: ctx.State, To: target, Reading: r})
	}
	ctx, entry := Enter(ctx, target, now)
	entry.Reading = r
	return ctx, append(events, entry)
}

func handleFault(ctx Context, cfg Config, r Reading, now time.Time) (Context, []Event) {
	ctx.Counts.SensorFaults++
	ctx.ConsecutiveFaults++
	events := []Event{{Timestamp: now, Type: EventSensorFault, From: ctx.State, To: ctx.State, Reading: r}}

	if cfg.FaultDegradeCount > 0 &&
		ctx.ConsecutiveFaults >= cfg.FaultDegradeCount &&
		ctx.State != StateNoPillsWarning {
		ctx.ConsecutiveFaults = 0
		var entry Event
		ctx, entry = Enter(ctx, StateNoPillsWarning, now)
		entry.Reading = r
		events = append(events, entry)
	}
	return ctx, events
}

// DispatchAfterRotation applies the forced poll taken right after a wheel
// advance. It discards the prior state: present dispatches to
// PillsPresent, empty to NoPillsWarning. An invalid reading also
// dispatches to NoPillsWarning — the one case where an unverifiable
// compartment is alerted rather than held. Entry actions run even when
// the target equals the prior state, so the warning clocks restart on
// every rotation.
func DispatchAfterRotation(ctx Context, cfg Config, r Reading, now time.Time) (Context, []Event) {
	ctx.LastRotationAt = now
	ctx.LastSensorPollAt = now
	ctx.Counts.Rotations++
	events := []Event{{Timestamp: now, Type: EventRotation, From: ctx.State, To: ctx.State, Reading: r}}

	target := StateNoPillsWarning
	if cfg.PillsPresent(r) {
		target = StatePillsPresent
	}
	if r.Valid {
		ctx.ConsecutiveFaults = 0
	} else {
		ctx.Counts.SensorFaults++
		ctx.ConsecutiveFaults++
		events = append(events, Event{Timestamp: now, Type: EventSensorFault, From: ctx.State, To: target, Reading: r})
	}

	ctx, entry := Enter(ctx, target, now)
	entry.Reading = r
	return ctx, append(events, entry)
}
