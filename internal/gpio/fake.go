package gpio

// FakeActuator records issued motor steps and indicator levels for test
// assertions.
type FakeActuator struct {
	// Rotations contains the step count of each Rotate call, in order.
	Rotations []int

	// Levels contains every level passed to SetOutput, in order.
	Levels []bool

	// Closed tracks if Close was called.
	Closed bool

	// RotateError, if set, will be returned by Rotate.
	RotateError error

	// SetError, if set, will be returned by SetOutput.
	SetError error
}

// NewFakeActuator creates a FakeActuator for testing.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// Rotate records the requested step count.
func (f *FakeActuator) Rotate(steps int) error {
	if f.RotateError != nil {
		return f.RotateError
	}
	f.Rotations = append(f.Rotations, steps)
	return nil
}

// SetOutput records the indicator level.
func (f *FakeActuator) SetOutput(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Levels = append(f.Levels, on)
	return nil
}

// Close marks the actuator as closed.
func (f *FakeActuator) Close() error {
	f.Closed = true
	return nil
}

// TotalSteps returns the sum of all recorded rotations.
func (f *FakeActuator) TotalSteps() int {
	total := 0
	for _, s := range f.Rotations {
		total += s
	}
	return total
}

// LastLevel returns the most recent indicator level, or false if SetOutput
// was never called.
func (f *FakeActuator) LastLevel() bool {
	if len(f.Levels) == 0 {
		return false
	}
	return f.Levels[len(f.Levels)-1]
}
