package sensor

import "errors"

// FakeDevice is a test double that plays back scripted distances.
type FakeDevice struct {
	// Distances contains scripted measurements in millimetres. Each full
	// Poll consumes the next one. When exhausted, the last distance is
	// returned repeatedly.
	Distances []int

	// NotReadyCount makes DataReady report false this many times before
	// reporting true. Reset per ranging cycle.
	NotReadyCount int

	// StartError / ReadyError / ReadError, if set, are returned by the
	// corresponding method.
	StartError error
	ReadyError error
	ReadError  error

	// NeverReady makes DataReady always report false (simulates timeout).
	NeverReady bool

	// Bookkeeping for assertions.
	Ranging    bool
	StartCalls int
	StopCalls  int
	ClearCalls int
	Closed     bool

	index    int
	notReady int
}

// NewFakeDevice creates a FakeDevice playing back the given distances.
func NewFakeDevice(distances ...int) *FakeDevice {
	return &FakeDevice{Distances: distances}
}

func (f *FakeDevice) StartRanging() error {
	if f.StartError != nil {
		return f.StartError
	}
	f.Ranging = true
	f.StartCalls++
	f.notReady = f.NotReadyCount
	return nil
}

func (f *FakeDevice) DataReady() (bool, error) {
	if f.ReadyError != nil {
		return false, f.ReadyError
	}
	if f.NeverReady {
		return false, nil
	}
	if f.notReady > 0 {
		f.notReady--
		return false, nil
	}
	return true, nil
}

func (f *FakeDevice) ReadDistanceMm() (int, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Distances) == 0 {
		return 0, errors.New("no distances configured")
	}
	mm := f.Distances[f.index]
	if f.index < len(f.Distances)-1 {
		f.index++
	}
	return mm, nil
}

func (f *FakeDevice) ClearInterrupt() error {
	f.ClearCalls++
	return nil
}

func (f *FakeDevice) StopRanging() error {
	f.Ranging = false
	f.StopCalls++
	return nil
}

// Close marks the device as closed.
func (f *FakeDevice) Close() error {
	f.Closed = true
	return nil
}
