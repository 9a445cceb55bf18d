// Package fake provides a fake train adapter implementation for testing.
//
// Every adapter must pass adaptertest.RunConformance; the fake is the
// reference implementation for that suite.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/train-control/tcc/internal/adapter"
)

// Drive records one DriveAt call.
type Drive struct {
	Speed     adapter.SpeedLevel
	Direction adapter.Direction
	Immediate bool
}

// FakeTrain implements ITrain for testing purposes.
type FakeTrain struct {
	adapter.TrainBase

	mu         sync.Mutex
	connected  bool
	speed      adapter.SpeedLevel
	direction  adapter.Direction
	next       adapter.Steering
	snapExec   bool
	drives     []Drive
	steerings  []adapter.Steering
	snapCalls  []bool
	nextID     int
	colorLists map[int]adapter.ColorListener
	splitLists map[int]adapter.SplitListener
	distanceCm int

	// Error simulation
	simulateErrors bool
	errorType      string
}

// NewFakeTrain creates a connected fake train.
func NewFakeTrain(name string) *FakeTrain {
	return &FakeTrain{
		TrainBase: adapter.TrainBase{
			VehicleName: name,
			Model:       "Fake-Train-Test",
		},
		connected:  true,
		snapExec:   true,
		direction:  adapter.DirectionForward,
		colorLists: make(map[int]adapter.ColorListener),
		splitLists: make(map[int]adapter.SplitListener),
	}
}

// Connected reports whether the fake link is up.
func (f *FakeTrain) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Direction returns the direction last applied by DriveAt or SetDirection.
func (f *FakeTrain) Direction() adapter.Direction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.direction
}

// DriveAt records the motion instruction.
func (f *FakeTrain) DriveAt(ctx context.Context, speed adapter.SpeedLevel, direction adapter.Direction, immediate bool) error {
	if err := f.precheck(ctx); err != nil {
		return err
	}

	if speed != adapter.SpeedStop && !speed.Valid() {
		return fmt.Errorf("INVALID_SPEED: level %d is outside [%d, %d]", speed, adapter.SpeedMin, adapter.SpeedMax)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.speed = speed
	f.direction = direction
	f.drives = append(f.drives, Drive{Speed: speed, Direction: direction, Immediate: immediate})
	return nil
}

// SetNextSteering records the steering instruction.
func (f *FakeTrain) SetNextSteering(ctx context.Context, decision adapter.Steering) error {
	if err := f.precheck(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = decision
	f.steerings = append(f.steerings, decision)
	return nil
}

// SetSnapCommandExecution records the toggle.
func (f *FakeTrain) SetSnapCommandExecution(ctx context.Context, enabled bool) error {
	if err := f.precheck(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapExec = enabled
	f.snapCalls = append(f.snapCalls, enabled)
	return nil
}

// OnColorChanged registers a color listener.
func (f *FakeTrain) OnColorChanged(fn adapter.ColorListener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.colorLists[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.colorLists, id)
	}
}

// OnSplitDecision registers a split listener.
func (f *FakeTrain) OnSplitDecision(fn adapter.SplitListener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.splitLists[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.splitLists, id)
	}
}

// Disconnect drops the fake link.
func (f *FakeTrain) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

// Helper methods for testing

// EmitColor delivers a front-sensor reading to all listeners. Listeners run
// without the fake's lock held, like a real transport callback.
func (f *FakeTrain) EmitColor(c adapter.Color) {
	f.EmitColorEvent(adapter.ColorEvent{Color: c, Sensor: adapter.SensorFront})
}

// EmitColors delivers a series of front-sensor readings.
func (f *FakeTrain) EmitColors(colors ...adapter.Color) {
	for _, c := range colors {
		f.EmitColor(c)
	}
}

// EmitColorEvent delivers ev to all color listeners.
func (f *FakeTrain) EmitColorEvent(ev adapter.ColorEvent) {
	f.mu.Lock()
	f.distanceCm += 2
	if ev.DistanceCm == 0 {
		ev.DistanceCm = f.distanceCm
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	listeners := make([]adapter.ColorListener, 0, len(f.colorLists))
	for _, fn := range f.colorLists {
		listeners = append(listeners, fn)
	}
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// EmitSplit delivers a split event to all listeners.
func (f *FakeTrain) EmitSplit() {
	f.mu.Lock()
	ev := adapter.SplitEvent{
		Previous:    f.next,
		NextDefault: f.next,
		DistanceCm:  f.distanceCm,
		Timestamp:   time.Now(),
	}
	listeners := make([]adapter.SplitListener, 0, len(f.splitLists))
	for _, fn := range f.splitLists {
		listeners = append(listeners, fn)
	}
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// SetDirection overrides the hardware-reported direction.
func (f *FakeTrain) SetDirection(d adapter.Direction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direction = d
}

// SetConnected simulates a link drop or recovery.
func (f *FakeTrain) SetConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

// Drives returns a copy of recorded DriveAt calls.
func (f *FakeTrain) Drives() []Drive {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Drive(nil), f.drives...)
}

// Steerings returns a copy of recorded SetNextSteering calls.
func (f *FakeTrain) Steerings() []adapter.Steering {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]adapter.Steering(nil), f.steerings...)
}

// SnapCalls returns a copy of recorded SetSnapCommandExecution calls.
func (f *FakeTrain) SnapCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.snapCalls...)
}

// ListenerCount returns the number of registered color and split listeners.
func (f *FakeTrain) ListenerCount() (color, split int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.colorLists), len(f.splitLists)
}

// CurrentSpeed returns the last applied speed.
func (f *FakeTrain) CurrentSpeed() adapter.SpeedLevel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speed
}

// SetErrorSimulation enables error simulation for testing.
func (f *FakeTrain) SetErrorSimulation(errorType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = true
	f.errorType = errorType
}

// DisableErrorSimulation disables error simulation.
func (f *FakeTrain) DisableErrorSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = false
	f.errorType = ""
}

func (f *FakeTrain) precheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return fmt.Errorf("NOT_CONNECTED: %s", f.VehicleName)
	}
	if f.simulateErrors {
		return f.getSimulatedError()
	}
	return nil
}

func (f *FakeTrain) getSimulatedError() error {
	switch f.errorType {
	case "INVALID_RANGE":
		return fmt.Errorf("INVALID_SPEED: simulated range error")
	case "BUSY":
		return fmt.Errorf("GATT_BUSY: simulated busy error")
	case "UNAVAILABLE":
		return fmt.Errorf("NOT_CONNECTED: simulated unavailable error")
	default:
		return fmt.Errorf("INTERNAL: unknown simulated error")
	}
}

// Scanner is a fake adapter.Scanner. It returns Train, or Err, after Delay.
type Scanner struct {
	Train *FakeTrain
	Err   error
	Delay time.Duration

	mu    sync.Mutex
	scans int
	// Gate, when non-nil, blocks Scan until it is closed or ctx ends.
	Gate chan struct{}
}

// Scan implements adapter.Scanner.
func (s *Scanner) Scan(ctx context.Context) (adapter.ITrain, error) {
	s.mu.Lock()
	s.scans++
	gate := s.Gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.Train.SetConnected(true)
	return s.Train, nil
}

// Scans returns the number of Scan calls.
func (s *Scanner) Scans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans
}
