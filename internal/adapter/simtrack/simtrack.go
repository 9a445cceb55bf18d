// Package simtrack provides a simulated train running a looped track.
//
// While its speed is non-zero the train reads the next color of the loop
// every StepInterval/speed, reports it on the front sensor and, every
// SplitEvery readings, reports a split and takes its pending decision.
package simtrack

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/train-control/tcc/internal/adapter"
	"github.com/train-control/tcc/internal/config"
)

// CmPerReading is the distance travelled between two readings.
const CmPerReading = 2

// Fault modes accepted by SetFaultMode.
const (
	FaultBusy        = "ReturnBusy"
	FaultUnavailable = "ReturnUnavailable"
	FaultInvalid     = "ReturnInvalidRange"
)

// Train implements adapter.ITrain over a simulated track.
type Train struct {
	adapter.TrainBase

	mu         sync.Mutex
	track      []adapter.Color
	pos        int
	step       time.Duration
	splitEvery int
	connected  bool
	speed      adapter.SpeedLevel
	direction  adapter.Direction
	next       adapter.Steering
	last       adapter.Steering
	snapExec   bool
	distanceCm int
	readings   int
	nextID     int
	colorLists map[int]adapter.ColorListener
	splitLists map[int]adapter.SplitListener
	faultMode  string

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// ParseTrack parses a comma-separated color loop. BLACK is allowed.
func ParseTrack(csv string) ([]adapter.Color, error) {
	var track []adapter.Color
	for _, name := range strings.Split(csv, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		c, err := adapter.ParseColor(name)
		if err != nil {
			return nil, err
		}
		track = append(track, c)
	}
	if len(track) == 0 {
		return nil, fmt.Errorf("%w: track has no colors", adapter.ErrInvalidRange)
	}
	return track, nil
}

// NewTrain creates a connected, stopped train. Call Disconnect to release
// its driving goroutine.
func NewTrain(cfg config.SimulatorConfig, logger *zap.Logger) (*Train, error) {
	track, err := ParseTrack(cfg.Track)
	if err != nil {
		return nil, err
	}
	if cfg.StepInterval <= 0 {
		return nil, fmt.Errorf("%w: step interval must be positive", adapter.ErrInvalidRange)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Train{
		TrainBase: adapter.TrainBase{
			VehicleName: cfg.Name,
			Model:       "intelino-sim",
		},
		track:      track,
		step:       cfg.StepInterval,
		splitEvery: cfg.SplitEvery,
		connected:  true,
		direction:  adapter.DirectionForward,
		snapExec:   true,
		colorLists: make(map[int]adapter.ColorListener),
		splitLists: make(map[int]adapter.SplitListener),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		logger:     logger.Named("simtrack"),
	}
	go t.run()
	return t, nil
}

// Connected reports whether the simulated link is up.
func (t *Train) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Direction returns the current movement direction.
func (t *Train) Direction() adapter.Direction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.direction
}

// DriveAt sets speed and direction. Acceleration is not simulated.
func (t *Train) DriveAt(ctx context.Context, speed adapter.SpeedLevel, direction adapter.Direction, immediate bool) error {
	if err := t.precheck(ctx, "DriveAt"); err != nil {
		return err
	}
	if speed != adapter.SpeedStop && !speed.Valid() {
		return fmt.Errorf("INVALID_SPEED: level %d is outside [%d, %d]", int(speed), int(adapter.SpeedMin), int(adapter.SpeedMax))
	}
	if direction != adapter.DirectionForward && direction != adapter.DirectionBackward {
		return fmt.Errorf("INVALID_DIRECTION: %d", int(direction))
	}

	t.mu.Lock()
	t.speed = speed
	t.direction = direction
	t.mu.Unlock()

	t.logger.Debug("drive", zap.Stringer("speed", speed), zap.Stringer("direction", direction), zap.Bool("immediate", immediate))
	t.poke()
	return nil
}

// SetNextSteering sets the decision taken at the next split.
func (t *Train) SetNextSteering(ctx context.Context, decision adapter.Steering) error {
	if err := t.precheck(ctx, "SetNextSteering"); err != nil {
		return err
	}
	switch decision {
	case adapter.SteeringLeft, adapter.SteeringRight, adapter.SteeringStraight:
	default:
		return fmt.Errorf("INVALID_DECISION: %d", int(decision))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.next = decision
	return nil
}

// SetSnapCommandExecution records whether the train would act on snaps itself.
func (t *Train) SetSnapCommandExecution(ctx context.Context, enabled bool) error {
	if err := t.precheck(ctx, "SetSnapCommandExecution"); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapExec = enabled
	return nil
}

// OnColorChanged registers a color listener.
func (t *Train) OnColorChanged(fn adapter.ColorListener) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.colorLists[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.colorLists, id)
	}
}

// OnSplitDecision registers a split listener.
func (t *Train) OnSplitDecision(fn adapter.SplitListener) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.splitLists[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.splitLists, id)
	}
}

// Disconnect stops the train and its driving goroutine.
func (t *Train) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	t.connected = false
	t.speed = adapter.SpeedStop
	t.mu.Unlock()

	t.stopOnce.Do(func() { close(t.done) })
	return nil
}

// Step advances one reading and delivers the resulting events. Listeners run
// without the train's lock held.
func (t *Train) Step() {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return
	}

	n := len(t.track)
	front := t.track[t.pos]
	back := t.track[(t.pos-1+n)%n]
	if t.direction == adapter.DirectionBackward {
		back = t.track[(t.pos+1)%n]
		t.pos = (t.pos - 1 + n) % n
	} else {
		t.pos = (t.pos + 1) % n
	}
	t.distanceCm += CmPerReading
	t.readings++
	now := time.Now()

	events := []adapter.ColorEvent{
		{Color: front, Sensor: adapter.SensorFront, DistanceCm: t.distanceCm, Timestamp: now},
		{Color: back, Sensor: adapter.SensorBack, DistanceCm: t.distanceCm, Timestamp: now},
	}
	colorListeners := make([]adapter.ColorListener, 0, len(t.colorLists))
	for _, fn := range t.colorLists {
		colorListeners = append(colorListeners, fn)
	}

	var (
		split          *adapter.SplitEvent
		splitListeners []adapter.SplitListener
	)
	if t.splitEvery > 0 && t.readings%t.splitEvery == 0 {
		split = &adapter.SplitEvent{
			Previous:    t.last,
			NextDefault: t.next,
			DistanceCm:  t.distanceCm,
			Timestamp:   now,
		}
		t.last = t.next
		for _, fn := range t.splitLists {
			splitListeners = append(splitListeners, fn)
		}
	}
	t.mu.Unlock()

	for _, ev := range events {
		for _, fn := range colorListeners {
			fn(ev)
		}
	}
	if split != nil {
		for _, fn := range splitListeners {
			fn(*split)
		}
	}
}

func (t *Train) run() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		interval, moving := t.interval()
		if !moving {
			select {
			case <-t.done:
				return
			case <-t.wake:
				continue
			}
		}

		timer.Reset(interval)
		select {
		case <-t.done:
			timer.Stop()
			return
		case <-t.wake:
			timer.Stop()
		case <-timer.C:
			t.Step()
		}
	}
}

func (t *Train) interval() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.speed == adapter.SpeedStop {
		return 0, false
	}
	return t.step / time.Duration(t.speed), true
}

func (t *Train) poke() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Train) precheck(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return fmt.Errorf("NOT_CONNECTED: %s is disconnected", t.VehicleName)
	}

	switch t.faultMode {
	case FaultBusy:
		return fmt.Errorf("GATT_BUSY: simulated busy error for %s", operation)
	case FaultUnavailable:
		return fmt.Errorf("BLE_TIMEOUT: simulated unavailable error for %s", operation)
	case FaultInvalid:
		return fmt.Errorf("VALUE_OUT_OF_BOUNDS: simulated invalid range error for %s", operation)
	default:
		return nil
	}
}

// Fault injection and inspection

// SetFaultMode makes every instruction fail with the given mode.
func (t *Train) SetFaultMode(mode string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faultMode = mode
}

// ClearFaultMode clears the fault injection mode.
func (t *Train) ClearFaultMode() {
	t.SetFaultMode("")
}

// Status returns speed, pending decision, snap execution and distance.
func (t *Train) Status() (adapter.SpeedLevel, adapter.Steering, bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speed, t.next, t.snapExec, t.distanceCm
}

// Scanner discovers a simulated train after ScanDelay.
type Scanner struct {
	cfg    config.SimulatorConfig
	logger *zap.Logger
}

// NewScanner validates cfg and returns a scanner producing trains from it.
func NewScanner(cfg config.SimulatorConfig, logger *zap.Logger) (*Scanner, error) {
	if _, err := ParseTrack(cfg.Track); err != nil {
		return nil, fmt.Errorf("invalid simulator track: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{cfg: cfg, logger: logger}, nil
}

// Scan returns a fresh train. An expired or canceled ctx fails the scan.
func (s *Scanner) Scan(ctx context.Context) (adapter.ITrain, error) {
	timer := time.NewTimer(s.cfg.ScanDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, fmt.Errorf("SCAN_TIMEOUT: %w", ctx.Err())
	}

	s.logger.Info("simulated train found", zap.String("name", s.cfg.Name))
	return NewTrain(s.cfg, s.logger)
}
