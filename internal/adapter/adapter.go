package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Color is a reading of the vehicle's color sensor.
type Color int

const (
	ColorUnknown Color = iota
	ColorBlack
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
)

var colorNames = map[Color]string{
	ColorUnknown: "UNKNOWN",
	ColorBlack:   "BLACK",
	ColorRed:     "RED",
	ColorGreen:   "GREEN",
	ColorYellow:  "YELLOW",
	ColorBlue:    "BLUE",
	ColorMagenta: "MAGENTA",
	ColorCyan:    "CYAN",
	ColorWhite:   "WHITE",
}

func (c Color) String() string {
	if name, ok := colorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Color(%d)", int(c))
}

// ParseColor maps a case-insensitive color name to a Color.
func ParseColor(name string) (Color, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for c, n := range colorNames {
		if c != ColorUnknown && n == upper {
			return c, nil
		}
	}
	return ColorUnknown, fmt.Errorf("%w: no such color %q", ErrInvalidRange, name)
}

// Steering is the decision applied at the next track split.
type Steering int

const (
	SteeringStraight Steering = iota
	SteeringLeft
	SteeringRight
)

func (s Steering) String() string {
	switch s {
	case SteeringLeft:
		return "LEFT"
	case SteeringRight:
		return "RIGHT"
	case SteeringStraight:
		return "STRAIGHT"
	default:
		return fmt.Sprintf("Steering(%d)", int(s))
	}
}

// Direction is the vehicle's movement direction.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionBackward
)

func (d Direction) String() string {
	if d == DirectionBackward {
		return "BACKWARD"
	}
	return "FORWARD"
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == DirectionBackward {
		return DirectionForward
	}
	return DirectionBackward
}

// SpeedLevel is a discrete motor speed. SpeedStop halts the vehicle;
// SpeedMin..SpeedMax is the fine driving scale.
type SpeedLevel int

const (
	SpeedStop SpeedLevel = 0
	SpeedMin  SpeedLevel = 1
	SpeedMax  SpeedLevel = 5

	SpeedSlow   SpeedLevel = 1
	SpeedMedium SpeedLevel = 3
	SpeedFast   SpeedLevel = 5
)

// Valid reports whether s is a driving level within [SpeedMin, SpeedMax].
func (s SpeedLevel) Valid() bool {
	return s >= SpeedMin && s <= SpeedMax
}

func (s SpeedLevel) String() string {
	if s == SpeedStop {
		return "STOP"
	}
	return fmt.Sprintf("LEVEL%d", int(s))
}

// Sensor identifies which color sensor produced a reading.
type Sensor int

const (
	SensorFront Sensor = iota
	SensorBack
)

func (s Sensor) String() string {
	if s == SensorBack {
		return "back"
	}
	return "front"
}

// ColorEvent is emitted by the train when a sensor reading changes.
type ColorEvent struct {
	Color      Color
	Sensor     Sensor
	DistanceCm int
	Timestamp  time.Time
}

// SplitEvent is emitted when the train is at or approaching a split and needs
// a steering instruction for it.
type SplitEvent struct {
	// Previous is the decision the train applied at the last split.
	Previous Steering
	// NextDefault is the hardware's own pending decision.
	NextDefault Steering
	DistanceCm  int
	Timestamp   time.Time
}

// ColorListener receives color events on the adapter's own goroutine.
type ColorListener func(ColorEvent)

// SplitListener receives split events on the adapter's own goroutine.
type SplitListener func(SplitEvent)

// ITrain defines the stable southbound vehicle contract.
type ITrain interface {
	// Name returns the advertised vehicle name.
	Name() string

	// Connected reports whether the link to the vehicle is still up.
	Connected() bool

	// Direction returns the movement direction reported by the vehicle.
	Direction() Direction

	// DriveAt sets speed and direction. immediate skips acceleration ramps.
	DriveAt(ctx context.Context, speed SpeedLevel, direction Direction, immediate bool) error

	// SetNextSteering sets the decision for the upcoming split.
	SetNextSteering(ctx context.Context, decision Steering) error

	// SetSnapCommandExecution toggles the vehicle's built-in handling of
	// color snap commands.
	SetSnapCommandExecution(ctx context.Context, enabled bool) error

	// OnColorChanged registers a listener. The returned func removes it.
	OnColorChanged(fn ColorListener) (remove func())

	// OnSplitDecision registers a listener. The returned func removes it.
	OnSplitDecision(fn SplitListener) (remove func())

	// Disconnect closes the link.
	Disconnect(ctx context.Context) error
}

// Scanner discovers and connects to a vehicle.
type Scanner interface {
	Scan(ctx context.Context) (ITrain, error)
}

// ScannerFunc adapts a function to Scanner.
type ScannerFunc func(ctx context.Context) (ITrain, error)

// Scan calls f(ctx).
func (f ScannerFunc) Scan(ctx context.Context) (ITrain, error) {
	return f(ctx)
}

// TrainBase provides common functionality for adapter implementations.
type TrainBase struct {
	// VehicleName is the advertised name
	VehicleName string

	// Model identifies the vehicle model
	Model string
}

// Name returns the vehicle name.
func (b *TrainBase) Name() string {
	return b.VehicleName
}

// GetModel returns the vehicle model.
func (b *TrainBase) GetModel() string {
	return b.Model
}
