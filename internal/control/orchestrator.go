package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/train-control/tcc/internal/adapter"
	"github.com/train-control/tcc/internal/audit"
	"github.com/train-control/tcc/internal/command"
	"github.com/train-control/tcc/internal/config"
	"github.com/train-control/tcc/internal/decoder"
	"github.com/train-control/tcc/internal/logging"
	"github.com/train-control/tcc/internal/metrics"
	"github.com/train-control/tcc/internal/program"
	"github.com/train-control/tcc/internal/session"
	"github.com/train-control/tcc/internal/steering"
	"github.com/train-control/tcc/internal/telemetry"
)

// Orchestrator routes commands and hardware events to the attached vehicle.
type Orchestrator struct {
	// mu guards every field down to lastMark, including the steering engine,
	// the decoder and the registry.
	mu        sync.Mutex
	train     adapter.ITrain
	sessionID string
	vehicle   string
	removers  []func()
	speed     adapter.SpeedLevel
	direction adapter.Direction
	steering  *steering.Engine
	decoder   *decoder.Decoder
	registry  *program.Registry
	junctions int
	lastMark  *Mark

	cruise      adapter.SpeedLevel
	ignoreMarks bool
	vendor      string
	timing      *config.TimingConfig

	session   *session.Manager
	reporters logging.Fanout

	stopMu   sync.Mutex
	stoppers []func()

	telemetry Publisher
	audit     AuditLogger
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator that connects through scanner.
func NewOrchestrator(cfg *config.Config, scanner adapter.Scanner, m *metrics.Metrics, logger *zap.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	def, err := cfg.DefaultSteering()
	if err != nil {
		return nil, err
	}
	if !cfg.CruiseSpeed().Valid() {
		return nil, fmt.Errorf("%w: cruise speed %d", ErrInvalidArgument, cfg.Speed.Cruise)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timing := cfg.Timing
	o := &Orchestrator{
		speed:       adapter.SpeedStop,
		direction:   adapter.DirectionForward,
		steering:    steering.New(def),
		decoder:     decoder.New(cfg.Decoder.MaxSequenceLength, logger.Named("decoder")),
		registry:    program.NewRegistry(),
		cruise:      cfg.CruiseSpeed(),
		ignoreMarks: cfg.Decoder.IgnoreMarks,
		vendor:      cfg.Vehicle.Vendor,
		timing:      &timing,
		metrics:     m,
		logger:      logger.Named("control"),
	}
	o.session = session.NewManager(scanner, o, o.timing, o.vendor, m, logger)
	return o, nil
}

// SetTelemetry sets the event publisher. Call before Connect.
func (o *Orchestrator) SetTelemetry(p Publisher) {
	o.telemetry = p
}

// SetAuditLogger sets the audit logger. Call before Connect.
func (o *Orchestrator) SetAuditLogger(a AuditLogger) {
	o.audit = a
}

// AddReporter adds a human-readable log sink.
func (o *Orchestrator) AddReporter(r logging.Reporter) {
	o.reporters.Add(r)
}

// AddStopper registers fn to run when EXIT is executed.
func (o *Orchestrator) AddStopper(fn func()) {
	o.stopMu.Lock()
	defer o.stopMu.Unlock()
	o.stoppers = append(o.stoppers, fn)
}

// Connect starts a session. cb may be nil.
func (o *Orchestrator) Connect(cb session.ConnectCallback) {
	o.reporters.Log("Connecting")
	o.session.Connect(func(ok bool, idOrErr, name string) {
		if ok {
			o.reporters.Log(fmt.Sprintf("Connected to %s", name))
		} else {
			o.reporters.Log(fmt.Sprintf("Connect failed: %s", idOrErr))
			o.publish("", telemetry.EventFault, map[string]interface{}{
				"code":    "CONNECT_FAILED",
				"message": idOrErr,
			})
		}
		if cb != nil {
			cb(ok, idOrErr, name)
		}
	})
}

// Disconnect ends the current session without waiting for teardown.
func (o *Orchestrator) Disconnect() {
	o.reporters.Log("Disconnecting")
	o.session.Disconnect()
}

// Wait blocks until the current session has ended.
func (o *Orchestrator) Wait() {
	o.session.Wait()
}

// Session returns the lifecycle snapshot.
func (o *Orchestrator) Session() session.Info {
	return o.session.Info()
}

// Program registers p, replacing any program with the same trigger. A
// trigger longer than the decoder buffer could never be read and is rejected
// with program.ErrInvalidProgram.
func (o *Orchestrator) Program(p program.Program) error {
	o.mu.Lock()
	if limit := o.decoder.MaxLen(); len(p.Trigger()) > limit {
		o.mu.Unlock()
		return fmt.Errorf("%w: trigger %s has %d colors, longest readable run is %d",
			program.ErrInvalidProgram, p.Identity(), len(p.Trigger()), limit)
	}
	replaced := o.registry.Register(p)
	o.mu.Unlock()

	o.logger.Info("program registered", zap.String("trigger", p.Identity()), zap.Stringer("command", p.Command()), zap.Bool("replaced", replaced))
	return nil
}

// Programs returns the registered programs sorted by trigger.
func (o *Orchestrator) Programs() []program.Program {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.registry.Programs()
}

// Execute runs cmd. Argument errors wrap ErrInvalidArgument, commands that
// need the vehicle fail with ErrNotConnected when no session is live, and
// hardware errors are normalized to adapter codes. State changes only when
// the hardware accepted the instruction.
func (o *Orchestrator) Execute(ctx context.Context, cmd command.Command) error {
	start := time.Now()
	err := o.dispatch(ctx, cmd)
	o.recordCommand(ctx, cmd, err, time.Since(start))
	return err
}

func (o *Orchestrator) dispatch(ctx context.Context, cmd command.Command) error {
	if err := validate(cmd); err != nil {
		return err
	}

	switch cmd.Kind {
	case command.KindConnect:
		o.Connect(nil)
		return nil
	case command.KindDisconnect:
		o.Disconnect()
		return nil
	case command.KindExit:
		o.exit()
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.train == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, o.timing.CommandTimeout)
	defer cancel()

	switch cmd.Kind {
	case command.KindStart:
		return o.driveLocked(ctx, o.cruise, o.direction, "Starting")
	case command.KindStop:
		return o.driveLocked(ctx, adapter.SpeedStop, o.direction, "Stopping")
	case command.KindKeepLeft:
		return o.keepLocked(ctx, adapter.SteeringLeft)
	case command.KindKeepRight:
		return o.keepLocked(ctx, adapter.SteeringRight)
	case command.KindKeepStraight:
		return o.keepLocked(ctx, adapter.SteeringStraight)
	case command.KindNextLeft:
		return o.nextLocked(ctx, adapter.SteeringLeft, cmd.Arg(1))
	case command.KindNextRight:
		return o.nextLocked(ctx, adapter.SteeringRight, cmd.Arg(1))
	case command.KindNextStraight:
		return o.nextLocked(ctx, adapter.SteeringStraight, cmd.Arg(1))
	case command.KindSnapsFollow, command.KindSnapsIgnore:
		// Both snap modes currently install the same one-shot STRAIGHT override.
		return o.nextLocked(ctx, adapter.SteeringStraight, 1)
	case command.KindSpeedSlow:
		return o.driveLocked(ctx, adapter.SpeedSlow, o.direction, "Speed slow")
	case command.KindSpeedMedium:
		return o.driveLocked(ctx, adapter.SpeedMedium, o.direction, "Speed medium")
	case command.KindSpeedFast:
		return o.driveLocked(ctx, adapter.SpeedFast, o.direction, "Speed fast")
	case command.KindSpeedFine:
		level := adapter.SpeedLevel(cmd.Args[0])
		return o.driveLocked(ctx, level, o.direction, fmt.Sprintf("Speed %s", level))
	case command.KindReverse:
		dir := o.train.Direction().Opposite()
		return o.driveLocked(ctx, o.speed, dir, "Reversing")
	case command.KindForward:
		return o.driveLocked(ctx, o.cruise, adapter.DirectionForward, "Driving forward")
	case command.KindBackward:
		return o.driveLocked(ctx, o.cruise, adapter.DirectionBackward, "Driving backward")
	}

	return fmt.Errorf("%w: unhandled command %s", ErrInvalidArgument, cmd.Kind)
}

func validate(cmd command.Command) error {
	if err := command.Validate(cmd.Kind, cmd.Args); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	switch {
	case cmd.Kind == command.KindSpeedFine:
		level := adapter.SpeedLevel(cmd.Args[0])
		if !level.Valid() {
			return fmt.Errorf("%w: speed level %d outside [%d, %d]: %w",
				ErrInvalidArgument, int(level), int(adapter.SpeedMin), int(adapter.SpeedMax), adapter.ErrInvalidRange)
		}
	case cmd.Kind.IsNext():
		if n := cmd.Arg(1); n < 1 {
			return fmt.Errorf("%w: repeat count must be at least 1, got %d", ErrInvalidArgument, n)
		}
	}
	return nil
}

func (o *Orchestrator) driveLocked(ctx context.Context, speed adapter.SpeedLevel, dir adapter.Direction, line string) error {
	if err := o.train.DriveAt(ctx, speed, dir, true); err != nil {
		return o.hardwareError(err)
	}
	o.speed = speed
	o.direction = dir

	o.reporters.Log(fmt.Sprintf("%s: %s %s", line, speed, dir))
	o.publishLocked(telemetry.EventMotion, map[string]interface{}{
		"speed":     int(speed),
		"level":     speed.String(),
		"direction": dir.String(),
	})
	return nil
}

func (o *Orchestrator) keepLocked(ctx context.Context, d adapter.Steering) error {
	if err := o.train.SetNextSteering(ctx, d); err != nil {
		return o.hardwareError(err)
	}
	o.steering.SetDefault(d)

	o.reporters.Log(fmt.Sprintf("Set base steering %s", d))
	o.publishLocked(telemetry.EventSteering, map[string]interface{}{
		"default": d.String(),
	})
	return nil
}

func (o *Orchestrator) nextLocked(ctx context.Context, d adapter.Steering, count int) error {
	if err := o.train.SetNextSteering(ctx, d); err != nil {
		return o.hardwareError(err)
	}
	o.steering.PushOverride(d, count)

	o.reporters.Log(fmt.Sprintf("Next steering %s x%d", d, count))
	o.publishLocked(telemetry.EventOverride, map[string]interface{}{
		"decision":  d.String(),
		"remaining": count,
	})
	return nil
}

func (o *Orchestrator) exit() {
	o.reporters.Log("Quitting")

	o.stopMu.Lock()
	stoppers := append([]func(){}, o.stoppers...)
	o.stopMu.Unlock()

	for _, fn := range stoppers {
		fn()
	}
}

func (o *Orchestrator) hardwareError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &adapter.VendorError{Code: adapter.ErrBusy, Original: err}
	}
	return adapter.NormalizeVendorErrorWithVendor(err, nil, o.vendor)
}

func (o *Orchestrator) recordCommand(ctx context.Context, cmd command.Command, err error, latency time.Duration) {
	code := Code(err)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	o.metrics.ObserveCommand(cmd.Kind.Keyword(), outcome, latency)

	o.mu.Lock()
	sessionID, vehicle := o.sessionID, o.vehicle
	o.mu.Unlock()

	if o.audit != nil {
		params := map[string]interface{}{}
		if len(cmd.Args) > 0 {
			params["args"] = cmd.Args
		}
		o.audit.Record(ctx, audit.Entry{
			Session:   sessionID,
			Vehicle:   vehicle,
			Action:    cmd.Kind.String(),
			Params:    params,
			Code:      code,
			LatencyMs: float64(latency.Microseconds()) / 1000,
		})
	}

	if err == nil {
		return
	}

	o.logger.Warn("command failed",
		zap.Stringer("command", cmd),
		zap.String("code", code),
		zap.Error(err))
	o.reporters.Log(fmt.Sprintf("%s failed: %v", cmd, err))
	o.publish(vehicle, telemetry.EventFault, map[string]interface{}{
		"command": cmd.String(),
		"code":    code,
		"message": err.Error(),
	})
}

// Code returns the normalized error code for err, or "" for nil.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return ErrInvalidArgument.Error()
	case errors.Is(err, ErrNotConnected):
		return ErrNotConnected.Error()
	default:
		return adapter.Code(err)
	}
}

func (o *Orchestrator) publishLocked(eventType string, data map[string]interface{}) {
	o.publish(o.vehicle, eventType, data)
}

func (o *Orchestrator) publish(vehicle, eventType string, data map[string]interface{}) {
	if o.telemetry == nil {
		return
	}
	if err := o.telemetry.PublishVehicle(vehicle, telemetry.Event{Type: eventType, Data: data}); err != nil {
		o.logger.Debug("telemetry publish failed", zap.String("type", eventType), zap.Error(err))
	}
}
