package control

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/train-control/tcc/internal/adapter"
	"github.com/train-control/tcc/internal/audit"
	"github.com/train-control/tcc/internal/command"
	"github.com/train-control/tcc/internal/decoder"
	"github.com/train-control/tcc/internal/telemetry"
)

// ProgramUser is the audit user for commands run by a program match.
const ProgramUser = "program"

// Mark is the last junction or merge mark seen.
type Mark struct {
	Kind       decoder.Kind     `json:"kind"`
	Side       adapter.Steering `json:"-"`
	DistanceCm int              `json:"distanceCm"`
	At         time.Time        `json:"at"`
}

// Attach arms the hardware callbacks for train. The vehicle's own snap
// command handling is switched off while attached.
func (o *Orchestrator) Attach(sessionID string, train adapter.ITrain) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timing.CommandTimeout)
	defer cancel()
	if err := train.SetSnapCommandExecution(ctx, false); err != nil {
		o.logger.Warn("failed to disable snap command execution", zap.Error(o.hardwareError(err)))
	}

	o.mu.Lock()
	o.train = train
	o.sessionID = sessionID
	o.vehicle = train.Name()
	o.speed = adapter.SpeedStop
	o.direction = train.Direction()
	o.decoder.Reset()
	o.mu.Unlock()

	removeColor := train.OnColorChanged(o.onColor)
	removeSplit := train.OnSplitDecision(o.onSplit)

	o.mu.Lock()
	o.removers = []func(){removeColor, removeSplit}
	o.mu.Unlock()

	o.publish(train.Name(), telemetry.EventState, map[string]interface{}{
		"state":   "CONNECTED",
		"session": sessionID,
	})
}

// Detach disarms the callbacks, stops the vehicle and restores its snap
// command handling. Commands issued afterwards fail with ErrNotConnected.
func (o *Orchestrator) Detach(train adapter.ITrain) {
	o.mu.Lock()
	removers := o.removers
	dir := o.direction
	sessionID, vehicle := o.sessionID, o.vehicle
	o.removers = nil
	o.train = nil
	o.sessionID = ""
	o.vehicle = ""
	o.speed = adapter.SpeedStop
	o.decoder.Reset()
	o.mu.Unlock()

	for _, remove := range removers {
		remove()
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timing.CommandTimeout)
	defer cancel()
	if err := train.DriveAt(ctx, adapter.SpeedStop, dir, true); err != nil {
		o.logger.Warn("failed to stop vehicle", zap.Error(o.hardwareError(err)))
	}
	if err := train.SetSnapCommandExecution(ctx, true); err != nil {
		o.logger.Warn("failed to restore snap command execution", zap.Error(o.hardwareError(err)))
	}

	o.reporters.Log(fmt.Sprintf("Disconnected from %s", vehicle))
	o.publish(vehicle, telemetry.EventState, map[string]interface{}{
		"state":   "DISCONNECTED",
		"session": sessionID,
	})
}

// onColor decodes front sensor readings. A matched program runs after the
// lock is released so it may connect, disconnect or exit.
func (o *Orchestrator) onColor(ev adapter.ColorEvent) {
	if ev.Sensor != adapter.SensorFront {
		return
	}

	o.mu.Lock()
	if o.train == nil {
		o.mu.Unlock()
		return
	}
	res, ok := o.decoder.Feed(ev.Color)
	if !ok || res.Kind == decoder.KindEmpty {
		o.mu.Unlock()
		return
	}
	if res.Kind == decoder.KindOverflow {
		o.mu.Unlock()
		o.reporters.Log(fmt.Sprintf("Discarded overlong sequence ending %s", res.Sequence))
		return
	}

	var (
		cmd command.Command
		hit bool
	)
	if res.IsMark() {
		o.markLocked(res, ev)
	} else {
		cmd, hit = o.registry.Lookup(res.Sequence)
	}
	vehicle := o.vehicle
	o.mu.Unlock()

	if res.Kind != decoder.KindProgram {
		return
	}

	o.metrics.ObserveProgramLookup(hit)
	if !hit {
		o.logger.Info("no program found", zap.String("sequence", res.Sequence.Identity()))
		o.reporters.Log(fmt.Sprintf("No program found for %s", res.Sequence))
		return
	}

	o.reporters.Log(fmt.Sprintf("Program %s: %s", res.Sequence, cmd))
	o.publish(vehicle, telemetry.EventProgram, map[string]interface{}{
		"sequence": res.Sequence.Identity(),
		"command":  cmd.String(),
	})

	// Failures are recorded by Execute.
	_ = o.Execute(audit.WithUser(context.Background(), ProgramUser), cmd)
}

// markLocked records a junction or merge mark. Marks never change steering.
func (o *Orchestrator) markLocked(res decoder.Result, ev adapter.ColorEvent) {
	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	o.lastMark = &Mark{Kind: res.Kind, Side: res.Side, DistanceCm: ev.DistanceCm, At: at}

	if !o.ignoreMarks {
		o.logger.Info("mark detected",
			zap.String("kind", string(res.Kind)),
			zap.Stringer("side", res.Side),
			zap.Int("distanceCm", ev.DistanceCm))
		o.reporters.Log(fmt.Sprintf("%s mark %s at %d cm", res.Kind, res.Side, ev.DistanceCm))
	}

	o.metrics.ObserveMark(string(res.Kind), res.Side.String())
	o.publishLocked(telemetry.EventMark, map[string]interface{}{
		"kind":       string(res.Kind),
		"side":       res.Side.String(),
		"distanceCm": ev.DistanceCm,
	})
}

// onSplit answers a split decision with exactly one steering instruction.
func (o *Orchestrator) onSplit(ev adapter.SplitEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.train == nil {
		return
	}

	d, src := o.steering.Resolve()
	o.junctions++

	ctx, cancel := context.WithTimeout(context.Background(), o.timing.CommandTimeout)
	defer cancel()
	if err := o.train.SetNextSteering(ctx, d); err != nil {
		o.logger.Warn("failed to send split decision", zap.Stringer("decision", d), zap.Error(o.hardwareError(err)))
	}

	remaining := 0
	if ov, ok := o.steering.Override(); ok {
		remaining = ov.Remaining
	}

	o.metrics.ObserveJunction(d.String(), string(src))
	o.reporters.Log(fmt.Sprintf("Split decision. Last: %s, Next: %s (%s)", ev.Previous, d, src))
	o.publishLocked(telemetry.EventJunction, map[string]interface{}{
		"previous":        ev.Previous.String(),
		"hardwareDefault": ev.NextDefault.String(),
		"decision":        d.String(),
		"source":          string(src),
		"remaining":       remaining,
		"distanceCm":      ev.DistanceCm,
	})
}
