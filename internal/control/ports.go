package control

import (
	"context"
	"errors"

	"github.com/train-control/tcc/internal/audit"
	"github.com/train-control/tcc/internal/command"
	"github.com/train-control/tcc/internal/program"
	"github.com/train-control/tcc/internal/session"
	"github.com/train-control/tcc/internal/telemetry"
)

// Port is the surface front ends drive.
type Port interface {
	Execute(ctx context.Context, cmd command.Command) error
	Program(p program.Program) error
	Programs() []program.Program
	Connect(cb session.ConnectCallback)
	Disconnect()
	Snapshot() State
}

// AuditLogger writes one record per executed command.
type AuditLogger interface {
	Record(ctx context.Context, e audit.Entry)
}

// Publisher fans telemetry events out per vehicle.
type Publisher interface {
	PublishVehicle(vehicle string, event telemetry.Event) error
}

var (
	_ Port             = (*Orchestrator)(nil)
	_ session.Listener = (*Orchestrator)(nil)
	_ AuditLogger      = (*audit.Logger)(nil)
	_ Publisher        = (*telemetry.Hub)(nil)
)

// ErrNotConnected indicates a command that needs the vehicle arrived with no
// live session.
var ErrNotConnected = errors.New("NOT_CONNECTED")

// ErrInvalidArgument indicates a command argument is missing or out of range.
var ErrInvalidArgument = errors.New("INVALID_ARGUMENT")
