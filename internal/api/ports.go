package api

import (
	"context"
	"net/http"

	"github.com/train-control/tcc/internal/control"
	"github.com/train-control/tcc/internal/telemetry"
)

// TelemetryPort defines the minimal interface the API needs from the telemetry hub.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

var (
	_ TelemetryPort = (*telemetry.Hub)(nil)
	_ control.Port  = (*control.Orchestrator)(nil)
)
