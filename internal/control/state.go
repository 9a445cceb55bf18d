package control

import (
	"github.com/train-control/tcc/internal/session"
)

// OverrideState is the pending override.
type OverrideState struct {
	Decision  string `json:"decision"`
	Remaining int    `json:"remaining"`
}

// State is a point-in-time view of the orchestrator.
type State struct {
	Session         session.Info   `json:"session"`
	Speed           int            `json:"speed"`
	Level           string         `json:"level"`
	Direction       string         `json:"direction"`
	DefaultSteering string         `json:"defaultSteering"`
	NextDecision    string         `json:"nextDecision"`
	Override        *OverrideState `json:"override,omitempty"`
	Pending         string         `json:"pending"`
	Programs        int            `json:"programs"`
	Junctions       int            `json:"junctions"`
	LastMark        *MarkState     `json:"lastMark,omitempty"`
}

// MarkState describes the last mark seen.
type MarkState struct {
	Mark
	Side string `json:"side"`
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() State {
	info := o.session.Info()

	o.mu.Lock()
	defer o.mu.Unlock()

	st := State{
		Session:         info,
		Speed:           int(o.speed),
		Level:           o.speed.String(),
		Direction:       o.direction.String(),
		DefaultSteering: o.steering.Default().String(),
		NextDecision:    o.steering.Peek().String(),
		Pending:         o.decoder.Pending().Identity(),
		Programs:        o.registry.Len(),
		Junctions:       o.junctions,
	}
	if ov, ok := o.steering.Override(); ok {
		st.Override = &OverrideState{Decision: ov.Decision.String(), Remaining: ov.Remaining}
	}
	if o.lastMark != nil {
		st.LastMark = &MarkState{Mark: *o.lastMark, Side: o.lastMark.Side.String()}
	}
	return st
}

// TelemetrySnapshot returns the state sent in a telemetry ready event.
func (o *Orchestrator) TelemetrySnapshot() map[string]interface{} {
	st := o.Snapshot()
	snap := map[string]interface{}{
		"state":           string(st.Session.State),
		"vehicle":         st.Session.Vehicle,
		"speed":           st.Speed,
		"direction":       st.Direction,
		"defaultSteering": st.DefaultSteering,
		"nextDecision":    st.NextDecision,
		"programs":        st.Programs,
	}
	if st.Override != nil {
		snap["override"] = map[string]interface{}{
			"decision":  st.Override.Decision,
			"remaining": st.Override.Remaining,
		}
	}
	return snap
}
