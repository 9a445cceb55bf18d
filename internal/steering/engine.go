// Package steering resolves the decision applied at each track split.
//
// An Engine holds a sticky default decision and an optional override that
// applies to the next N splits. Engine is not safe for concurrent use; the
// orchestrator guards it with its state lock. Resolve does no I/O so it can
// run inside the vehicle's split callback.
package steering

import (
	"github.com/train-control/tcc/internal/adapter"
)

// Source tells where a resolved decision came from.
type Source string

const (
	SourceDefault  Source = "default"
	SourceOverride Source = "override"
)

// Override is a decision applied to the next Remaining splits.
type Override struct {
	Decision  adapter.Steering
	Remaining int
}

// Engine is the steering state machine.
type Engine struct {
	def      adapter.Steering
	override *Override
}

// New returns an engine with the given default and no override.
func New(def adapter.Steering) *Engine {
	return &Engine{def: def}
}

// SetDefault sets the sticky decision. Any override is left in place.
func (e *Engine) SetDefault(d adapter.Steering) {
	e.def = d
}

// Default returns the sticky decision.
func (e *Engine) Default() adapter.Steering {
	return e.def
}

// PushOverride replaces any pending override. A count below one clears it.
func (e *Engine) PushOverride(d adapter.Steering, count int) {
	if count < 1 {
		e.override = nil
		return
	}
	e.override = &Override{Decision: d, Remaining: count}
}

// Override returns a copy of the pending override, if any.
func (e *Engine) Override() (Override, bool) {
	if e.override == nil {
		return Override{}, false
	}
	return *e.override, true
}

// Peek returns the decision the next Resolve would return without consuming it.
func (e *Engine) Peek() adapter.Steering {
	if e.override != nil && e.override.Remaining > 0 {
		return e.override.Decision
	}
	return e.def
}

// Resolve returns the decision for the split being faced and consumes one
// unit of the override. The override is cleared when it reaches zero.
func (e *Engine) Resolve() (adapter.Steering, Source) {
	if e.override == nil || e.override.Remaining <= 0 {
		e.override = nil
		return e.def, SourceDefault
	}

	d := e.override.Decision
	e.override.Remaining--
	if e.override.Remaining == 0 {
		e.override = nil
	}
	return d, SourceOverride
}
