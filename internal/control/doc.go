// Package control implements the train control orchestrator.
//
// The Orchestrator owns the vehicle's motion state, dispatches commands,
// decodes front color sensor readings into marks and program triggers, and
// answers split decisions from the steering engine. Command paths and
// hardware callbacks share one mutex.
package control
