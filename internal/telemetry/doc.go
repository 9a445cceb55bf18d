// Package telemetry streams orchestrator events to clients over Server-Sent
// Events.
//
// Each vehicle has its own monotonic event ID sequence and a bounded replay
// buffer so reconnecting clients can resume with Last-Event-ID. A heartbeat
// runs while at least one client is connected.
package telemetry
