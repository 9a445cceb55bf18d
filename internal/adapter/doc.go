// Package adapter defines the train adapter port for the Train Control Container.
//
// Train adapters implement vendor-specific transports (BLE for the physical
// vehicle, an in-process loop for the simulator). The ITrain interface is the
// stable contract the orchestrator drives; listeners registered on it are
// invoked on the adapter's own goroutine.
//
// Vendor failures are normalized to INVALID_RANGE, BUSY, UNAVAILABLE and
// INTERNAL through the tables in errors.go.
package adapter
