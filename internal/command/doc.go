// Package command defines the closed set of vehicle commands.
//
// A Command is pure data: a Kind plus typed arguments. Only NEXT_* (optional
// repeat count) and SPEED_FINE (mandatory level) carry arguments. Parse builds
// commands from their text form ("next_left 2", "speed_fine 4"), which is the
// form used by the keyboard controller, the programs file and the HTTP API.
package command
