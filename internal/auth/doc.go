// Package auth verifies bearer tokens on the control API and enforces scopes.
//
// Viewers hold the read and telemetry scopes and may inspect state and
// subscribe to events. Controllers additionally hold the control scope and may
// connect, issue commands and register programs.
package auth
