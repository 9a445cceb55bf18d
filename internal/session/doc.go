// Package session owns the vehicle connection lifecycle.
//
// A Manager runs at most one session at a time. Connect returns immediately;
// the scan, the attach of the event listener and the driving wait all run on
// the session goroutine, which holds the session lock until teardown ends.
package session
