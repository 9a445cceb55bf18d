// Package audit writes one JSON line per executed command.
//
// Each entry records who acted, on which session and vehicle, the command
// and its arguments, and the normalized outcome code. Files are rotated by
// size and age.
package audit
