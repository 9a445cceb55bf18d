package command

import (
	"fmt"
	"strings"
)

// Kind identifies a command.
type Kind int

const (
	KindConnect Kind = iota
	KindDisconnect
	KindStart
	KindStop
	KindKeepLeft
	KindKeepRight
	KindKeepStraight
	KindNextLeft
	KindNextRight
	KindNextStraight
	KindSnapsFollow
	KindSnapsIgnore
	KindSpeedSlow
	KindSpeedMedium
	KindSpeedFast
	KindSpeedFine
	KindReverse
	KindForward
	KindBackward
	KindExit

	kindCount
)

var kindNames = [kindCount]string{
	KindConnect:      "connect",
	KindDisconnect:   "disconnect",
	KindStart:        "start",
	KindStop:         "stop",
	KindKeepLeft:     "keep_left",
	KindKeepRight:    "keep_right",
	KindKeepStraight: "keep_straight",
	KindNextLeft:     "next_left",
	KindNextRight:    "next_right",
	KindNextStraight: "next_straight",
	KindSnapsFollow:  "snaps_follow",
	KindSnapsIgnore:  "snaps_ignore",
	KindSpeedSlow:    "speed_slow",
	KindSpeedMedium:  "speed_medium",
	KindSpeedFast:    "speed_fast",
	KindSpeedFine:    "speed_fine",
	KindReverse:      "reverse",
	KindForward:      "forward",
	KindBackward:     "backward",
	KindExit:         "exit",
}

// AllKinds returns every command kind in declaration order.
func AllKinds() []Kind {
	kinds := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// String returns the upper-case name, e.g. NEXT_LEFT.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return strings.ToUpper(kindNames[k])
}

// Keyword returns the lower-case text form accepted by Parse.
func (k Kind) Keyword() string {
	if !k.Valid() {
		return ""
	}
	return kindNames[k]
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < kindCount
}

// TakesArg reports whether the kind accepts an argument.
func (k Kind) TakesArg() bool {
	return k.IsNext() || k == KindSpeedFine
}

// IsNext reports whether k is one of the NEXT_* override kinds.
func (k Kind) IsNext() bool {
	return k == KindNextLeft || k == KindNextRight || k == KindNextStraight
}

// NeedsVehicle reports whether executing k issues an instruction to the
// vehicle. Session and EXIT commands do not.
func (k Kind) NeedsVehicle() bool {
	switch k {
	case KindConnect, KindDisconnect, KindExit:
		return false
	default:
		return k.Valid()
	}
}

// ParseKind maps a keyword such as "keep_left" or "KEEP_LEFT" to its Kind.
func ParseKind(s string) (Kind, error) {
	word := strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == word {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown command %q", ErrMalformed, s)
}
