package decoder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/train-control/tcc/internal/adapter"
)

// Separator joins color names in a sequence identity.
const Separator = "-"

// ErrInvalidSequence indicates a sequence that cannot be used as a trigger.
var ErrInvalidSequence = errors.New("INVALID_SEQUENCE")

// Sequence is an ordered run of colors read between two BLACK delimiters.
// It never contains BLACK.
type Sequence []adapter.Color

// NewSequence validates colors and returns them as a Sequence.
func NewSequence(colors ...adapter.Color) (Sequence, error) {
	if len(colors) == 0 {
		return nil, fmt.Errorf("%w: empty sequence", ErrInvalidSequence)
	}
	for i, c := range colors {
		switch c {
		case adapter.ColorBlack:
			return nil, fmt.Errorf("%w: BLACK at position %d is reserved as delimiter", ErrInvalidSequence, i)
		case adapter.ColorUnknown:
			return nil, fmt.Errorf("%w: unknown color at position %d", ErrInvalidSequence, i)
		}
	}
	return append(Sequence(nil), colors...), nil
}

// MustSequence is like NewSequence but panics on error. For literals in tests
// and tables.
func MustSequence(colors ...adapter.Color) Sequence {
	s, err := NewSequence(colors...)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseSequence parses comma-separated color names, e.g. "red, yellow".
func ParseSequence(csv string) (Sequence, error) {
	var colors []adapter.Color
	for _, part := range strings.Split(csv, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		c, err := adapter.ParseColor(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSequence, err)
		}
		colors = append(colors, c)
	}
	return NewSequence(colors...)
}

// Identity returns the registry key: names joined by Separator, e.g. RED-YELLOW.
func (s Sequence) Identity() string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.String()
	}
	return strings.Join(names, Separator)
}

func (s Sequence) String() string {
	return s.Identity()
}

// Equal reports element-wise equality.
func (s Sequence) Equal(other Sequence) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}
