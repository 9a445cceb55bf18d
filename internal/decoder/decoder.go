// Package decoder turns the front color sensor stream into marks and program
// triggers.
//
// Readings accumulate in a buffer until BLACK arrives. The buffered run is
// then classified: the CYAN-paired two-color runs are junction or merge
// marks, everything else is a program trigger looked up by identity.
package decoder

import (
	"go.uber.org/zap"

	"github.com/train-control/tcc/internal/adapter"
)

// DefaultMaxSequenceLength bounds the buffer when no limit is configured.
const DefaultMaxSequenceLength = 16

// Kind classifies a decoded run.
type Kind string

const (
	KindEmpty    Kind = "empty"
	KindJunction Kind = "junction"
	KindMerge    Kind = "merge"
	KindProgram  Kind = "program"
	// KindOverflow is a run that outgrew the buffer. It is never looked up.
	KindOverflow Kind = "overflow"
)

// Result is the classification of one run.
type Result struct {
	Kind Kind
	// Side is set for junction and merge marks.
	Side     adapter.Steering
	Sequence Sequence
}

// IsMark reports whether r is a junction or merge mark.
func (r Result) IsMark() bool {
	return r.Kind == KindJunction || r.Kind == KindMerge
}

type pair struct{ a, b adapter.Color }

var marks = map[pair]Result{
	{adapter.ColorCyan, adapter.ColorRed}:  {Kind: KindJunction, Side: adapter.SteeringLeft},
	{adapter.ColorRed, adapter.ColorCyan}:  {Kind: KindMerge, Side: adapter.SteeringRight},
	{adapter.ColorBlue, adapter.ColorCyan}: {Kind: KindJunction, Side: adapter.SteeringRight},
	{adapter.ColorCyan, adapter.ColorBlue}: {Kind: KindMerge, Side: adapter.SteeringLeft},
}

// Classify returns the classification of a run that contains no BLACK.
func Classify(seq Sequence) Result {
	if len(seq) == 0 {
		return Result{Kind: KindEmpty}
	}
	if len(seq) == 2 {
		if r, ok := marks[pair{seq[0], seq[1]}]; ok {
			r.Sequence = seq
			return r
		}
	}
	return Result{Kind: KindProgram, Sequence: seq}
}

// Decoder accumulates readings. It is not safe for concurrent use.
type Decoder struct {
	buf        []adapter.Color
	max        int
	overflowed bool
	dropped    int
	logger     *zap.Logger
}

// New returns a decoder whose buffer holds at most maxLen readings.
func New(maxLen int, logger *zap.Logger) *Decoder {
	if maxLen <= 0 {
		maxLen = DefaultMaxSequenceLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{
		buf:    make([]adapter.Color, 0, maxLen),
		max:    maxLen,
		logger: logger,
	}
}

// Feed consumes one reading. On BLACK it snapshots and clears the buffer and
// returns the classification with ok set. Any other color is appended.
//
// A run longer than the buffer is marked overflowed: the oldest readings are
// dropped and the closing BLACK yields KindOverflow instead of a lookup.
func (d *Decoder) Feed(c adapter.Color) (Result, bool) {
	switch c {
	case adapter.ColorBlack:
		seq := Sequence(append([]adapter.Color(nil), d.buf...))
		d.buf = d.buf[:0]
		if d.overflowed {
			d.logger.Warn("discarding overflowed color run",
				zap.String("tail", seq.Identity()),
				zap.Int("dropped", d.dropped),
				zap.Int("max", d.max))
			d.overflowed = false
			d.dropped = 0
			return Result{Kind: KindOverflow, Sequence: seq}, true
		}
		return Classify(seq), true
	case adapter.ColorUnknown:
		d.logger.Debug("unreadable color ignored")
		return Result{}, false
	}

	if len(d.buf) == d.max {
		if !d.overflowed {
			d.logger.Warn("color buffer full, dropping oldest reading",
				zap.Stringer("dropped", d.buf[0]),
				zap.Int("max", d.max))
		}
		d.overflowed = true
		d.dropped++
		copy(d.buf, d.buf[1:])
		d.buf = d.buf[:d.max-1]
	}
	d.buf = append(d.buf, c)
	return Result{}, false
}

// MaxLen returns the longest run the decoder can classify.
func (d *Decoder) MaxLen() int {
	return d.max
}

// Pending returns a copy of the buffered readings.
func (d *Decoder) Pending() Sequence {
	return append(Sequence(nil), d.buf...)
}

// Reset discards buffered readings.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.overflowed = false
	d.dropped = 0
}
