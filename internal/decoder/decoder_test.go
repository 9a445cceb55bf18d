package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/train-control/tcc/internal/adapter"
)

const (
	red    = adapter.ColorRed
	yellow = adapter.ColorYellow
	blue   = adapter.ColorBlue
	cyan   = adapter.ColorCyan
	black  = adapter.ColorBlack
	green  = adapter.ColorGreen
)

func feedAll(d *Decoder, colors ...adapter.Color) []Result {
	var out []Result
	for _, c := range colors {
		if r, ok := d.Feed(c); ok {
			out = append(out, r)
		}
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		seq  Sequence
		kind Kind
		side adapter.Steering
	}{
		{"cyan red junction left", Sequence{cyan, red}, KindJunction, adapter.SteeringLeft},
		{"red cyan merge right", Sequence{red, cyan}, KindMerge, adapter.SteeringRight},
		{"blue cyan junction right", Sequence{blue, cyan}, KindJunction, adapter.SteeringRight},
		{"cyan blue merge left", Sequence{cyan, blue}, KindMerge, adapter.SteeringLeft},
		{"other pair is program", Sequence{red, yellow}, KindProgram, 0},
		{"cyan cyan is program", Sequence{cyan, cyan}, KindProgram, 0},
		{"single color is program", Sequence{cyan}, KindProgram, 0},
		{"triple with cyan pair is program", Sequence{cyan, red, blue}, KindProgram, 0},
		{"empty", Sequence{}, KindEmpty, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Classify(tt.seq)
			assert.Equal(t, tt.kind, r.Kind)
			if r.IsMark() {
				assert.Equal(t, tt.side, r.Side)
			}
		})
	}
}

func TestDecoderScenarios(t *testing.T) {
	d := New(0, nil)

	results := feedAll(d, blue, cyan, black)
	require.Len(t, results, 1)
	assert.Equal(t, KindJunction, results[0].Kind)
	assert.Equal(t, adapter.SteeringRight, results[0].Side)

	results = feedAll(d, cyan, blue, black)
	require.Len(t, results, 1)
	assert.Equal(t, KindMerge, results[0].Kind)
	assert.Equal(t, adapter.SteeringLeft, results[0].Side)

	results = feedAll(d, cyan, red, black)
	require.Len(t, results, 1)
	assert.Equal(t, KindJunction, results[0].Kind)
	assert.Equal(t, adapter.SteeringLeft, results[0].Side)

	results = feedAll(d, red, yellow, black)
	require.Len(t, results, 1)
	assert.Equal(t, KindProgram, results[0].Kind)
	assert.Equal(t, "RED-YELLOW", results[0].Sequence.Identity())
}

func TestDecoderSnapshotNeverContainsBlack(t *testing.T) {
	d := New(0, nil)
	results := feedAll(d, black, red, black, black, green, yellow, black)

	require.Len(t, results, 4)
	assert.Equal(t, KindEmpty, results[0].Kind)
	assert.Equal(t, KindProgram, results[1].Kind)
	assert.Equal(t, KindEmpty, results[2].Kind)
	assert.Equal(t, "GREEN-YELLOW", results[3].Sequence.Identity())
	for _, r := range results {
		assert.NotContains(t, r.Sequence, black)
	}
	assert.Empty(t, d.Pending())
}

func TestDecoderSnapshotIsIndependentOfBuffer(t *testing.T) {
	d := New(0, nil)
	results := feedAll(d, red, yellow, black)
	require.Len(t, results, 1)

	feedAll(d, blue, green)
	assert.Equal(t, Sequence{red, yellow}, results[0].Sequence)
}

func TestDecoderOverflowDiscardsRun(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := New(3, zap.New(core))

	feedAll(d, red, yellow, blue, green, red)
	assert.Equal(t, Sequence{blue, green, red}, d.Pending())
	assert.Equal(t, 1, logs.FilterMessage("color buffer full, dropping oldest reading").Len())

	results := feedAll(d, black)
	require.Len(t, results, 1)
	assert.Equal(t, KindOverflow, results[0].Kind)
	assert.False(t, results[0].IsMark())
	assert.Equal(t, 1, logs.FilterMessage("discarding overflowed color run").Len())

	// The next run starts clean.
	results = feedAll(d, yellow, blue, green, black)
	require.Len(t, results, 1)
	assert.Equal(t, KindProgram, results[0].Kind)
	assert.Equal(t, "YELLOW-BLUE-GREEN", results[0].Sequence.Identity())
}

func TestDecoderRunAtBoundIsClassified(t *testing.T) {
	d := New(3, nil)
	assert.Equal(t, 3, d.MaxLen())

	results := feedAll(d, red, yellow, blue, black)
	require.Len(t, results, 1)
	assert.Equal(t, KindProgram, results[0].Kind)
}

func TestResetClearsOverflow(t *testing.T) {
	d := New(2, nil)
	feedAll(d, red, yellow, blue)
	d.Reset()

	results := feedAll(d, red, yellow, black)
	require.Len(t, results, 1)
	assert.Equal(t, KindProgram, results[0].Kind)
}

func TestDecoderIgnoresUnknown(t *testing.T) {
	d := New(0, nil)
	feedAll(d, red, adapter.ColorUnknown, yellow)
	assert.Equal(t, Sequence{red, yellow}, d.Pending())

	d.Reset()
	assert.Empty(t, d.Pending())
}

func TestParseSequence(t *testing.T) {
	seq, err := ParseSequence("red, Yellow ,BLUE")
	require.NoError(t, err)
	assert.Equal(t, Sequence{red, yellow, blue}, seq)
	assert.Equal(t, "RED-YELLOW-BLUE", seq.Identity())

	for _, bad := range []string{"", " , ", "red, black", "red, purple"} {
		_, err := ParseSequence(bad)
		assert.ErrorIs(t, err, ErrInvalidSequence, bad)
	}
}

func TestSequenceEqual(t *testing.T) {
	assert.True(t, MustSequence(red, yellow).Equal(Sequence{red, yellow}))
	assert.False(t, MustSequence(red, yellow).Equal(Sequence{yellow, red}))
	assert.False(t, MustSequence(red).Equal(Sequence{red, red}))
	assert.Panics(t, func() { MustSequence(black) })
}
