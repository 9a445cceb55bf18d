package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"start", New(KindStart)},
		{"  STOP ", New(KindStop)},
		{"next_left", New(KindNextLeft)},
		{"next_right 3", New(KindNextRight, 3)},
		{"speed_fine 5", New(KindSpeedFine, 5)},
		{"speed_fine 9", New(KindSpeedFine, 9)},
		{"Keep_Straight", New(KindKeepStraight)},
		{"exit", New(KindExit)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"fly",
		"speed_fine",
		"speed_fine 1 2",
		"speed_fine fast",
		"next_left 1 2",
		"start 1",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestKindNamesAreComplete(t *testing.T) {
	kinds := AllKinds()
	require.Len(t, kinds, int(kindCount))

	seen := map[string]bool{}
	for _, k := range kinds {
		kw := k.Keyword()
		require.NotEmpty(t, kw, "kind %d has no keyword", int(k))
		assert.False(t, seen[kw], "duplicate keyword %s", kw)
		seen[kw] = true

		parsed, err := ParseKind(kw)
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "NEXT_LEFT", KindNextLeft.String())
	assert.Equal(t, "SPEED_FINE", KindSpeedFine.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
	assert.False(t, Kind(-1).Valid())
}

func TestCommandStringRoundTrip(t *testing.T) {
	for _, c := range []Command{New(KindNextStraight, 4), New(KindReverse), New(KindSpeedFine, 1)} {
		parsed, err := Parse(c.String())
		require.NoError(t, err)
		assert.True(t, c.Equal(parsed))
	}
}

func TestArg(t *testing.T) {
	assert.Equal(t, 1, New(KindNextLeft).Arg(1))
	assert.Equal(t, 3, New(KindNextLeft, 3).Arg(1))
}

func TestNeedsVehicle(t *testing.T) {
	assert.False(t, KindConnect.NeedsVehicle())
	assert.False(t, KindDisconnect.NeedsVehicle())
	assert.False(t, KindExit.NeedsVehicle())
	assert.True(t, KindStart.NeedsVehicle())
	assert.True(t, KindSnapsIgnore.NeedsVehicle())
}
