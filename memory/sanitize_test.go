package memory

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type point struct{ X, Y int }

func TestSanitizeKeepsPrimitives(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"string", "hello", "hello"},
		{"empty string", "", ""},
		{"int", 7, int64(7)},
		{"int64", int64(-3), int64(-3)},
		{"uint8", uint8(9), int64(9)},
		{"uint64 at int64 max", uint64(math.MaxInt64), int64(math.MaxInt64)},
		{"float64", 1.5, 1.5},
		{"float32", float32(0.25), 0.25},
		{"bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.in)
			require.Equal(t, tt.want, got)
			require.Equal(t, got, Sanitize(got))
		})
	}
}

func TestSanitizeUnsignedOverflowIsStringified(t *testing.T) {
	got := Sanitize(uint64(math.MaxUint64))
	require.Equal(t, "18446744073709551615", got)
	require.Equal(t, got, Sanitize(got))

	require.Equal(t, "9223372036854775808", Sanitize(uint64(math.MaxInt64)+1))
}

func TestSanitizeNilIsEmptyString(t *testing.T) {
	require.Equal(t, "", Sanitize(nil))
}

func TestSanitizeStringifiesOtherTypes(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.Equal(t, ts.String(), Sanitize(ts))
	require.Equal(t, "{1 2}", Sanitize(point{1, 2}))
	require.Equal(t, "[a b]", Sanitize([]string{"a", "b"}))
	require.Equal(t, "user", Sanitize(SpeakerUser))
}

func TestTurnMetadata(t *testing.T) {
	turn := Turn{
		UserId:    "u1",
		Speaker:   SpeakerBot,
		Text:      "hi",
		Timestamp: FormatTimestamp(time.Date(2024, 1, 2, 3, 4, 5, 600, time.FixedZone("x", 3600))),
	}

	require.Equal(t, map[string]any{
		KeyUserId:    "u1",
		KeySessionId: "",
		KeyTimestamp: "2024-01-02T02:04:05.000000Z",
		KeySpeaker:   "bot",
		KeyText:      "hi",
	}, turn.Metadata())
}

func TestTimestampLayoutSortsLexically(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := FormatTimestamp(base.Add(100 * time.Millisecond))
	b := FormatTimestamp(base.Add(120 * time.Millisecond))

	require.Less(t, a, b)
	require.Len(t, a, len(b))
}

func TestErrorKinds(t *testing.T) {
	err := NewError(KindStoreFailure, "record", ErrInvalidTurn)

	require.True(t, IsKind(err, KindStoreFailure))
	require.False(t, IsKind(err, KindRetrievalFailure))
	require.ErrorIs(t, err, ErrInvalidTurn)
	require.Equal(t, "memory record: STORE_FAILURE: invalid turn", err.Error())
}
