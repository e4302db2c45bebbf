package pagination

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTripKeepsNanoseconds(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 5, 1, 19, 4, 5, 123456789, time.UTC), ID: uuid.New()}
	got, err := Decode(want.Encode())
	require.NoError(t, err)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt))
	require.Equal(t, want.ID, got.ID)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm9kb3Q", "enp6LnV1aWQ"} {
		_, err := Decode(token)
		require.True(t, errors.Is(err, ErrInvalidCursor), token)
	}
	cursor, err := Decode("  ")
	require.NoError(t, err)
	require.Nil(t, cursor)
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, 7, NormalizeLimit(7))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit*3))
}

func TestPageTrimsTheLookaheadRow(t *testing.T) {
	key := func(n int) Cursor { return Cursor{CreatedAt: time.Unix(int64(n), 0)} }

	rows, next := Page([]int{5, 4, 3}, 2, key)
	require.Equal(t, []int{5, 4}, rows)
	require.NotNil(t, next)
	require.Equal(t, int64(4), next.CreatedAt.Unix())

	rows, next = Page([]int{5, 4}, 2, key)
	require.Equal(t, []int{5, 4}, rows)
	require.Nil(t, next)
}
