package header

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/replaycore/internal/replay/errs"
)

func TestStore_WriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	want := Meta{
		CreatedAt:     time.Unix(1_700_000_000, 0).UTC(),
		TickRate:      30,
		SegmentSize:   1000,
		TotalTicks:    12345,
		TotalDuration: 411500,
		Codec:         "json",
	}

	require.NoError(t, s.WriteMeta(want))

	got, err := s.ReadMeta()
	require.NoError(t, err)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, want.TickRate, got.TickRate)
	assert.Equal(t, want.SegmentSize, got.SegmentSize)
	assert.Equal(t, want.TotalTicks, got.TotalTicks)
	assert.Equal(t, want.TotalDuration, got.TotalDuration)
	assert.Equal(t, want.Codec, got.Codec)
}

func TestStore_WriteOverwritesPreviousMeta(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	require.NoError(t, s.WriteMeta(Meta{TickRate: 10, SegmentSize: 500}))
	require.NoError(t, s.WriteMeta(Meta{TickRate: 60, SegmentSize: 2000}))

	got, err := s.ReadMeta()
	require.NoError(t, err)
	assert.Equal(t, 60, got.TickRate)
	assert.Equal(t, 2000, got.SegmentSize)
}

func TestStore_ReadMetaMissingFileIsErrNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := NewStore(dir).ReadMeta()
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
