package rangequery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/replaycore/internal/replay/codec"
	"github.com/annel0/replaycore/internal/replay/errs"
	"github.com/annel0/replaycore/internal/replay/header"
	"github.com/annel0/replaycore/internal/replay/segment"
)

func newFixtureStore(t *testing.T, segmentSize int, ticks map[int64]string) (*segment.Store[string], header.Meta) {
	t.Helper()

	dir := t.TempDir()
	c := codec.NewJSONCodec[string]()
	store, err := segment.NewStore[string](dir, c)
	require.NoError(t, err)

	bySeg := make(map[int64]map[int64]string)
	var maxTick int64
	for tk, v := range ticks {
		idx := tk / int64(segmentSize)
		if bySeg[idx] == nil {
			bySeg[idx] = make(map[int64]string)
		}
		bySeg[idx][tk] = v
		if tk > maxTick {
			maxTick = tk
		}
	}

	for idx, data := range bySeg {
		var first, last int64 = -1, -1
		for tk := range data {
			if first == -1 || tk < first {
				first = tk
			}
			if tk > last {
				last = tk
			}
		}
		require.NoError(t, store.WriteSegment(idx, first, last, data))
	}

	return store, header.Meta{TickRate: 10, SegmentSize: segmentSize, TotalTicks: maxTick + 1}
}

func TestGet_RequiresExactlyOneRange(t *testing.T) {
	store, meta := newFixtureStore(t, 10, map[int64]string{0: "a"})

	_, err := Get[string](store, meta, Options{})
	assert.ErrorIs(t, err, errs.ErrInvalidArgs)

	tr := [2]int64{0, 0}
	ttr := [2]int64{0, 0}
	_, err = Get[string](store, meta, Options{TickRange: &tr, TimeRangeMs: &ttr})
	assert.ErrorIs(t, err, errs.ErrInvalidArgs)
}

func TestGet_TickRangeSkipsGapsByDefault(t *testing.T) {
	store, meta := newFixtureStore(t, 10, map[int64]string{0: "a", 1: "b", 3: "d"})

	entries, err := Get[string](store, meta, Options{TickRange: &[2]int64{0, 3}})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Data)
	assert.Equal(t, "b", entries[1].Data)
	assert.Equal(t, "d", entries[2].Data)
}

func TestGet_IncludePartialTicksPadsGaps(t *testing.T) {
	store, meta := newFixtureStore(t, 10, map[int64]string{0: "a", 3: "d"})

	entries, err := Get[string](store, meta, Options{
		TickRange:           &[2]int64{0, 3},
		IncludePartialTicks: true,
	})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.True(t, entries[0].HasData)
	assert.False(t, entries[1].HasData)
	assert.False(t, entries[2].HasData)
	assert.True(t, entries[3].HasData)
	assert.Equal(t, "", entries[1].Data)
}

func TestGet_ClampsToRecordingBounds(t *testing.T) {
	store, meta := newFixtureStore(t, 10, map[int64]string{0: "a", 1: "b"})

	entries, err := Get[string](store, meta, Options{TickRange: &[2]int64{-50, 1000}})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestGet_TimeRangeConvertsViaTickRate(t *testing.T) {
	store, meta := newFixtureStore(t, 10, map[int64]string{0: "a", 1: "b", 2: "c"})

	entries, err := Get[string](store, meta, Options{TimeRangeMs: &[2]int64{0, 200}})
	require.NoError(t, err)
	require.Len(t, entries, 3)
}
