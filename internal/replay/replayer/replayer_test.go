package replayer

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/replaycore/internal/replay/codec"
	"github.com/annel0/replaycore/internal/replay/errs"
	"github.com/annel0/replaycore/internal/replay/header"
	"github.com/annel0/replaycore/internal/replay/rangequery"
	"github.com/annel0/replaycore/internal/replay/tick"
)

// fakeClock даёт детерминированное, вручную продвигаемое время для тестов
// планировщика плеера без реального ожидания на wall-clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func writeFixture(t *testing.T, dir string, tickRate, segmentSize int, ticks map[int64]string) {
	t.Helper()

	c := codec.NewJSONCodec[string]()
	var maxTick int64
	segments := make(map[int64]map[int64]string)
	for tk, v := range ticks {
		idx := tk / int64(segmentSize)
		if segments[idx] == nil {
			segments[idx] = make(map[int64]string)
		}
		segments[idx][tk] = v
		if tk > maxTick {
			maxTick = tk
		}
	}

	hs := header.NewStore(dir)
	require.NoError(t, hs.WriteMeta(header.Meta{
		CreatedAt:   time.Unix(0, 0),
		TickRate:    tickRate,
		SegmentSize: segmentSize,
		TotalTicks:  maxTick + 1,
		Codec:       "json",
	}))

	for idx, data := range segments {
		var first, last int64 = -1, -1
		for tk := range data {
			if first == -1 || tk < first {
				first = tk
			}
			if tk > last {
				last = tk
			}
		}
		raw, err := c.Encode(codec.Segment[string]{FirstTick: first, LastTick: last, Data: data})
		require.NoError(t, err)
		name := filepath.Join(dir, "segment_"+strconv.FormatInt(idx, 10)+".dat")
		require.NoError(t, os.WriteFile(name, raw, 0o644))
	}
}

func TestReplayer_PlaySequenceAndEnd(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, 10, 1000, map[int64]string{
		0: "a",
		1: "b",
		2: "c",
	})

	clock := newFakeClock(time.Unix(100, 0))
	var mu sync.Mutex
	var seen []string
	ended := false

	r, err := New[string](dir, codec.NewJSONCodec[string](), Options[string]{
		Now: clock.Now,
		OnTick: func(data string, meta tick.Meta) {
			mu.Lock()
			seen = append(seen, data)
			mu.Unlock()
		},
		OnEnd: func() {
			mu.Lock()
			ended = true
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.NoError(t, r.Init())

	require.NoError(t, r.Play())
	// tick 0 is emitted synchronously inside Play(); tick 1 is then due in
	// 100ms of real time on a timer. Advance clock past ticks 1 and 2 (100ms each at tickRate=10) then past
	// end-of-recording so the scheduler's catch-up path drains everything.
	clock.Advance(500 * time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := ended
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, ended)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, Idle, r.GetState())
}

func TestReplayer_PauseResume(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, 10, 1000, map[int64]string{0: "a", 1: "b"})

	clock := newFakeClock(time.Unix(200, 0))
	r, err := New[string](dir, codec.NewJSONCodec[string](), Options[string]{Now: clock.Now})
	require.NoError(t, err)
	require.NoError(t, r.Init())

	require.NoError(t, r.Play())
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.Pause())
	assert.Equal(t, Paused, r.GetState())

	err = r.Pause()
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	clock.Advance(time.Hour)
	require.NoError(t, r.Resume())
	assert.Equal(t, Playing, r.GetState())

	require.NoError(t, r.Stop())
	assert.Equal(t, Idle, r.GetState())
}

func TestReplayer_SeekClampsAndInvokesOnTick(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, 30, 1000, map[int64]string{0: "a", 5: "b", 999: "c"})

	var lastData string
	var lastMeta tick.Meta
	r, err := New[string](dir, codec.NewJSONCodec[string](), Options[string]{
		OnTick: func(data string, meta tick.Meta) {
			lastData = data
			lastMeta = meta
		},
	})
	require.NoError(t, err)
	require.NoError(t, r.Init())

	require.NoError(t, r.Seek(5))
	assert.Equal(t, "b", lastData)
	assert.Equal(t, int64(5), lastMeta.Tick)
	assert.Equal(t, Idle, r.GetState())

	require.NoError(t, r.Seek(-100))
	assert.Equal(t, int64(0), r.GetCurrentTick())

	require.NoError(t, r.Seek(1_000_000))
	assert.Equal(t, int64(999), r.GetCurrentTick())
}

func TestReplayer_StepForwardBackward(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, 30, 1000, map[int64]string{0: "a", 1: "b", 2: "c"})

	r, err := New[string](dir, codec.NewJSONCodec[string](), Options[string]{})
	require.NoError(t, err)
	require.NoError(t, r.Init())

	require.NoError(t, r.StepForward(2))
	assert.Equal(t, int64(2), r.GetCurrentTick())

	require.NoError(t, r.StepBackward(5))
	assert.Equal(t, int64(0), r.GetCurrentTick())
}

func TestReplayer_SetSpeedRequiresPlaying(t *testing.T) {
	dir := t.TempDir()
	// Enough ticks that the recording is still playing when Stop() is
	// called: at 10x the first SetSpeed reschedule runs tick 1 inline.
	ticks := make(map[int64]string)
	for i := int64(0); i < 100; i++ {
		ticks[i] = "a"
	}
	writeFixture(t, dir, 30, 1000, ticks)

	r, err := New[string](dir, codec.NewJSONCodec[string](), Options[string]{})
	require.NoError(t, err)
	require.NoError(t, r.Init())

	err = r.SetSpeed(2.0)
	assert.True(t, errors.Is(err, errs.ErrInvalidState))

	require.NoError(t, r.Play())
	require.NoError(t, r.SetSpeed(50.0))
	assert.Equal(t, 10.0, r.GetSpeed())
	require.NoError(t, r.Stop())
}

func TestReplayer_GetRangeData(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, 10, 2, map[int64]string{0: "a", 1: "b", 3: "d"})

	r, err := New[string](dir, codec.NewJSONCodec[string](), Options[string]{})
	require.NoError(t, err)
	require.NoError(t, r.Init())

	entries, err := r.GetRangeData(rangequery.Options{
		TickRange:           &[2]int64{0, 3},
		IncludePartialTicks: true,
	})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.False(t, entries[2].HasData)

	_, err = r.GetRangeData(rangequery.Options{})
	assert.ErrorIs(t, err, errs.ErrInvalidArgs)
}
