package recorder

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/replaycore/internal/replay/codec"
	"github.com/annel0/replaycore/internal/replay/errs"
	"github.com/annel0/replaycore/internal/replay/header"
)

// fakeClock — тот же паттерн, что и в internal/replay/replayer: детерминированные,
// вручную продвигаемые часы вместо реального ожидания на wall-clock.
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

// Recording half of round-trip Scenario 1: record, flush and stop; the
// replay half is covered by the replayer package's tests.
func TestRecorder_StartRecordStop(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock(time.Unix(1000, 0))

	r, err := New[string](dir, codec.NewJSONCodec[string](), Options{
		TickRate:    10,
		SegmentSize: 5,
		Now:         clock.Now,
	})
	require.NoError(t, err)

	require.NoError(t, r.Start())
	assert.Equal(t, Recording, r.GetState())

	var flushed []int64
	r.opts.OnFlush = func(first, last int64) { flushed = append(flushed, first, last) }

	for i := 0; i < 12; i++ {
		require.NoError(t, r.Record("payload"))
		clock.Advance(100 * time.Millisecond)
	}

	meta, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, Idle, r.GetState())
	assert.Equal(t, 10, meta.TickRate)
	assert.Equal(t, 5, meta.SegmentSize)
	assert.True(t, meta.TotalTicks > 0)

	stats := r.GetStats()
	assert.Equal(t, int64(12), stats.RecordedCount)
	assert.True(t, stats.FlushCount >= 1)
	assert.NotEmpty(t, flushed)

	// At least one segment file must have been persisted to disk.
	_, statErr := os.Stat(filepath.Join(dir, "segment_0.dat"))
	assert.NoError(t, statErr)

	readBack, err := header.NewStore(dir).ReadMeta()
	require.NoError(t, err)
	assert.Equal(t, meta.TotalTicks, readBack.TotalTicks)
}

// Round-trip Scenario 2: pause during recording freezes the derived tick;
// totalTicks should land close to the documented ≈30.
func TestRecorder_PauseFreezesTickAndResumeContinues(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock(time.Unix(2000, 0))

	r, err := New[string](dir, codec.NewJSONCodec[string](), Options{
		TickRate:    30,
		SegmentSize: 1000,
		Now:         clock.Now,
	})
	require.NoError(t, err)
	require.NoError(t, r.Start())

	clock.Advance(500 * time.Millisecond)
	require.NoError(t, r.Record("a"))

	require.NoError(t, r.Pause())
	assert.Equal(t, Paused, r.GetState())

	frozen := r.GetCurrentTick()
	// Wall-clock moves on while paused; the derived tick must not.
	clock.Advance(2 * time.Second)
	assert.Equal(t, frozen, r.GetCurrentTick())

	require.NoError(t, r.Resume())
	assert.Equal(t, Recording, r.GetState())

	clock.Advance(500 * time.Millisecond)
	require.NoError(t, r.Record("b"))

	meta, err := r.Stop()
	require.NoError(t, err)

	// 1s of actual recording time at tickRate=30 ≈ 30 ticks, the paused
	// 2s interval must not have been counted.
	assert.InDelta(t, 30, meta.TotalTicks, 2)
}

// The derived tick lands exactly on 100 after 10s at tickRate=10.
func TestRecorder_TickExactlyAtBoundary(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock(time.Unix(3000, 0))

	r, err := New[string](dir, codec.NewJSONCodec[string](), Options{
		TickRate:    10,
		SegmentSize: 1000,
		Now:         clock.Now,
	})
	require.NoError(t, err)
	require.NoError(t, r.Start())

	// elapsedMs * tickRate / 1000 == 100  =>  elapsedMs == 10000 for tickRate=10.
	clock.Advance(10 * time.Second)
	assert.Equal(t, int64(100), r.GetCurrentTick())
}

// tickNow floors to 1 rather than 0 so the very first recorded sample is
// never attributed to tick 0 before any time has actually elapsed.
func TestRecorder_TickNowFloorsToOne(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock(time.Unix(4000, 0))

	r, err := New[string](dir, codec.NewJSONCodec[string](), Options{
		TickRate:    30,
		SegmentSize: 1000,
		Now:         clock.Now,
	})
	require.NoError(t, err)
	require.NoError(t, r.Start())

	assert.Equal(t, int64(1), r.GetCurrentTick())
}

func TestRecorder_RecordRequiresRecording(t *testing.T) {
	dir := t.TempDir()
	r, err := New[string](dir, codec.NewJSONCodec[string](), Options{})
	require.NoError(t, err)

	err = r.Record("x")
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestRecorder_PauseRequiresRecording(t *testing.T) {
	dir := t.TempDir()
	r, err := New[string](dir, codec.NewJSONCodec[string](), Options{})
	require.NoError(t, err)

	assert.ErrorIs(t, r.Pause(), errs.ErrInvalidState)
}

func TestRecorder_ResumeRequiresPaused(t *testing.T) {
	dir := t.TempDir()
	r, err := New[string](dir, codec.NewJSONCodec[string](), Options{})
	require.NoError(t, err)
	require.NoError(t, r.Start())

	assert.ErrorIs(t, r.Resume(), errs.ErrInvalidState)
}

func TestRecorder_StartRequiresIdle(t *testing.T) {
	dir := t.TempDir()
	r, err := New[string](dir, codec.NewJSONCodec[string](), Options{})
	require.NoError(t, err)
	require.NoError(t, r.Start())

	assert.ErrorIs(t, r.Start(), errs.ErrInvalidState)
}
