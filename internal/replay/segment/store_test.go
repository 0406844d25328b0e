package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/replaycore/internal/replay/codec"
	"github.com/annel0/replaycore/internal/replay/errs"
)

func TestStore_WriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore[string](dir, codec.NewJSONCodec[string]())
	require.NoError(t, err)
	defer s.Close()

	data := map[int64]string{0: "a", 1: "b", 2: "c"}
	require.NoError(t, s.WriteSegment(0, 0, 2, data))

	got, err := s.LoadSegment(0)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.True(t, s.Exists(0))
	assert.False(t, s.Exists(1))
}

func TestStore_LoadUsesCacheWithoutTouchingDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore[string](dir, codec.NewJSONCodec[string]())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteSegment(0, 0, 0, map[int64]string{0: "a"}))
	assert.Equal(t, 1, s.CachedCount())

	got, err := s.LoadSegment(0)
	require.NoError(t, err)
	assert.Equal(t, "a", got[0])
}

func TestStore_LoadMissingSegmentIsErrNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore[string](dir, codec.NewJSONCodec[string]())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.LoadSegment(42)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStore_LoadCorruptSegmentIsErrCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore[string](dir, codec.NewJSONCodec[string]())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteSegment(0, 0, 0, map[int64]string{0: "a"}))

	// Overwrite the file directly with garbage, then evict the cache so
	// LoadSegment is forced to re-read and decode it from disk.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segment_0.dat"), []byte("not json"), 0o644))
	s.EvictFarFrom(1000, 0)

	_, err = s.LoadSegment(0)
	assert.ErrorIs(t, err, errs.ErrCorrupt)
}

func TestStore_EvictFarFromRespectsWindow(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore[string](dir, codec.NewJSONCodec[string]())
	require.NoError(t, err)
	defer s.Close()

	for i := int64(0); i < 10; i++ {
		require.NoError(t, s.WriteSegment(i, i, i, map[int64]string{i: "x"}))
	}
	assert.Equal(t, 10, s.CachedCount())

	s.EvictFarFrom(5, 2)
	assert.Equal(t, 5, s.CachedCount())

	for i := int64(3); i <= 7; i++ {
		assert.Contains(t, cachedIndices(s), i)
	}
}

func cachedIndices(s *Store[string]) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.cache))
	for k := range s.cache {
		out = append(out, k)
	}
	return out
}
