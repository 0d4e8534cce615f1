package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetIndexAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.index")
	idx, err := OpenOffsetIndex(path)
	require.Nil(t, err)
	defer idx.Close()

	require.Nil(t, idx.Index(0, 0, 10))
	require.Nil(t, idx.Index(1, 10, 20))
	require.Nil(t, idx.Index(2, 30, 5))

	assert.Equal(t, int64(0), idx.Position(0))
	assert.Equal(t, int64(10), idx.Position(1))
	assert.Equal(t, int64(30), idx.Position(2))
	assert.Equal(t, int32(20), idx.Length(1))
	assert.Equal(t, int64(2), idx.LastOffset())
	assert.Equal(t, 3, idx.Size())
	assert.True(t, idx.Contains(1))
	assert.False(t, idx.Contains(3))
}

func TestOffsetIndexPositionAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.index")
	idx, err := OpenOffsetIndex(path)
	require.Nil(t, err)
	defer idx.Close()

	assert.Equal(t, int64(-1), idx.Position(0))
	assert.Equal(t, int64(-1), idx.Position(-1))
}

func TestOffsetIndexTruncateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.index")
	idx, err := OpenOffsetIndex(path)
	require.Nil(t, err)
	defer idx.Close()

	require.Nil(t, idx.Index(0, 0, 10))
	require.Nil(t, idx.Index(1, 10, 20))
	require.Nil(t, idx.Index(2, 30, 5))

	require.Nil(t, idx.Truncate(1))
	assert.Equal(t, int64(1), idx.LastOffset())
	assert.False(t, idx.Contains(2))
	assert.True(t, idx.Contains(1))

	// idempotent: truncating again at the same or higher offset is a no-op
	require.Nil(t, idx.Truncate(1))
	assert.Equal(t, int64(1), idx.LastOffset())
	require.Nil(t, idx.Truncate(5))
	assert.Equal(t, int64(1), idx.LastOffset())
}

func TestOffsetIndexSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.index")
	idx, err := OpenOffsetIndex(path)
	require.Nil(t, err)

	require.Nil(t, idx.Index(0, 0, 10))
	require.Nil(t, idx.Index(1, 10, 20))
	require.Nil(t, idx.Flush())
	require.Nil(t, idx.Close())

	reopened, err := OpenOffsetIndex(path)
	require.Nil(t, err)
	defer reopened.Close()

	assert.Equal(t, int64(10), reopened.Position(1))
	assert.Equal(t, int32(20), reopened.Length(1))
	assert.Equal(t, int64(1), reopened.LastOffset())
}

func TestOffsetIndexTruncateRewritesMirrorFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.index")
	idx, err := OpenOffsetIndex(path)
	require.Nil(t, err)

	require.Nil(t, idx.Index(0, 0, 10))
	require.Nil(t, idx.Index(1, 10, 20))
	require.Nil(t, idx.Index(2, 30, 5))
	require.Nil(t, idx.Truncate(0))
	require.Nil(t, idx.Close())

	reopened, err := OpenOffsetIndex(path)
	require.Nil(t, err)
	defer reopened.Close()
	assert.Equal(t, int64(0), reopened.LastOffset())
	assert.False(t, reopened.Contains(1))
}

func TestOffsetIndexOperationsFailWhenClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.index")
	idx, err := OpenOffsetIndex(path)
	require.Nil(t, err)
	require.Nil(t, idx.Close())

	assert.Equal(t, ErrNotOpen, idx.Index(0, 0, 1))
	assert.Equal(t, ErrNotOpen, idx.Truncate(0))
	assert.Equal(t, ErrNotOpen, idx.Flush())
}
