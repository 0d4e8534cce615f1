package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendN(t *testing.T, l *Log, from, to, term uint64) {
	for i := from; i <= to; i++ {
		_, err := l.Append(&Entry{Index: i, Term: term, Data: []byte("x")})
		require.Nil(t, err)
	}
}

func TestLogAppendAndGetWithinOneSegment(t *testing.T) {
	l, err := OpenLog(t.TempDir(), LogConfig{MaxSegmentSize: 1 << 20})
	require.Nil(t, err)
	defer l.Close()

	appendN(t, l, 1, 10, 1)
	assert.Equal(t, uint64(1), l.FirstIndex())
	assert.Equal(t, uint64(10), l.LastIndex())

	entry, err := l.Get(5)
	require.Nil(t, err)
	assert.Equal(t, uint64(5), entry.Index)
	assert.True(t, l.ContainsEntry(5))
	assert.False(t, l.ContainsEntry(11))
}

func TestLogRollsSegmentsWhenFull(t *testing.T) {
	// small cap forces a roll after a handful of entries
	l, err := OpenLog(t.TempDir(), LogConfig{MaxSegmentSize: 64})
	require.Nil(t, err)
	defer l.Close()

	appendN(t, l, 1, 20, 1)
	assert.True(t, len(l.segments) > 1)
	assert.Equal(t, uint64(20), l.LastIndex())

	for i := uint64(1); i <= 20; i++ {
		entry, err := l.Get(i)
		require.Nil(t, err)
		assert.Equal(t, i, entry.Index)
	}
}

func TestLogGetOutOfRange(t *testing.T) {
	l, err := OpenLog(t.TempDir(), LogConfig{MaxSegmentSize: 1 << 20})
	require.Nil(t, err)
	defer l.Close()

	appendN(t, l, 1, 5, 1)
	_, err = l.Get(100)
	assert.Equal(t, ErrOutOfRange, err)
}

func TestLogTruncateWithinActiveSegment(t *testing.T) {
	l, err := OpenLog(t.TempDir(), LogConfig{MaxSegmentSize: 1 << 20})
	require.Nil(t, err)
	defer l.Close()

	appendN(t, l, 1, 10, 1)
	require.Nil(t, l.Truncate(5))
	assert.Equal(t, uint64(5), l.LastIndex())

	_, err = l.Append(&Entry{Index: 6, Term: 2, Data: []byte("y")})
	require.Nil(t, err)
	entry, err := l.Get(6)
	require.Nil(t, err)
	assert.Equal(t, uint64(2), entry.Term)
}

func TestLogTruncateAcrossSegmentsDropsLaterOnes(t *testing.T) {
	l, err := OpenLog(t.TempDir(), LogConfig{MaxSegmentSize: 64})
	require.Nil(t, err)
	defer l.Close()

	appendN(t, l, 1, 30, 1)
	segmentCountBefore := len(l.segments)
	require.True(t, segmentCountBefore > 2)

	require.Nil(t, l.Truncate(3))
	assert.Equal(t, uint64(3), l.LastIndex())
	assert.Equal(t, 1, len(l.segments))

	_, err = l.Append(&Entry{Index: 4, Term: 2, Data: []byte("z")})
	require.Nil(t, err)
	assert.Equal(t, uint64(4), l.LastIndex())
}

func TestLogSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenLog(dir, LogConfig{MaxSegmentSize: 64})
	require.Nil(t, err)
	appendN(t, l, 1, 25, 1)
	require.Nil(t, l.Close())

	reopened, err := OpenLog(dir, LogConfig{MaxSegmentSize: 64})
	require.Nil(t, err)
	defer reopened.Close()

	assert.Equal(t, uint64(25), reopened.LastIndex())
	entry, err := reopened.Get(20)
	require.Nil(t, err)
	assert.Equal(t, uint64(20), entry.Index)

	_, err = reopened.Append(&Entry{Index: 26, Term: 1, Data: []byte("x")})
	require.Nil(t, err)
}
