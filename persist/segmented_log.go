package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// LogConfig controls how a Log rolls segments.
type LogConfig struct {
	// MaxSegmentSize is the byte cap passed to every segment created by
	// this log, including the initial one.
	MaxSegmentSize int64
}

// Log is an ordered collection of Segments covering disjoint, contiguous
// index ranges. Exactly one segment, the tail, accepts writes at any
// time; appending past its cap rolls a fresh one.
type Log struct {
	mu       sync.Mutex
	dir      string
	cfg      LogConfig
	segments []*Segment
	nextID   uint64
	open     bool
}

// OpenLog opens (or creates, if empty) the segmented log rooted at dir.
// It discovers existing segments by their descriptor sidecar files, opens
// them in ascending first-index order, and ensures the tail segment is
// writable, rolling a fresh one if the existing tail was left sealed.
func OpenLog(dir string, cfg LogConfig) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: create log dir: %w", err)
	}
	ids, err := discoverSegmentIDs(dir)
	if err != nil {
		return nil, err
	}

	segments := make([]*Segment, 0, len(ids))
	var maxID uint64
	for _, id := range ids {
		seg, err := OpenSegment(dir, id)
		if err != nil {
			for _, opened := range segments {
				opened.Close()
			}
			return nil, err
		}
		segments = append(segments, seg)
		if id > maxID {
			maxID = id
		}
	}

	l := &Log{
		dir:      dir,
		cfg:      cfg,
		segments: segments,
		nextID:   maxID + 1,
		open:     true,
	}

	if len(l.segments) == 0 {
		seg, err := CreateSegment(dir, l.nextID, 1, cfg.MaxSegmentSize)
		if err != nil {
			return nil, err
		}
		l.segments = append(l.segments, seg)
		l.nextID++
		return l, nil
	}

	if tail := l.segments[len(l.segments)-1]; tail.Locked() {
		seg, err := CreateSegment(dir, l.nextID, tail.NextIndex(), cfg.MaxSegmentSize)
		if err != nil {
			return nil, err
		}
		l.segments = append(l.segments, seg)
		l.nextID++
	}
	return l, nil
}

func discoverSegmentIDs(dir string) ([]uint64, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.descriptor"))
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(matches))
	for _, m := range matches {
		base := filepath.Base(m)
		base = strings.TrimSuffix(base, ".descriptor")
		id, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (l *Log) active() *Segment {
	return l.segments[len(l.segments)-1]
}

// segmentIndex returns the index within l.segments of the rightmost
// segment whose declared first index is <= index, via binary search over
// descriptor.Index. Returns -1 if index precedes every segment.
func (l *Log) segmentIndex(index uint64) int {
	n := len(l.segments)
	i := sort.Search(n, func(i int) bool {
		return l.segments[i].DescriptorIndex() > index
	})
	if i == 0 {
		return -1
	}
	return i - 1
}

// FirstIndex is the first segment's first index, or 0 if the log is
// entirely empty.
func (l *Log) FirstIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.segments[0].FirstIndex()
}

// LastIndex is the active (tail) segment's last index.
func (l *Log) LastIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active().LastIndex()
}

// ContainsEntry reports whether index has a recorded body anywhere in the
// log.
func (l *Log) ContainsEntry(index uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.segmentIndex(index)
	if i < 0 {
		return false
	}
	return l.segments[i].ContainsEntry(index)
}

// Append routes entry to the tail segment, rolling to a fresh segment
// first if the tail is full. Never splits a record across segments.
func (l *Log) Append(entry *Entry) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return 0, ErrNotOpen
	}
	if l.active().IsFull() {
		if err := l.roll(); err != nil {
			return 0, err
		}
	}
	return l.active().Append(entry)
}

func (l *Log) roll() error {
	tail := l.active()
	if err := tail.Flush(); err != nil {
		return err
	}
	if err := tail.Seal(); err != nil {
		return err
	}
	seg, err := CreateSegment(l.dir, l.nextID, tail.NextIndex(), l.cfg.MaxSegmentSize)
	if err != nil {
		return err
	}
	l.segments = append(l.segments, seg)
	l.nextID++
	return nil
}

// Get returns the entry at index, or (nil, nil) if its body was skipped,
// or ErrOutOfRange if index is outside the log's range entirely.
func (l *Log) Get(index uint64) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return nil, ErrNotOpen
	}
	i := l.segmentIndex(index)
	if i < 0 {
		return nil, ErrOutOfRange
	}
	return l.segments[i].Get(index)
}

// Truncate drops all entries with index > index: sealed segments strictly
// after the one containing index are deleted outright, and the segment
// containing index is truncated within itself and becomes the new
// writable tail.
func (l *Log) Truncate(index uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return ErrNotOpen
	}
	i := l.segmentIndex(index)
	if i < 0 {
		i = 0
	}

	for j := len(l.segments) - 1; j > i; j-- {
		seg := l.segments[j]
		if err := seg.Close(); err != nil {
			return err
		}
		if err := seg.Delete(); err != nil {
			return err
		}
	}
	l.segments = l.segments[:i+1]

	target := l.segments[i]
	if err := target.Truncate(index); err != nil {
		return err
	}
	if target.Locked() {
		if err := target.Unseal(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every segment's resources.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return nil
	}
	l.open = false
	var firstErr error
	for _, seg := range l.segments {
		if err := seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
