package persist

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hhkbp3/raftlog/debug"
	"github.com/hhkbp3/raftlog/logging"
)

// entryPosition is the byte offset of an entry's body relative to the
// start of its record: 1 byte type, 1 byte mode, 8 bytes term.
const entryPosition = recordHeaderSize

var segmentLog = logging.GetLogger("persist.segment")

// Segment is one append-only file covering a contiguous range of log
// indices, together with the OffsetIndex that maps each local offset to
// its byte position and length within the file.
type Segment struct {
	dir    string
	desc   *SegmentDescriptor
	index  *OffsetIndex
	file   *os.File
	writer *bufio.Writer
	size   int64
	skip   uint64
	open   bool
}

func segmentDataPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d.log", id))
}

func segmentIndexPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d.index", id))
}

func segmentDescriptorPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d.descriptor", id))
}

// CreateSegment creates a brand-new, writable segment in dir with the
// given id, first log index, and size cap.
func CreateSegment(dir string, id, firstIndex uint64, maxSegmentSize int64) (*Segment, error) {
	desc := &SegmentDescriptor{
		ID:             id,
		Version:        descriptorVersion,
		Index:          firstIndex,
		MaxSegmentSize: maxSegmentSize,
		Locked:         false,
	}
	if err := writeDescriptor(segmentDescriptorPath(dir, id), desc); err != nil {
		return nil, fmt.Errorf("persist: create segment descriptor: %w", err)
	}
	return openSegment(dir, desc)
}

// OpenSegment reopens an existing segment in dir by id, recovering its
// descriptor and offset index from disk.
func OpenSegment(dir string, id uint64) (*Segment, error) {
	desc, err := readDescriptor(segmentDescriptorPath(dir, id))
	if err != nil {
		return nil, fmt.Errorf("persist: open segment descriptor: %w", err)
	}
	return openSegment(dir, desc)
}

func openSegment(dir string, desc *SegmentDescriptor) (*Segment, error) {
	idx, err := OpenOffsetIndex(segmentIndexPath(dir, desc.ID))
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(segmentDataPath(dir, desc.ID), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("persist: open segment file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		idx.Close()
		return nil, err
	}
	if _, err := file.Seek(0, os.SEEK_END); err != nil {
		file.Close()
		idx.Close()
		return nil, err
	}

	return &Segment{
		dir:    dir,
		desc:   desc,
		index:  idx,
		file:   file,
		writer: bufio.NewWriter(file),
		size:   info.Size(),
		open:   true,
	}, nil
}

// ID returns the segment's descriptor id.
func (s *Segment) ID() uint64 { return s.desc.ID }

// FirstIndex is descriptor.Index when the segment holds any entries or
// reserved skips, else 0.
func (s *Segment) FirstIndex() uint64 {
	if s.Length() == 0 {
		return 0
	}
	return s.desc.Index
}

// LastIndex is descriptor.Index + offsetIndex.LastOffset(), the highest
// index the segment covers.
func (s *Segment) LastIndex() uint64 {
	last := s.index.LastOffset()
	if last < 0 {
		return s.desc.Index - 1
	}
	return s.desc.Index + uint64(last)
}

// NextIndex is the index the next append(entry) call must supply.
func (s *Segment) NextIndex() uint64 {
	if s.index.LastOffset() < 0 {
		return s.desc.Index + s.skip
	}
	return s.LastIndex() + s.skip + 1
}

// Length is the logical entry count including reserved skips.
func (s *Segment) Length() uint64 {
	return uint64(s.index.Size()) + s.skip
}

// Size returns the segment's current byte footprint on disk.
func (s *Segment) Size() int64 {
	return s.size
}

// IsFull reports whether the segment has reached its configured cap.
func (s *Segment) IsFull() bool {
	return s.size >= s.desc.MaxSegmentSize
}

// Locked reports whether the segment has been sealed against further
// writes.
func (s *Segment) Locked() bool {
	return s.desc.Locked
}

// DescriptorIndex is the segment's declared first log index, stable even
// before any entry has actually been appended. Log uses it to route
// get/append/truncate to the right segment.
func (s *Segment) DescriptorIndex() uint64 {
	return s.desc.Index
}

// Unseal clears the locked flag, making a previously-sealed segment
// writable again. Used when Log.Truncate makes this segment the new tail.
func (s *Segment) Unseal() error {
	s.desc.Locked = false
	return writeDescriptor(segmentDescriptorPath(s.dir, s.desc.ID), s.desc)
}

// ContainsIndex reports whether index falls within [FirstIndex, LastIndex].
func (s *Segment) ContainsIndex(index uint64) bool {
	first := s.FirstIndex()
	if first == 0 {
		return false
	}
	return index >= first && index <= s.LastIndex()
}

// ContainsEntry reports whether index is within range and its body is
// actually present (not skipped/compacted away).
func (s *Segment) ContainsEntry(index uint64) bool {
	if !s.ContainsIndex(index) {
		return false
	}
	offset := int64(index - s.desc.Index)
	return s.index.Contains(offset)
}

// Append writes entry at the segment's current NextIndex. Returns
// ErrCommittedEntryModified if entry.Index is behind NextIndex, and
// ErrNonMonotonicIndex if it's ahead. No implicit flush.
func (s *Segment) Append(entry *Entry) (uint64, error) {
	if !s.open {
		return 0, ErrNotOpen
	}
	if s.desc.Locked {
		return 0, ErrSegmentLocked
	}
	next := s.NextIndex()
	if entry.Index < next {
		return 0, ErrCommittedEntryModified
	}
	if entry.Index > next {
		return 0, ErrNonMonotonicIndex
	}

	var header [recordHeaderSize]byte
	header[0] = byte(entry.Type)
	header[1] = byte(entry.Mode)
	binary.BigEndian.PutUint64(header[2:10], entry.Term)

	position := s.size
	if _, err := s.writer.Write(header[:]); err != nil {
		return 0, fmt.Errorf("persist: write record header: %w", err)
	}
	if _, err := s.writer.Write(entry.Data); err != nil {
		return 0, fmt.Errorf("persist: write record body: %w", err)
	}
	recordLen := int64(recordHeaderSize) + int64(len(entry.Data))
	s.size += recordLen

	offset := int64(entry.Index - s.desc.Index)
	if err := s.index.Index(offset, position, int32(recordLen)); err != nil {
		return 0, err
	}
	return entry.Index, nil
}

// absentEntry is a sentinel indicating a present-but-empty (skipped) index.
var absentEntry *Entry = nil

// Get returns the entry at index, or (nil, nil) when the index is within
// range but its body was skipped or compacted away.
func (s *Segment) Get(index uint64) (*Entry, error) {
	if !s.open {
		return nil, ErrNotOpen
	}
	if !s.ContainsIndex(index) {
		return nil, ErrOutOfRange
	}
	offset := int64(index - s.desc.Index)
	position := s.index.Position(offset)
	if position == -1 {
		return absentEntry, nil
	}
	length := s.index.Length(offset)

	expected := s.size - position
	if next := s.index.NextPosition(offset); next != -1 {
		expected = next - position
	}
	if int64(length) != expected {
		segmentLog.Error("length mismatch at index %d: index says %d, record boundary implies %d", index, length, expected)
		debug.LogCallStack(segmentLog)
		return nil, ErrCorruption
	}

	if err := s.writer.Flush(); err != nil {
		return nil, fmt.Errorf("persist: flush before read: %w", err)
	}
	buf := make([]byte, length)
	if _, err := s.file.ReadAt(buf, position); err != nil {
		return nil, fmt.Errorf("persist: read record at %d: %w", position, err)
	}
	if len(buf) < recordHeaderSize {
		segmentLog.Error("short record at index %d, position %d: got %d bytes, need %d", index, position, len(buf), recordHeaderSize)
		debug.LogCallStack(segmentLog)
		return nil, ErrCorruption
	}
	entryType := EntryType(buf[0])
	if entryType > EntrySnapshot {
		segmentLog.Error("unrecognized entry type %d at index %d, position %d", buf[0], index, position)
		debug.LogCallStack(segmentLog)
		return nil, ErrCorruption
	}
	mode := RetentionMode(buf[1])
	term := binary.BigEndian.Uint64(buf[2:10])
	data := buf[entryPosition:]

	return &Entry{
		Index: index,
		Term:  term,
		Type:  entryType,
		Mode:  mode,
		Data:  data,
	}, nil
}

// Skip advances the virtual next-index cursor by n without writing bodies,
// e.g. to represent entries dropped by earlier compaction.
func (s *Segment) Skip(n uint64) {
	s.skip += n
}

// Truncate drops all entries with index > index, reduces skip by however
// much of its reserved tail fell past the truncation point (saturating at
// zero), and flushes the offset index. Idempotent once already truncated
// at or past index.
func (s *Segment) Truncate(index uint64) error {
	if !s.open {
		return ErrNotOpen
	}
	last := s.LastIndex()
	logicalLast := last + s.skip
	if s.Length() == 0 {
		logicalLast = last
	}
	if index >= logicalLast {
		return nil
	}

	if index >= last {
		// only the reserved skip tail is trimmed; all written bodies survive
		s.skip = index - last
		return nil
	}

	offset := int64(index) - int64(s.desc.Index)
	if err := s.index.Truncate(offset); err != nil {
		return err
	}
	s.skip = 0

	if newLast := s.index.LastOffset(); newLast >= 0 {
		position := s.index.Position(newLast)
		length := s.index.Length(newLast)
		s.size = position + int64(length)
	} else {
		s.size = 0
	}
	// write out buffered appends first so the kept records below s.size
	// are on disk before the file is cut
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("persist: flush segment before truncate: %w", err)
	}
	if err := s.file.Truncate(s.size); err != nil {
		return fmt.Errorf("persist: truncate segment file: %w", err)
	}
	if _, err := s.file.Seek(s.size, os.SEEK_SET); err != nil {
		return err
	}
	s.writer = bufio.NewWriter(s.file)
	return nil
}

// Seal marks the segment locked, rejecting future appends.
func (s *Segment) Seal() error {
	s.desc.Locked = true
	return writeDescriptor(segmentDescriptorPath(s.dir, s.desc.ID), s.desc)
}

// Flush makes all accepted appends and offset-index updates durable.
func (s *Segment) Flush() error {
	if !s.open {
		return ErrNotOpen
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("persist: flush segment: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return err
	}
	return s.index.Flush()
}

// Close releases the segment's file handles.
func (s *Segment) Close() error {
	if !s.open {
		return nil
	}
	s.open = false
	if err := s.writer.Flush(); err != nil {
		s.file.Close()
		s.index.Close()
		return err
	}
	if err := s.file.Close(); err != nil {
		s.index.Close()
		return err
	}
	return s.index.Close()
}

// Delete removes the segment's data, index, and descriptor files. Only
// legal once closed.
func (s *Segment) Delete() error {
	if s.open {
		return fmt.Errorf("persist: delete segment %d: still open", s.desc.ID)
	}
	if err := s.index.Delete(); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(segmentDataPath(s.dir, s.desc.ID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(segmentDescriptorPath(s.dir, s.desc.ID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
