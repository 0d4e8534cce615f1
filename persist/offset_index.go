package persist

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// offsetRecordSize is the fixed width of one (offset, position, length)
// tuple in the on-disk mirror file: offset:u32, position:u64, length:u32.
const offsetRecordSize = 4 + 8 + 4

type offsetEntry struct {
	position int64
	length   int32
	present  bool
}

// OffsetIndex is a dense-but-possibly-sparse map from a segment-local
// offset to the (byte position, byte length) of the serialized record at
// that offset within the segment's buffer. It mirrors every accepted write
// to an append-only on-disk file so the index survives a crash without
// replaying the segment itself.
type OffsetIndex struct {
	path    string
	file    *os.File
	writer  *bufio.Writer
	entries []offsetEntry
	last    int64
	open    bool
}

// OpenOffsetIndex opens (creating if necessary) the offset-index mirror
// file at path and replays it into memory.
func OpenOffsetIndex(path string) (*OffsetIndex, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("persist: open offset index %s: %w", path, err)
	}

	idx := &OffsetIndex{
		path:    path,
		file:    file,
		entries: make([]offsetEntry, 0, 1024),
		last:    -1,
		open:    true,
	}
	if err := idx.replay(); err != nil {
		file.Close()
		return nil, err
	}
	idx.writer = bufio.NewWriter(file)
	return idx, nil
}

func (idx *OffsetIndex) replay() error {
	buf := make([]byte, offsetRecordSize)
	for {
		if _, err := readFull(idx.file, buf); err != nil {
			if err == errEOF {
				break
			}
			return fmt.Errorf("persist: replay offset index %s: %w", idx.path, err)
		}
		offset := int64(binary.BigEndian.Uint32(buf[0:4]))
		position := int64(binary.BigEndian.Uint64(buf[4:12]))
		length := int32(binary.BigEndian.Uint32(buf[12:16]))
		idx.setEntry(offset, position, length)
	}
	return nil
}

func (idx *OffsetIndex) setEntry(offset, position int64, length int32) {
	for int64(len(idx.entries)) <= offset {
		idx.entries = append(idx.entries, offsetEntry{})
	}
	idx.entries[offset] = offsetEntry{position: position, length: length, present: true}
	if offset > idx.last {
		idx.last = offset
	}
}

// Position returns the byte position of the record at offset, or -1 if the
// offset was never written, or was later removed by truncation or
// deduplication. Offset-out-of-declared-range is the caller's
// responsibility to avoid; this only distinguishes present vs absent.
func (idx *OffsetIndex) Position(offset int64) int64 {
	if offset < 0 || offset >= int64(len(idx.entries)) {
		return -1
	}
	e := idx.entries[offset]
	if !e.present {
		return -1
	}
	return e.position
}

// Length returns the byte length of the record at offset. Valid only when
// Position(offset) != -1.
func (idx *OffsetIndex) Length(offset int64) int32 {
	if offset < 0 || offset >= int64(len(idx.entries)) {
		return 0
	}
	return idx.entries[offset].length
}

// Contains reports whether offset currently has a recorded position.
func (idx *OffsetIndex) Contains(offset int64) bool {
	return idx.Position(offset) != -1
}

// NextPosition returns the byte position of the first present entry at an
// offset greater than off, skipping over any offsets left absent by Skip,
// or -1 if off is the last live entry.
func (idx *OffsetIndex) NextPosition(off int64) int64 {
	for i := off + 1; i <= idx.last && i < int64(len(idx.entries)); i++ {
		if idx.entries[i].present {
			return idx.entries[i].position
		}
	}
	return -1
}

// LastOffset returns the highest offset ever indexed, or -1 if empty.
func (idx *OffsetIndex) LastOffset() int64 {
	return idx.last
}

// Size returns the number of live (non-removed) entries.
func (idx *OffsetIndex) Size() int {
	count := 0
	for _, e := range idx.entries {
		if e.present {
			count++
		}
	}
	return count
}

// Index appends a new (offset, position, length) tuple. Offsets must be
// strictly increasing across calls; callers (Segment) are responsible for
// enforcing that. No implicit flush.
func (idx *OffsetIndex) Index(offset, position int64, length int32) error {
	if !idx.open {
		return ErrNotOpen
	}
	idx.setEntry(offset, position, length)

	var buf [offsetRecordSize]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(offset))
	binary.BigEndian.PutUint64(buf[4:12], uint64(position))
	binary.BigEndian.PutUint32(buf[12:16], uint32(length))
	if _, err := idx.writer.Write(buf[:]); err != nil {
		return fmt.Errorf("persist: write offset index entry: %w", err)
	}
	return nil
}

// Truncate drops all entries with offset > off. Idempotent. Rewrites the
// on-disk mirror's tail to match.
func (idx *OffsetIndex) Truncate(off int64) error {
	if !idx.open {
		return ErrNotOpen
	}
	if off >= idx.last {
		return nil
	}
	if off < -1 {
		off = -1
	}
	for i := off + 1; i <= idx.last && i < int64(len(idx.entries)); i++ {
		idx.entries[i] = offsetEntry{}
	}
	idx.last = off
	for idx.last >= 0 && idx.last < int64(len(idx.entries)) && !idx.entries[idx.last].present {
		idx.last--
	}

	if err := idx.writer.Flush(); err != nil {
		return fmt.Errorf("persist: flush offset index before truncate: %w", err)
	}
	newSize := int64(idx.Size()) * offsetRecordSize
	if err := idx.rewriteFile(); err != nil {
		return err
	}
	_ = newSize
	return nil
}

// rewriteFile rewrites the mirror file from the current in-memory entries,
// in offset order. Used by Truncate since the on-disk format has no
// tombstone record for a removed offset.
func (idx *OffsetIndex) rewriteFile() error {
	if _, err := idx.file.Seek(0, 0); err != nil {
		return fmt.Errorf("persist: seek offset index: %w", err)
	}
	if err := idx.file.Truncate(0); err != nil {
		return fmt.Errorf("persist: truncate offset index file: %w", err)
	}
	idx.writer = bufio.NewWriter(idx.file)
	for offset, e := range idx.entries {
		if !e.present {
			continue
		}
		var buf [offsetRecordSize]byte
		binary.BigEndian.PutUint32(buf[0:4], uint32(offset))
		binary.BigEndian.PutUint64(buf[4:12], uint64(e.position))
		binary.BigEndian.PutUint32(buf[12:16], uint32(e.length))
		if _, err := idx.writer.Write(buf[:]); err != nil {
			return fmt.Errorf("persist: rewrite offset index: %w", err)
		}
	}
	return idx.writer.Flush()
}

// Flush makes all accepted writes durable through the OS page cache to
// stable storage.
func (idx *OffsetIndex) Flush() error {
	if !idx.open {
		return ErrNotOpen
	}
	if err := idx.writer.Flush(); err != nil {
		return fmt.Errorf("persist: flush offset index: %w", err)
	}
	return idx.file.Sync()
}

// Close releases the underlying file handle.
func (idx *OffsetIndex) Close() error {
	if !idx.open {
		return nil
	}
	idx.open = false
	if idx.writer != nil {
		_ = idx.writer.Flush()
	}
	return idx.file.Close()
}

// Delete removes the on-disk mirror file. Only legal once closed.
func (idx *OffsetIndex) Delete() error {
	if idx.open {
		return fmt.Errorf("persist: delete offset index %s: still open", idx.path)
	}
	return os.Remove(idx.path)
}

var errEOF = fmt.Errorf("persist: eof")

// readFull reads len(buf) bytes or returns errEOF if the file ends exactly
// at a record boundary (zero bytes read).
func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if total == 0 {
				return 0, errEOF
			}
			return total, fmt.Errorf("persist: truncated offset index record: %w", err)
		}
	}
	return total, nil
}
