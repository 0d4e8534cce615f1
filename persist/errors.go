package persist

import "errors"

// Error kinds surfaced by the segmented log.
var (
	// ErrNotOpen is returned for any operation attempted on a closed or
	// un-opened Segment or Log.
	ErrNotOpen = errors.New("persist: segment or log not open")

	// ErrCommittedEntryModified is returned when an append targets an index
	// below the segment's current nextIndex.
	ErrCommittedEntryModified = errors.New("persist: cannot modify committed entry")

	// ErrNonMonotonicIndex is returned when an append targets an index above
	// the segment's current nextIndex.
	ErrNonMonotonicIndex = errors.New("persist: attempt to append entry with non-monotonic index")

	// ErrOutOfRange is returned by Get when the index falls outside
	// [firstIndex, lastIndex] of the segment or log.
	ErrOutOfRange = errors.New("persist: index out of range")

	// ErrCorruption is returned when a record's type byte is unrecognized or
	// its recorded length does not match what was read.
	ErrCorruption = errors.New("persist: corrupt record")

	// ErrSegmentLocked is returned when append is attempted on a sealed
	// segment.
	ErrSegmentLocked = errors.New("persist: segment is sealed")

	// ErrSegmentFull names a full segment. Nothing in this package returns
	// it: Log.Append checks IsFull and rolls the tail segment itself.
	ErrSegmentFull = errors.New("persist: segment is full")
)
