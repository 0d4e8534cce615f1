package persist

import (
	"os"

	"github.com/ugorji/go/codec"
)

var descriptorHandle codec.MsgpackHandle

// SegmentDescriptor is the sidecar metadata written alongside every
// segment's data and offset-index files: its id, the on-disk format
// version, the log index of its first entry, its configured size cap, and
// whether it has been sealed against further appends.
type SegmentDescriptor struct {
	ID             uint64
	Version        int
	Index          uint64
	MaxSegmentSize int64
	Locked         bool
}

// descriptorVersion is the current on-disk descriptor format.
const descriptorVersion = 1

// writeDescriptor msgpack-encodes desc to path, replacing any existing
// file atomically via a temp-file-plus-rename.
func writeDescriptor(path string, desc *SegmentDescriptor) error {
	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	enc := codec.NewEncoder(file, &descriptorHandle)
	if err := enc.Encode(desc); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// readDescriptor msgpack-decodes a SegmentDescriptor from path.
func readDescriptor(path string) (*SegmentDescriptor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	desc := &SegmentDescriptor{}
	dec := codec.NewDecoder(file, &descriptorHandle)
	if err := dec.Decode(desc); err != nil {
		return nil, err
	}
	return desc, nil
}
