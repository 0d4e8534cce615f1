package persist

import (
	"encoding/binary"
	"time"
)

// Timestamp formats the current time for a log line.
func Timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

// Uint64ToBytes encodes i as 8 big-endian bytes.
func Uint64ToBytes(i uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, i)
	return buf
}

// BytesToUint64 decodes 8 big-endian bytes back into a uint64.
func BytesToUint64(buf []byte) uint64 {
	return binary.BigEndian.Uint64(buf)
}
