package persist

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBinaryReadWrite(t *testing.T) {
	i := int32(100)
	p := make([]byte, 0, 100)
	buf := bytes.NewBuffer(p)
	err := binary.Write(buf, binary.BigEndian, &i)
	assert.Nil(t, err)
	v := int32(0)
	err = binary.Read(buf, binary.BigEndian, &v)
	assert.Nil(t, err)
	assert.Equal(t, i, v)
}

func TestUint64Roundtrip(t *testing.T) {
	values := []uint64{0, 1, 255, 256, 1 << 32, ^uint64(0)}
	for _, v := range values {
		assert.Equal(t, v, BytesToUint64(Uint64ToBytes(v)))
	}
}
