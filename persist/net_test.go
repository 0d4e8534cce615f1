package persist

import (
	"testing"

	mapset "github.com/deckarep/golang-set"
	"github.com/stretchr/testify/assert"
)

func TestAddrEqual(t *testing.T) {
	addr1 := RandomMemoryServerAddr()
	addr2 := RandomMemoryServerAddr()
	assert.True(t, AddrEqual(addr1, addr1))
	assert.True(t, AddrEqual(addr2, addr2))
	assert.False(t, AddrEqual(addr1, addr2))
}

func TestAddrNotEqual(t *testing.T) {
	addr1 := RandomMemoryServerAddr()
	addr2 := RandomMemoryServerAddr()
	assert.False(t, AddrNotEqual(addr1, addr1))
	assert.False(t, AddrNotEqual(addr2, addr2))
	assert.True(t, AddrNotEqual(addr1, addr2))
}

func TestAddrsEqual(t *testing.T) {
	size := 10
	addrs1 := RandomMemoryServerAddrs(size)
	addrs2 := RandomMemoryServerAddrs(size)
	assert.True(t, AddrsEqual(addrs1, addrs1))
	assert.False(t, AddrsEqual(addrs1, addrs2))
	assert.True(t, AddrsNotEqual(addrs1, addrs2))
}

func testSetupServerAddrs(t *testing.T, gen func(size int) []ServerAddr) {
	size := 50
	addrs := gen(size)
	assert.Equal(t, size, len(addrs))
	m := mapset.NewThreadUnsafeSet()
	for _, addr := range addrs {
		m.Add(addr)
	}
	assert.Equal(t, size, m.Cardinality())
}

func TestSetupMemoryServerAddrs(t *testing.T) {
	testSetupServerAddrs(t, SetupMemoryServerAddrs)
}

func TestRandomMemoryServerAddrs(t *testing.T) {
	testSetupServerAddrs(t, RandomMemoryServerAddrs)
}

func TestRandomMemoryServerAddr(t *testing.T) {
	addr1 := RandomMemoryServerAddr()
	addr2 := RandomMemoryServerAddr()
	assert.True(t, AddrNotEqual(addr1, addr2))
}
