package persist

import (
	"fmt"
	"math/rand"

	"github.com/hhkbp3/raftlog/str"
)

// ServerAddr identifies a cluster member's network location. The log and
// replication engine never dial it themselves; it is carried opaquely
// through Config and handed to whatever Transport implementation a caller
// wires in.
type ServerAddr struct {
	Protocol string
	IP       string
	Port     uint16
}

// NilServerAddr is the zero value, used by callers to signal "no address".
var NilServerAddr = ServerAddr{}

func (a ServerAddr) Network() string {
	return a.Protocol
}

func (a ServerAddr) String() string {
	if len(a.Protocol) == 0 {
		return fmt.Sprintf("%s:%d", a.IP, a.Port)
	}
	return fmt.Sprintf("%s://%s:%d", a.Protocol, a.IP, a.Port)
}

// AddrEqual compares two addresses field by field.
func AddrEqual(a1, a2 ServerAddr) bool {
	return a1.Protocol == a2.Protocol && a1.IP == a2.IP && a1.Port == a2.Port
}

// AddrNotEqual is the negation of AddrEqual.
func AddrNotEqual(a1, a2 ServerAddr) bool {
	return !AddrEqual(a1, a2)
}

// AddrsEqual compares two address slices in order.
func AddrsEqual(a1, a2 []ServerAddr) bool {
	if len(a1) != len(a2) {
		return false
	}
	for i := range a1 {
		if AddrNotEqual(a1[i], a2[i]) {
			return false
		}
	}
	return true
}

// AddrsNotEqual is the negation of AddrsEqual.
func AddrsNotEqual(a1, a2 []ServerAddr) bool {
	return !AddrsEqual(a1, a2)
}

// SetupMemoryServerAddrs generates a deterministic block of in-process test
// addresses, one per index starting at port 6152.
func SetupMemoryServerAddrs(number int) []ServerAddr {
	addrs := make([]ServerAddr, 0, number)
	for i := 0; i < number; i++ {
		addrs = append(addrs, ServerAddr{
			Protocol: "memory",
			IP:       "127.0.0.1",
			Port:     uint16(6152 + i),
		})
	}
	return addrs
}

// RandomMemoryServerAddr returns a single randomized in-process test
// address.
func RandomMemoryServerAddr() ServerAddr {
	return ServerAddr{
		Protocol: "memory",
		IP:       str.RandomIP(),
		Port:     uint16(rand.Intn(65536)),
	}
}

// RandomMemoryServerAddrs returns a slice of randomized in-process test
// addresses.
func RandomMemoryServerAddrs(number int) []ServerAddr {
	addrs := make([]ServerAddr, 0, number)
	for i := 0; i < number; i++ {
		addrs = append(addrs, RandomMemoryServerAddr())
	}
	return addrs
}
