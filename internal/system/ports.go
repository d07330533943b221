package system

import (
	"fmt"
	"math/rand"
	"net"
)

// Port range the juicity listener is picked from.
const (
	PortRangeLow  = 41670
	PortRangeHigh = 46990
)

// IsPortInUse reports whether a local port is already bound for the given
// protocol ("tcp" or "udp"). A successful bind means the port is free.
func IsPortInUse(port int, proto string) bool {
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	switch proto {
	case "tcp":
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return true
		}
		l.Close()
		return false
	case "udp":
		c, err := net.ListenPacket("udp", addr)
		if err != nil {
			return true
		}
		c.Close()
		return false
	}
	return true
}

// FreeUDPPort picks a random unused UDP port from [low, high).
func FreeUDPPort(low, high int) (int, error) {
	if low <= 0 || high <= low {
		return 0, fmt.Errorf("invalid port range [%d, %d)", low, high)
	}

	ports := make([]int, 0, high-low)
	for p := low; p < high; p++ {
		ports = append(ports, p)
	}
	rand.Shuffle(len(ports), func(i, j int) {
		ports[i], ports[j] = ports[j], ports[i]
	})

	for _, p := range ports {
		if !IsPortInUse(p, "udp") {
			return p, nil
		}
	}
	return 0, fmt.Errorf("no free UDP port in [%d, %d)", low, high)
}
