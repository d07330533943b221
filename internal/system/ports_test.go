package system

import (
	"fmt"
	"net"
	"testing"
)

func TestIsPortInUse_TCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	if !IsPortInUse(port, "tcp") {
		t.Errorf("port %d should be reported in use", port)
	}
}

func TestIsPortInUse_UDP(t *testing.T) {
	c, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer c.Close()

	port := c.LocalAddr().(*net.UDPAddr).Port
	if !IsPortInUse(port, "udp") {
		t.Errorf("port %d should be reported in use", port)
	}
}

func TestIsPortInUse_UnknownProto(t *testing.T) {
	if !IsPortInUse(12345, "sctp") {
		t.Error("unknown protocol should be treated as in use")
	}
}

func TestFreeUDPPort(t *testing.T) {
	port, err := FreeUDPPort(PortRangeLow, PortRangeHigh)
	if err != nil {
		t.Fatalf("FreeUDPPort failed: %v", err)
	}
	if port < PortRangeLow || port >= PortRangeHigh {
		t.Errorf("port %d outside [%d, %d)", port, PortRangeLow, PortRangeHigh)
	}

	// The returned port must actually be bindable.
	c, err := net.ListenPacket("udp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Errorf("returned port %d is not bindable: %v", port, err)
	} else {
		c.Close()
	}
}

func TestFreeUDPPort_InvalidRange(t *testing.T) {
	if _, err := FreeUDPPort(5000, 5000); err == nil {
		t.Error("expected error for empty range")
	}
	if _, err := FreeUDPPort(-1, 10); err == nil {
		t.Error("expected error for negative bound")
	}
}
