package cert

import (
	"errors"
	"os/exec"

	"github.com/net2share/jtm/internal/log"
	"github.com/net2share/jtm/internal/system"
)

// errHTTPPortBusy means another process holds port 80 and could not be
// stopped, so the HTTP-01 challenge cannot run.
var errHTTPPortBusy = errors.New("port 80 is in use by a process other than nginx")

// PortGuard frees port 80 ahead of the HTTP-01 challenge and restores
// whatever was stopped afterwards.
type PortGuard interface {
	Free() error
	Restore()
}

// NopPortGuard does nothing, for tests and non-HTTP-01 setups.
type NopPortGuard struct{}

func (NopPortGuard) Free() error { return nil }
func (NopPortGuard) Restore()    {}

// nginxPortGuard stops nginx when it holds port 80 and restarts it after
// the challenge, mirroring certbot's standalone pre/post hooks.
type nginxPortGuard struct {
	stoppedNginx bool
}

func (g *nginxPortGuard) Free() error {
	if !system.IsPortInUse(80, "tcp") {
		return nil
	}

	log.Info("port 80 is busy, stopping nginx for the ACME challenge")
	if err := exec.Command("systemctl", "stop", "nginx").Run(); err == nil {
		g.stoppedNginx = true
	}

	if system.IsPortInUse(80, "tcp") {
		return errHTTPPortBusy
	}
	return nil
}

func (g *nginxPortGuard) Restore() {
	if !g.stoppedNginx {
		return
	}
	g.stoppedNginx = false
	if err := exec.Command("systemctl", "start", "nginx").Run(); err != nil {
		log.Warn("failed to restart nginx after ACME challenge: %v", err)
	}
}
