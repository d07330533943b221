// Package system provides host-level helpers: package manager detection,
// systemd presence, and local port probing.
package system

import (
	"fmt"
	"os/exec"
)

// HasSystemd reports whether systemctl is available on this host.
func HasSystemd() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}

// GetPackageManager returns the first known package manager found on PATH.
func GetPackageManager() string {
	for _, name := range []string{"apt", "dnf", "yum"} {
		if _, err := exec.LookPath(name); err == nil {
			return name
		}
	}
	return ""
}

// InstallPackages installs OS packages with the given package manager.
// Already-installed packages are a no-op for every supported manager.
func InstallPackages(manager string, packages ...string) error {
	if len(packages) == 0 {
		return nil
	}

	var args []string
	switch manager {
	case "apt":
		args = append([]string{"install", "-y"}, packages...)
	case "dnf", "yum":
		args = append([]string{"install", "-y"}, packages...)
	default:
		return fmt.Errorf("unsupported package manager: %q", manager)
	}

	cmd := exec.Command(manager, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s install failed: %s: %w", manager, string(output), err)
	}
	return nil
}
