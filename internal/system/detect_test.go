package system

import "testing"

func TestInstallPackages_NoPackages(t *testing.T) {
	if err := InstallPackages("apt"); err != nil {
		t.Errorf("no packages should be a no-op, got %v", err)
	}
}

func TestInstallPackages_UnsupportedManager(t *testing.T) {
	if err := InstallPackages("brew", "ca-certificates"); err == nil {
		t.Error("expected error for unsupported package manager")
	}
}

func TestGetPackageManager(t *testing.T) {
	// Whatever this host has, the answer must be one of the supported
	// managers or empty.
	switch GetPackageManager() {
	case "", "apt", "dnf", "yum":
	default:
		t.Errorf("unexpected package manager %q", GetPackageManager())
	}
}
