package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// UnitDir is where unit files are installed.
const UnitDir = "/etc/systemd/system"

// SystemdManager is the real Manager backed by systemctl and journalctl.
type SystemdManager struct {
	unitDir string
}

// NewSystemdManager returns a Manager for the host's systemd.
func NewSystemdManager() *SystemdManager {
	return &SystemdManager{unitDir: UnitDir}
}

// NewSystemdManagerWithDir returns a Manager writing unit files to a custom
// directory, for tests.
func NewSystemdManagerWithDir(dir string) *SystemdManager {
	return &SystemdManager{unitDir: dir}
}

// UnitPath returns the unit file path for a service name.
func (m *SystemdManager) UnitPath(name string) string {
	return filepath.Join(m.unitDir, name+".service")
}

// RenderUnit renders the unit file contents for a service.
func RenderUnit(cfg ServiceConfig) string {
	user := cfg.User
	if user == "" {
		user = "root"
	}

	var b strings.Builder
	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=%s\n", cfg.Description)
	if cfg.Documentation != "" {
		fmt.Fprintf(&b, "Documentation=%s\n", cfg.Documentation)
	}
	b.WriteString("After=network.target nss-lookup.target\n\n")

	b.WriteString("[Service]\n")
	b.WriteString("Type=simple\n")
	fmt.Fprintf(&b, "User=%s\n", user)
	fmt.Fprintf(&b, "ExecStart=%s\n", cfg.ExecStart)
	b.WriteString("Restart=on-failure\n")
	b.WriteString("LimitNPROC=512\n")
	b.WriteString("LimitNOFILE=infinity\n")
	if cfg.WorkingDirectory != "" {
		fmt.Fprintf(&b, "WorkingDirectory=%s\n", cfg.WorkingDirectory)
	}
	b.WriteString("\n[Install]\nWantedBy=multi-user.target\n")
	return b.String()
}

// CreateService implements Manager.
func (m *SystemdManager) CreateService(name string, cfg ServiceConfig) error {
	cfg.Name = name
	if err := os.WriteFile(m.UnitPath(name), []byte(RenderUnit(cfg)), 0644); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}
	return m.DaemonReload()
}

// RemoveService implements Manager.
func (m *SystemdManager) RemoveService(name string) error {
	// Best-effort stop/disable; the unit may already be gone.
	exec.Command("systemctl", "stop", name).Run()
	exec.Command("systemctl", "disable", name).Run()

	if err := os.Remove(m.UnitPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove service file: %w", err)
	}
	return m.DaemonReload()
}

// StartService implements Manager.
func (m *SystemdManager) StartService(name string) error {
	return runSystemctl("start", name)
}

// StopService implements Manager.
func (m *SystemdManager) StopService(name string) error {
	return runSystemctl("stop", name)
}

// RestartService implements Manager.
func (m *SystemdManager) RestartService(name string) error {
	return runSystemctl("restart", name)
}

// EnableService implements Manager.
func (m *SystemdManager) EnableService(name string) error {
	return runSystemctl("enable", name)
}

// DisableService implements Manager.
func (m *SystemdManager) DisableService(name string) error {
	return runSystemctl("disable", name)
}

// IsServiceActive implements Manager.
func (m *SystemdManager) IsServiceActive(name string) bool {
	output, _ := exec.Command("systemctl", "is-active", name).Output()
	return strings.TrimSpace(string(output)) == "active"
}

// IsServiceEnabled implements Manager.
func (m *SystemdManager) IsServiceEnabled(name string) bool {
	output, _ := exec.Command("systemctl", "is-enabled", name).Output()
	return strings.TrimSpace(string(output)) == "enabled"
}

// IsServiceInstalled implements Manager.
func (m *SystemdManager) IsServiceInstalled(name string) bool {
	_, err := os.Stat(m.UnitPath(name))
	return err == nil
}

// GetServiceStatus implements Manager.
func (m *SystemdManager) GetServiceStatus(name string) (string, error) {
	output, err := exec.Command("systemctl", "status", name, "--no-pager", "-l").CombinedOutput()
	return string(output), err
}

// GetServiceLogs implements Manager.
func (m *SystemdManager) GetServiceLogs(name string, lines int) (string, error) {
	output, err := exec.Command("journalctl", "-u", name, "-n", fmt.Sprintf("%d", lines), "--no-pager").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to get logs: %w", err)
	}
	return string(output), nil
}

// DaemonReload implements Manager.
func (m *SystemdManager) DaemonReload() error {
	return runSystemctl("daemon-reload")
}

func runSystemctl(args ...string) error {
	cmd := exec.Command("systemctl", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl %s failed: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(output)), err)
	}
	return nil
}

var _ Manager = (*SystemdManager)(nil)
