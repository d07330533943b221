// Package service manages systemd units for the juicity deployment.
package service

// ServiceStatus represents the current status of a systemd service.
type ServiceStatus string

const (
	StatusRunning  ServiceStatus = "running"
	StatusStopped  ServiceStatus = "stopped"
	StatusFailed   ServiceStatus = "failed"
	StatusNotFound ServiceStatus = "not-found"
)

// ServiceConfig describes a unit to be rendered and installed.
type ServiceConfig struct {
	Name             string
	Description      string
	Documentation    string
	User             string
	ExecStart        string
	WorkingDirectory string
}

// Manager defines the interface for managing systemd services. It exists so
// the install/uninstall flows can be tested against a mock.
type Manager interface {
	// CreateService writes the unit file and reloads the daemon.
	CreateService(name string, cfg ServiceConfig) error

	// RemoveService stops, disables, and removes a service. Missing
	// services are not an error.
	RemoveService(name string) error

	// StartService starts a service.
	StartService(name string) error

	// StopService stops a service.
	StopService(name string) error

	// RestartService restarts a service.
	RestartService(name string) error

	// EnableService enables a service to start on boot.
	EnableService(name string) error

	// DisableService disables a service from starting on boot.
	DisableService(name string) error

	// IsServiceActive returns true if the service is currently running.
	IsServiceActive(name string) bool

	// IsServiceEnabled returns true if the service starts on boot.
	IsServiceEnabled(name string) bool

	// IsServiceInstalled returns true if the unit file exists.
	IsServiceInstalled(name string) bool

	// GetServiceStatus returns systemctl status output for diagnostics.
	GetServiceStatus(name string) (string, error)

	// GetServiceLogs returns recent journalctl output.
	GetServiceLogs(name string, lines int) (string, error)

	// DaemonReload reloads systemd to pick up unit file changes.
	DaemonReload() error
}

var defaultManager Manager

// DefaultManager returns the process-wide Manager. Real systemd in
// production; tests override it.
func DefaultManager() Manager {
	if defaultManager == nil {
		defaultManager = NewSystemdManager()
	}
	return defaultManager
}

// SetDefaultManager overrides the default manager (for testing).
func SetDefaultManager(m Manager) {
	defaultManager = m
}
