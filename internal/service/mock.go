package service

import (
	"fmt"
	"sync"
	"time"
)

// MockManager is an in-memory Manager implementation for tests.
type MockManager struct {
	mu       sync.RWMutex
	services map[string]*mockServiceState

	// FailStart, when set, makes StartService fail for the named service.
	FailStart map[string]error
}

type mockServiceState struct {
	config    ServiceConfig
	status    ServiceStatus
	enabled   bool
	logs      []string
	createdAt time.Time
}

// NewMockManager creates a new MockManager.
func NewMockManager() *MockManager {
	return &MockManager{
		services:  make(map[string]*mockServiceState),
		FailStart: make(map[string]error),
	}
}

// CreateService implements Manager.
func (m *MockManager) CreateService(name string, cfg ServiceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg.Name = name
	m.services[name] = &mockServiceState{
		config:    cfg,
		status:    StatusStopped,
		createdAt: time.Now(),
	}
	m.addLog(name, "Service created")
	return nil
}

// RemoveService implements Manager.
func (m *MockManager) RemoveService(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services, name)
	return nil
}

// StartService implements Manager.
func (m *MockManager) StartService(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.FailStart[name]; ok {
		return err
	}
	svc, exists := m.services[name]
	if !exists {
		return fmt.Errorf("service %s not found", name)
	}
	svc.status = StatusRunning
	m.addLog(name, "Service started")
	return nil
}

// StopService implements Manager.
func (m *MockManager) StopService(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	svc, exists := m.services[name]
	if !exists {
		return fmt.Errorf("service %s not found", name)
	}
	svc.status = StatusStopped
	m.addLog(name, "Service stopped")
	return nil
}

// RestartService implements Manager.
func (m *MockManager) RestartService(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	svc, exists := m.services[name]
	if !exists {
		return fmt.Errorf("service %s not found", name)
	}
	svc.status = StatusRunning
	m.addLog(name, "Service restarted")
	return nil
}

// EnableService implements Manager.
func (m *MockManager) EnableService(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	svc, exists := m.services[name]
	if !exists {
		return fmt.Errorf("service %s not found", name)
	}
	svc.enabled = true
	return nil
}

// DisableService implements Manager.
func (m *MockManager) DisableService(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	svc, exists := m.services[name]
	if !exists {
		return fmt.Errorf("service %s not found", name)
	}
	svc.enabled = false
	return nil
}

// IsServiceActive implements Manager.
func (m *MockManager) IsServiceActive(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	svc, exists := m.services[name]
	return exists && svc.status == StatusRunning
}

// IsServiceEnabled implements Manager.
func (m *MockManager) IsServiceEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	svc, exists := m.services[name]
	return exists && svc.enabled
}

// IsServiceInstalled implements Manager.
func (m *MockManager) IsServiceInstalled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.services[name]
	return exists
}

// GetServiceStatus implements Manager.
func (m *MockManager) GetServiceStatus(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	svc, exists := m.services[name]
	if !exists {
		return "", fmt.Errorf("service %s not found", name)
	}

	status := fmt.Sprintf("● %s.service - %s\n", name, svc.config.Description)
	status += "   Loaded: loaded\n"
	status += fmt.Sprintf("   Active: %s\n", svc.status)
	status += fmt.Sprintf("   Enabled: %v\n", svc.enabled)
	return status, nil
}

// GetServiceLogs implements Manager.
func (m *MockManager) GetServiceLogs(name string, lines int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	svc, exists := m.services[name]
	if !exists {
		return "", fmt.Errorf("service %s not found", name)
	}

	logs := svc.logs
	if len(logs) > lines {
		logs = logs[len(logs)-lines:]
	}
	out := ""
	for _, l := range logs {
		out += l + "\n"
	}
	return out, nil
}

// DaemonReload implements Manager.
func (m *MockManager) DaemonReload() error {
	return nil
}

func (m *MockManager) addLog(name, message string) {
	svc, exists := m.services[name]
	if !exists {
		return
	}
	svc.logs = append(svc.logs, fmt.Sprintf("%s %s: %s", time.Now().Format(time.RFC3339), name, message))
}

// Services returns all registered service names (for test assertions).
func (m *MockManager) Services() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	return names
}

// ServiceConfigFor returns the config for a service (for test assertions).
func (m *MockManager) ServiceConfigFor(name string) (ServiceConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	svc, exists := m.services[name]
	if !exists {
		return ServiceConfig{}, false
	}
	return svc.config, true
}

var _ Manager = (*MockManager)(nil)
