// Package proxyconf renders the juicity-server runtime configuration and
// registers the service with systemd.
package proxyconf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/net2share/jtm/internal/log"
	"github.com/net2share/jtm/internal/record"
	"github.com/net2share/jtm/internal/service"
)

const (
	// ServiceName is the systemd unit name for the deployed server.
	ServiceName = "juicity-server"

	// ConfigDir holds the server's runtime configuration.
	ConfigDir = "/etc/juicity"

	// ConfigFile is the server config filename inside ConfigDir.
	ConfigFile = "server.json"

	// BinaryPath is where the dependency installer places the server.
	BinaryPath = "/usr/local/bin/juicity-server"

	documentationURL = "https://github.com/juicity/juicity"
)

var (
	// ErrConfiguration means the server configuration could not be written
	// or registered.
	ErrConfiguration = errors.New("failed to configure service")

	// ErrServiceStart means the service was registered but did not start.
	ErrServiceStart = errors.New("failed to start service")
)

// ServerConfig is the juicity-server configuration file schema.
type ServerConfig struct {
	Listen            string            `json:"listen"`
	Certificate       string            `json:"certificate"`
	PrivateKey        string            `json:"private_key"`
	Users             map[string]string `json:"users"`
	CongestionControl string            `json:"congestion_control"`
	LogLevel          string            `json:"log_level"`
}

// Params carries everything needed to configure the server.
type Params struct {
	Domain      string
	CertPath    string
	KeyPath     string
	ListenPort  int
	Credentials record.Credentials
}

// Configurator writes the server config and manages its systemd unit.
type Configurator struct {
	configDir  string
	binaryPath string
	systemd    service.Manager
}

// NewConfigurator returns a Configurator for the host paths and systemd.
func NewConfigurator(systemd service.Manager) *Configurator {
	return &Configurator{
		configDir:  ConfigDir,
		binaryPath: BinaryPath,
		systemd:    systemd,
	}
}

// NewConfiguratorWithDir returns a Configurator writing config to a custom
// directory, for tests.
func NewConfiguratorWithDir(dir string, systemd service.Manager) *Configurator {
	return &Configurator{
		configDir:  dir,
		binaryPath: BinaryPath,
		systemd:    systemd,
	}
}

// ConfigPath returns the server config file path.
func (c *Configurator) ConfigPath() string {
	return filepath.Join(c.configDir, ConfigFile)
}

// Render builds the server config from deployment parameters.
func Render(p Params) *ServerConfig {
	return &ServerConfig{
		Listen:            fmt.Sprintf(":%d", p.ListenPort),
		Certificate:       p.CertPath,
		PrivateKey:        p.KeyPath,
		Users:             map[string]string{p.Credentials.UUID: p.Credentials.Password},
		CongestionControl: "bbr",
		LogLevel:          "info",
	}
}

// Configure writes the server configuration, registers the systemd unit,
// and starts the service. On failure every artifact written so far is
// removed, so no partial config survives for a later service restart.
func (c *Configurator) Configure(p Params) (string, error) {
	cfg := Render(p)

	if err := os.MkdirAll(c.configDir, 0750); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := os.WriteFile(c.ConfigPath(), data, 0640); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	svcCfg := service.ServiceConfig{
		Description:      "juicity-server Service",
		Documentation:    documentationURL,
		User:             "root",
		ExecStart:        fmt.Sprintf("%s run -c %s", c.binaryPath, c.ConfigPath()),
		WorkingDirectory: c.configDir,
	}
	if err := c.systemd.CreateService(ServiceName, svcCfg); err != nil {
		os.Remove(c.ConfigPath())
		return "", fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if err := c.systemd.EnableService(ServiceName); err != nil {
		log.Warn("failed to enable service at boot: %v", err)
	}

	if err := c.systemd.StartService(ServiceName); err != nil {
		c.systemd.RemoveService(ServiceName)
		os.Remove(c.ConfigPath())
		return "", fmt.Errorf("%w: %v", ErrServiceStart, err)
	}

	return ServiceName, nil
}

// Deconfigure stops and unregisters the service and removes its config
// file. An already-absent service is the desired end state, so "not found"
// conditions are logged and ignored.
func (c *Configurator) Deconfigure(serviceName string) error {
	if serviceName == "" {
		serviceName = ServiceName
	}

	if c.systemd.IsServiceInstalled(serviceName) {
		if err := c.systemd.RemoveService(serviceName); err != nil {
			return fmt.Errorf("failed to remove service %s: %w", serviceName, err)
		}
	} else {
		log.Debug("service %s not installed, nothing to remove", serviceName)
	}

	if err := os.Remove(c.ConfigPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove server config: %w", err)
	}
	return nil
}

// LoadServerConfig reads the written server configuration back, for the
// status display and round-trip checks.
func (c *Configurator) LoadServerConfig() (*ServerConfig, error) {
	data, err := os.ReadFile(c.ConfigPath())
	if err != nil {
		return nil, err
	}
	var cfg ServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}
	return &cfg, nil
}
