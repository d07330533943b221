// Package installer sequences the install and uninstall flows and owns
// their state machine:
//
//	absent -> installing -> active -> removing -> absent
//
// Every step writes the Installation Record on success; any install step
// failure rolls back the artifacts of completed steps in reverse order.
package installer

import (
	"context"

	"github.com/net2share/jtm/internal/cert"
	"github.com/net2share/jtm/internal/deps"
	"github.com/net2share/jtm/internal/domain"
	"github.com/net2share/jtm/internal/proxyconf"
	"github.com/net2share/jtm/internal/record"
	"github.com/net2share/jtm/internal/service"
	"github.com/net2share/jtm/internal/system"
)

// domainValidator proves a domain points at this host.
type domainValidator interface {
	Validate(ctx context.Context, domain string) (string, error)
}

// dependencyInstaller idempotently provisions host prerequisites.
type dependencyInstaller interface {
	Ensure(progressFn func(downloaded, total int64)) error
}

// certManager acquires and revokes TLS certificates.
type certManager interface {
	Acquire(ctx context.Context, domain string) (*cert.Info, error)
	Revoke(id string) error
}

// serviceConfigurator writes server config and manages the systemd unit.
type serviceConfigurator interface {
	Configure(p proxyconf.Params) (string, error)
	Deconfigure(serviceName string) error
}

// Installer wires the deployment steps together.
type Installer struct {
	records  *record.Store
	domains  domainValidator
	deps     dependencyInstaller
	certs    certManager
	proxy    serviceConfigurator
	freePort func() (int, error)
}

// Option configures an Installer.
type Option func(*Installer)

// WithStore overrides the record store.
func WithStore(s *record.Store) Option {
	return func(i *Installer) { i.records = s }
}

// WithValidator overrides the domain validator.
func WithValidator(v domainValidator) Option {
	return func(i *Installer) { i.domains = v }
}

// WithDependencies overrides the dependency installer.
func WithDependencies(d dependencyInstaller) Option {
	return func(i *Installer) { i.deps = d }
}

// WithCertManager overrides the certificate manager.
func WithCertManager(c certManager) Option {
	return func(i *Installer) { i.certs = c }
}

// WithConfigurator overrides the service configurator.
func WithConfigurator(c serviceConfigurator) Option {
	return func(i *Installer) { i.proxy = c }
}

// WithFreePort overrides listen port selection.
func WithFreePort(fn func() (int, error)) Option {
	return func(i *Installer) { i.freePort = fn }
}

// New returns an Installer wired to the host collaborators.
func New(opts ...Option) *Installer {
	i := &Installer{
		records: record.NewStore(),
		domains: domain.NewValidator(),
		deps:    deps.NewInstaller(),
		certs:   cert.NewManager(),
		proxy:   proxyconf.NewConfigurator(service.DefaultManager()),
		freePort: func() (int, error) {
			return system.FreeUDPPort(system.PortRangeLow, system.PortRangeHigh)
		},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Record loads the current Installation Record, nil when absent.
func (i *Installer) Record() (*record.Record, error) {
	return i.records.Load()
}
