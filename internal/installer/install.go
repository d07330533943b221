package installer

import (
	"context"
	"fmt"
	"time"

	"github.com/net2share/go-corelib/tui"

	"github.com/net2share/jtm/internal/log"
	"github.com/net2share/jtm/internal/proxyconf"
	"github.com/net2share/jtm/internal/record"
)

const installSteps = 5

// Install provisions the full deployment for a domain. On success the
// Installation Record is active; on failure every artifact created by a
// completed step (dependencies excepted) is rolled back and the record is
// deleted, so a retried install starts clean.
func (i *Installer) Install(ctx context.Context, domainName string) (*record.Record, error) {
	existing, err := i.records.Load()
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// A persisted installing record means a previous attempt crashed
		// mid-flight; its certificate reference and service name tell us
		// which artifacts it got to. Clean those up and start fresh.
		if existing.Status != record.StatusInstalling {
			return nil, AlreadyInstalledError(existing.Domain)
		}
		tui.PrintWarning("Found an interrupted installation, cleaning it up first")
		i.rollback(existing, existing.CertificateID != "", existing.ServiceName != "")
	}

	// Step 1: prove the domain points at this host. Read-only, so a
	// failure here leaves no record behind.
	step := 1
	tui.PrintStep(step, installSteps, "Validating domain...")
	serverIP, err := i.domains.Validate(ctx, domainName)
	if err != nil {
		return nil, err
	}
	tui.PrintStatus(fmt.Sprintf("%s resolves to this host (%s)", domainName, serverIP))

	creds, err := record.GenerateCredentials()
	if err != nil {
		return nil, err
	}

	port, err := i.freePort()
	if err != nil {
		return nil, fmt.Errorf("failed to pick a listen port: %w", err)
	}
	log.Debug("picked listen port %d", port)

	rec := &record.Record{
		Domain:      domainName,
		Credentials: creds,
		ListenPort:  port,
		ServerIP:    serverIP,
		Status:      record.StatusInstalling,
		InstalledAt: time.Now().UTC(),
	}
	if err := i.records.Save(rec); err != nil {
		return nil, err
	}

	// Step 2: dependencies. Shared and idempotent, so they are never
	// rolled back.
	step++
	tui.PrintStep(step, installSteps, "Installing dependencies...")
	if err := i.deps.Ensure(tui.PrintProgress); err != nil {
		tui.ClearLine()
		i.rollback(rec, false, false)
		return nil, err
	}
	tui.ClearLine()
	tui.PrintStatus("Dependencies installed")

	// Step 3: certificate.
	step++
	tui.PrintStep(step, installSteps, "Requesting TLS certificate...")
	certInfo, err := i.certs.Acquire(ctx, domainName)
	if err != nil {
		i.rollback(rec, false, false)
		return nil, err
	}
	rec.CertificateID = certInfo.ID
	if err := i.records.Save(rec); err != nil {
		i.rollback(rec, true, false)
		return nil, err
	}
	tui.PrintStatus("Certificate issued: " + certInfo.Fingerprint[:16])

	// Step 4: server configuration and service start.
	step++
	tui.PrintStep(step, installSteps, "Configuring and starting service...")
	serviceName, err := i.proxy.Configure(proxyconf.Params{
		Domain:      domainName,
		CertPath:    certInfo.CertPath,
		KeyPath:     certInfo.KeyPath,
		ListenPort:  port,
		Credentials: creds,
	})
	if err != nil {
		i.rollback(rec, true, false)
		return nil, err
	}
	rec.ServiceName = serviceName
	if err := i.records.Save(rec); err != nil {
		i.rollback(rec, true, true)
		return nil, err
	}
	tui.PrintStatus("Service started: " + serviceName)

	// Step 5: promote the record.
	step++
	tui.PrintStep(step, installSteps, "Finalizing installation...")
	rec.Status = record.StatusActive
	if err := i.records.Save(rec); err != nil {
		i.rollback(rec, true, true)
		return nil, err
	}
	tui.PrintStatus("Installation record written")

	return rec, nil
}

// rollback reverses completed install steps in reverse order: service
// config first, then certificate, then the record itself. Dependency
// files are left in place.
func (i *Installer) rollback(rec *record.Record, certIssued, serviceConfigured bool) {
	log.Warn("install failed, rolling back partial artifacts for %s", rec.Domain)

	if serviceConfigured {
		if err := i.proxy.Deconfigure(rec.ServiceName); err != nil {
			log.Error("rollback: failed to deconfigure service: %v", err)
		}
	}

	if certIssued && rec.CertificateID != "" {
		if err := i.certs.Revoke(rec.CertificateID); err != nil {
			log.Warn("rollback: certificate revocation failed: %v", err)
		}
	}

	if err := i.records.Delete(); err != nil {
		log.Error("rollback: failed to delete installation record: %v", err)
	}
}
