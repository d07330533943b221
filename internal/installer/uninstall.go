package installer

import (
	"context"
	"errors"
	"fmt"

	"github.com/net2share/go-corelib/tui"

	"github.com/net2share/jtm/internal/domain"
	"github.com/net2share/jtm/internal/log"
	"github.com/net2share/jtm/internal/record"
)

const removeSteps = 3

// Remove tears down the deployment bound to domainName. The domain must
// exactly match the Installation Record; a mismatch refuses the operation
// and leaves everything untouched.
//
// A hard failure mid-removal leaves the record in the removing state so a
// retried `jtm remove` resumes instead of re-running install steps.
// Certificate revocation failure is downgraded to a warning.
func (i *Installer) Remove(ctx context.Context, domainName string) error {
	rec, err := i.records.Load()
	if err != nil {
		return err
	}
	if rec == nil {
		return NoInstallationError()
	}

	// The stored domain is the primary ownership proof; DNS may have
	// changed or expired since install.
	if domainName != rec.Domain {
		return DomainMismatchRemovalError(domainName)
	}

	// Extra safety check, advisory only: a domain that no longer points
	// here must not block removal.
	if _, err := i.domains.Validate(ctx, domainName); err != nil {
		if errors.Is(err, domain.ErrUnresolved) || errors.Is(err, domain.ErrMismatch) {
			tui.PrintWarning("Domain no longer resolves to this host; removing anyway")
		} else {
			log.Debug("skipping DNS re-validation: %v", err)
		}
	}

	if rec.Status != record.StatusRemoving {
		rec.Status = record.StatusRemoving
		if err := i.records.Save(rec); err != nil {
			return err
		}
	}

	// Step 1: service and configuration.
	step := 1
	tui.PrintStep(step, removeSteps, "Stopping and deconfiguring service...")
	if err := i.proxy.Deconfigure(rec.ServiceName); err != nil {
		// Record stays in removing for a retry.
		return fmt.Errorf("failed to deconfigure service (record kept for retry): %w", err)
	}
	tui.PrintStatus("Service removed")

	// Step 2: certificate, best effort.
	step++
	tui.PrintStep(step, removeSteps, "Revoking certificate...")
	if rec.CertificateID != "" {
		if err := i.certs.Revoke(rec.CertificateID); err != nil {
			tui.PrintWarning("Certificate revocation failed: " + err.Error())
			log.Warn("certificate revocation failed for %s: %v", rec.Domain, err)
		} else {
			tui.PrintStatus("Certificate revoked")
		}
	} else {
		tui.PrintStatus("No certificate recorded")
	}

	// Step 3: the record itself.
	step++
	tui.PrintStep(step, removeSteps, "Clearing installation record...")
	if err := i.records.Delete(); err != nil {
		return err
	}
	tui.PrintStatus("Installation record cleared")

	return nil
}
