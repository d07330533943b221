package installer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/net2share/jtm/internal/cert"
	"github.com/net2share/jtm/internal/domain"
	"github.com/net2share/jtm/internal/proxyconf"
	"github.com/net2share/jtm/internal/record"
)

const testDomain = "proxy.example.com"

type fakeValidator struct {
	ip    string
	err   error
	calls int
}

func (f *fakeValidator) Validate(ctx context.Context, domain string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.ip, nil
}

type fakeDeps struct {
	err   error
	calls int
}

func (f *fakeDeps) Ensure(progressFn func(downloaded, total int64)) error {
	f.calls++
	return f.err
}

type fakeCerts struct {
	acquireErr error
	revokeErr  error
	acquired   []string
	revoked    []string
}

func (f *fakeCerts) Acquire(ctx context.Context, domain string) (*cert.Info, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquired = append(f.acquired, domain)
	return &cert.Info{
		ID:          "proxy_example_com",
		Domain:      domain,
		CertPath:    "/etc/jtm/certs/proxy_example_com/fullchain.pem",
		KeyPath:     "/etc/jtm/certs/proxy_example_com/privkey.pem",
		Fingerprint: "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12",
	}, nil
}

func (f *fakeCerts) Revoke(id string) error {
	f.revoked = append(f.revoked, id)
	return f.revokeErr
}

type fakeProxy struct {
	configureErr   error
	deconfigureErr error
	configured     []proxyconf.Params
	deconfigured   []string
}

func (f *fakeProxy) Configure(p proxyconf.Params) (string, error) {
	if f.configureErr != nil {
		return "", f.configureErr
	}
	f.configured = append(f.configured, p)
	return proxyconf.ServiceName, nil
}

func (f *fakeProxy) Deconfigure(serviceName string) error {
	if f.deconfigureErr != nil {
		return f.deconfigureErr
	}
	f.deconfigured = append(f.deconfigured, serviceName)
	return nil
}

type testRig struct {
	installer *Installer
	store     *record.Store
	validator *fakeValidator
	deps      *fakeDeps
	certs     *fakeCerts
	proxy     *fakeProxy
}

func newRig(t *testing.T) *testRig {
	t.Helper()

	rig := &testRig{
		store:     record.NewStoreAt(filepath.Join(t.TempDir(), "record.json")),
		validator: &fakeValidator{ip: "203.0.113.10"},
		deps:      &fakeDeps{},
		certs:     &fakeCerts{},
		proxy:     &fakeProxy{},
	}
	rig.installer = New(
		WithStore(rig.store),
		WithValidator(rig.validator),
		WithDependencies(rig.deps),
		WithCertManager(rig.certs),
		WithConfigurator(rig.proxy),
		WithFreePort(func() (int, error) { return 42000, nil }),
	)
	return rig
}

func (rig *testRig) mustInstall(t *testing.T) *record.Record {
	t.Helper()
	rec, err := rig.installer.Install(context.Background(), testDomain)
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	return rec
}

func (rig *testRig) storedRecord(t *testing.T) *record.Record {
	t.Helper()
	rec, err := rig.store.Load()
	if err != nil {
		t.Fatalf("failed to load record: %v", err)
	}
	return rec
}

func TestInstall(t *testing.T) {
	rig := newRig(t)

	rec := rig.mustInstall(t)

	if rec.Status != record.StatusActive {
		t.Errorf("Status = %q, want active", rec.Status)
	}
	if rec.Domain != testDomain {
		t.Errorf("Domain = %q, want %q", rec.Domain, testDomain)
	}
	if rec.CertificateID != "proxy_example_com" {
		t.Errorf("CertificateID = %q", rec.CertificateID)
	}
	if rec.ServiceName != proxyconf.ServiceName {
		t.Errorf("ServiceName = %q", rec.ServiceName)
	}
	if rec.ListenPort != 42000 {
		t.Errorf("ListenPort = %d, want 42000", rec.ListenPort)
	}
	if rec.ServerIP != "203.0.113.10" {
		t.Errorf("ServerIP = %q", rec.ServerIP)
	}
	if rec.Credentials.UUID == "" || rec.Credentials.Password == "" {
		t.Error("credentials were not generated")
	}

	// Persisted record matches the returned one.
	stored := rig.storedRecord(t)
	if stored == nil {
		t.Fatal("no record persisted")
	}
	if stored.Status != record.StatusActive {
		t.Errorf("persisted Status = %q, want active", stored.Status)
	}
	if err := stored.Validate(); err != nil {
		t.Errorf("persisted record invalid: %v", err)
	}

	// The service was configured with the same parameters the record holds.
	if len(rig.proxy.configured) != 1 {
		t.Fatalf("Configure called %d times, want 1", len(rig.proxy.configured))
	}
	p := rig.proxy.configured[0]
	if p.ListenPort != rec.ListenPort || p.Credentials != rec.Credentials || p.Domain != rec.Domain {
		t.Errorf("Configure params %+v do not match record %+v", p, rec)
	}

	if len(rig.certs.acquired) != 1 || rig.certs.acquired[0] != testDomain {
		t.Errorf("Acquire calls = %v", rig.certs.acquired)
	}
	if len(rig.certs.revoked) != 0 {
		t.Errorf("unexpected revocations: %v", rig.certs.revoked)
	}
}

func TestInstall_AlreadyInstalled(t *testing.T) {
	rig := newRig(t)
	rig.mustInstall(t)

	rig.validator.calls = 0
	_, err := rig.installer.Install(context.Background(), "other.example.com")
	if !errors.Is(err, ErrAlreadyInstalled) {
		t.Fatalf("error = %v, want ErrAlreadyInstalled", err)
	}

	// Refusal happens before any side effect.
	if rig.validator.calls != 0 {
		t.Error("validator was called for a refused install")
	}
	if len(rig.certs.acquired) != 1 {
		t.Error("certificate manager was called for a refused install")
	}
	if stored := rig.storedRecord(t); stored == nil || stored.Domain != testDomain {
		t.Error("existing record was disturbed by a refused install")
	}
}

func TestInstall_ValidationFailure(t *testing.T) {
	rig := newRig(t)
	rig.validator.err = fmt.Errorf("resolution failed: %w", domain.ErrUnresolved)

	_, err := rig.installer.Install(context.Background(), testDomain)
	if !errors.Is(err, domain.ErrUnresolved) {
		t.Fatalf("error = %v, want ErrUnresolved", err)
	}

	// Validation is read-only; nothing may have been created.
	if rig.storedRecord(t) != nil {
		t.Error("record exists after failed validation")
	}
	if rig.deps.calls != 0 || len(rig.certs.acquired) != 0 || len(rig.proxy.configured) != 0 {
		t.Error("side effects happened after failed validation")
	}
}

func TestInstall_DependencyFailure(t *testing.T) {
	rig := newRig(t)
	rig.deps.err = fmt.Errorf("package install failed")

	if _, err := rig.installer.Install(context.Background(), testDomain); err == nil {
		t.Fatal("expected error")
	}

	if rig.storedRecord(t) != nil {
		t.Error("record survived a failed install")
	}
	if len(rig.certs.acquired) != 0 || len(rig.proxy.configured) != 0 {
		t.Error("later steps ran after dependency failure")
	}
	if len(rig.certs.revoked) != 0 {
		t.Error("revocation attempted though no certificate was issued")
	}
}

func TestInstall_CertificateFailure(t *testing.T) {
	rig := newRig(t)
	rig.certs.acquireErr = fmt.Errorf("acquisition: %w", cert.ErrAcquisition)

	_, err := rig.installer.Install(context.Background(), testDomain)
	if !errors.Is(err, cert.ErrAcquisition) {
		t.Fatalf("error = %v, want ErrAcquisition", err)
	}

	if rig.storedRecord(t) != nil {
		t.Error("record survived a failed install")
	}
	if len(rig.proxy.configured) != 0 {
		t.Error("service was configured after certificate failure")
	}
	if len(rig.certs.revoked) != 0 {
		t.Error("revocation attempted though no certificate was issued")
	}
}

func TestInstall_ConfigureFailure(t *testing.T) {
	rig := newRig(t)
	rig.proxy.configureErr = fmt.Errorf("start: %w", proxyconf.ErrServiceStart)

	_, err := rig.installer.Install(context.Background(), testDomain)
	if !errors.Is(err, proxyconf.ErrServiceStart) {
		t.Fatalf("error = %v, want ErrServiceStart", err)
	}

	// The issued certificate must be rolled back along with the record.
	if len(rig.certs.revoked) != 1 || rig.certs.revoked[0] != "proxy_example_com" {
		t.Errorf("revocations = %v, want the issued certificate", rig.certs.revoked)
	}
	if rig.storedRecord(t) != nil {
		t.Error("record survived a failed install")
	}
}

func TestInstall_CleansUpCrashedAttempt(t *testing.T) {
	rig := newRig(t)

	// A previous install crashed after issuing a certificate and
	// registering the service, leaving the record in installing.
	stale := &record.Record{
		Domain:        testDomain,
		CertificateID: "stale_cert",
		ServiceName:   "juicity-server",
		ListenPort:    42001,
		ServerIP:      "203.0.113.10",
		Status:        record.StatusInstalling,
	}
	if err := rig.store.Save(stale); err != nil {
		t.Fatalf("failed to seed stale record: %v", err)
	}

	rec := rig.mustInstall(t)
	if rec.Status != record.StatusActive {
		t.Errorf("Status = %q, want active", rec.Status)
	}

	// The crashed attempt's artifacts were rolled back before the fresh
	// install ran.
	if len(rig.certs.revoked) != 1 || rig.certs.revoked[0] != "stale_cert" {
		t.Errorf("revocations = %v, want the stale certificate", rig.certs.revoked)
	}
	if len(rig.proxy.deconfigured) != 1 || rig.proxy.deconfigured[0] != "juicity-server" {
		t.Errorf("deconfigured = %v, want the stale service", rig.proxy.deconfigured)
	}
}

func TestInstall_RetryAfterFailure(t *testing.T) {
	rig := newRig(t)

	rig.certs.acquireErr = fmt.Errorf("transient CA outage")
	if _, err := rig.installer.Install(context.Background(), testDomain); err == nil {
		t.Fatal("expected first install to fail")
	}

	// A retried install starts clean and succeeds.
	rig.certs.acquireErr = nil
	rec := rig.mustInstall(t)
	if rec.Status != record.StatusActive {
		t.Errorf("retry Status = %q, want active", rec.Status)
	}
}

func TestRemove(t *testing.T) {
	rig := newRig(t)
	rig.mustInstall(t)

	if err := rig.installer.Remove(context.Background(), testDomain); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if len(rig.proxy.deconfigured) != 1 || rig.proxy.deconfigured[0] != proxyconf.ServiceName {
		t.Errorf("deconfigured = %v", rig.proxy.deconfigured)
	}
	if len(rig.certs.revoked) != 1 || rig.certs.revoked[0] != "proxy_example_com" {
		t.Errorf("revocations = %v", rig.certs.revoked)
	}
	if rig.storedRecord(t) != nil {
		t.Error("record still exists after removal")
	}
}

func TestRemove_NoInstallation(t *testing.T) {
	rig := newRig(t)

	err := rig.installer.Remove(context.Background(), testDomain)
	if !errors.Is(err, ErrNoInstallation) {
		t.Fatalf("error = %v, want ErrNoInstallation", err)
	}
}

func TestRemove_DomainMismatch(t *testing.T) {
	rig := newRig(t)
	rig.mustInstall(t)

	err := rig.installer.Remove(context.Background(), "other.example.com")
	if !errors.Is(err, domain.ErrMismatch) {
		t.Fatalf("error = %v, want ErrMismatch", err)
	}

	// A refused removal leaves the deployment untouched.
	stored := rig.storedRecord(t)
	if stored == nil || stored.Status != record.StatusActive {
		t.Errorf("record = %+v, want untouched active record", stored)
	}
	if len(rig.proxy.deconfigured) != 0 {
		t.Error("service was deconfigured despite the refusal")
	}
	if len(rig.certs.revoked) != 0 {
		t.Error("certificate was revoked despite the refusal")
	}
}

func TestRemove_StaleDNSIsAdvisory(t *testing.T) {
	rig := newRig(t)
	rig.mustInstall(t)

	// The domain no longer points at this host; removal proceeds anyway.
	rig.validator.err = fmt.Errorf("points elsewhere: %w", domain.ErrMismatch)

	if err := rig.installer.Remove(context.Background(), testDomain); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if rig.storedRecord(t) != nil {
		t.Error("record still exists after removal")
	}
}

func TestRemove_DeconfigureFailureKeepsRecord(t *testing.T) {
	rig := newRig(t)
	rig.mustInstall(t)

	rig.proxy.deconfigureErr = fmt.Errorf("systemctl unavailable")
	if err := rig.installer.Remove(context.Background(), testDomain); err == nil {
		t.Fatal("expected error")
	}

	// The record stays in removing so a retry can resume.
	stored := rig.storedRecord(t)
	if stored == nil {
		t.Fatal("record was deleted despite the failure")
	}
	if stored.Status != record.StatusRemoving {
		t.Errorf("Status = %q, want removing", stored.Status)
	}
	if len(rig.certs.revoked) != 0 {
		t.Error("certificate was revoked before the service came down")
	}

	// Retry after the failure clears completes the removal.
	rig.proxy.deconfigureErr = nil
	if err := rig.installer.Remove(context.Background(), testDomain); err != nil {
		t.Fatalf("retried Remove failed: %v", err)
	}
	if rig.storedRecord(t) != nil {
		t.Error("record still exists after retried removal")
	}
}

func TestRemove_RevokeFailureDowngraded(t *testing.T) {
	rig := newRig(t)
	rig.mustInstall(t)

	rig.certs.revokeErr = fmt.Errorf("CA unreachable")
	if err := rig.installer.Remove(context.Background(), testDomain); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if rig.storedRecord(t) != nil {
		t.Error("record still exists after removal")
	}
}

func TestRecord(t *testing.T) {
	rig := newRig(t)

	rec, err := rig.installer.Record()
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if rec != nil {
		t.Errorf("Record = %+v, want nil before install", rec)
	}

	rig.mustInstall(t)
	rec, err = rig.installer.Record()
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if rec == nil || rec.Domain != testDomain {
		t.Errorf("Record = %+v, want the installed deployment", rec)
	}
}
