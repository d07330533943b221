// Package cert acquires and revokes TLS certificates for the deployment
// domain through an ACME CA.
package cert

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/net2share/jtm/internal/log"
)

// ErrAcquisition means the CA did not issue a certificate.
var ErrAcquisition = errors.New("certificate acquisition failed")

// BaseDir is where certificate material lives, one directory per
// certificate ID.
const BaseDir = "/etc/jtm/certs"

const (
	fullchainFile  = "fullchain.pem"
	privkeyFile    = "privkey.pem"
	accountKeyFile = "account.pem"
)

// Info describes an issued certificate. ID is the opaque handle stored in
// the Installation Record.
type Info struct {
	ID          string
	Domain      string
	CertPath    string
	KeyPath     string
	Fingerprint string
}

// Manager talks to the ACME CA and owns the on-disk certificate layout.
type Manager struct {
	baseDir   string
	email     string
	caDirURL  string
	keyType   certcrypto.KeyType
	http01Req bool
	newClient func(cfg *lego.Config) (acmeClient, error)
	guard     PortGuard
}

// Option configures a Manager.
type Option func(*Manager)

// WithBaseDir overrides the certificate directory, mainly for tests.
func WithBaseDir(dir string) Option {
	return func(m *Manager) { m.baseDir = dir }
}

// WithEmail sets the ACME account contact address. Registration without an
// email is accepted by Let's Encrypt, mirroring certbot's
// --register-unsafely-without-email.
func WithEmail(email string) Option {
	return func(m *Manager) { m.email = strings.TrimSpace(email) }
}

// WithCADirectoryURL overrides the ACME directory (defaults to Let's
// Encrypt production).
func WithCADirectoryURL(url string) Option {
	return func(m *Manager) { m.caDirURL = url }
}

// WithClientFactory overrides ACME client construction, for tests.
func WithClientFactory(fn func(cfg *lego.Config) (acmeClient, error)) Option {
	return func(m *Manager) { m.newClient = fn }
}

// WithPortGuard overrides the port-80 pre-flight, for tests.
func WithPortGuard(g PortGuard) Option {
	return func(m *Manager) { m.guard = g }
}

// NewManager returns a Manager using Let's Encrypt with the HTTP-01
// standalone challenge.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		baseDir:   BaseDir,
		caDirURL:  lego.LEDirectoryProduction,
		keyType:   certcrypto.EC256,
		http01Req: true,
		newClient: defaultClientFactory,
		guard:     &nginxPortGuard{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Slug derives the certificate ID for a domain. It doubles as the storage
// directory name.
func Slug(domain string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(domain)), ".", "_")
}

// Paths returns the certificate and key paths for a certificate ID.
func (m *Manager) Paths(id string) (certPath, keyPath string) {
	dir := filepath.Join(m.baseDir, id)
	return filepath.Join(dir, fullchainFile), filepath.Join(dir, privkeyFile)
}

// Get returns info for an already-issued certificate, or nil.
func (m *Manager) Get(domain string) *Info {
	id := Slug(domain)
	certPath, keyPath := m.Paths(id)

	if _, err := os.Stat(certPath); err != nil {
		return nil
	}
	if _, err := os.Stat(keyPath); err != nil {
		return nil
	}

	fingerprint, err := Fingerprint(certPath)
	if err != nil {
		return nil
	}

	return &Info{
		ID:          id,
		Domain:      domain,
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: fingerprint,
	}
}

// Acquire requests a certificate for the domain from the CA. Partial
// on-disk state is removed before an error is returned, so a failed
// acquisition leaves nothing behind.
func (m *Manager) Acquire(ctx context.Context, domain string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// HTTP-01 needs port 80; free it for the duration of the challenge.
	if err := m.guard.Free(); err != nil {
		return nil, fmt.Errorf("%w: port 80 is busy and could not be freed: %v", ErrAcquisition, err)
	}
	defer m.guard.Restore()

	accountKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generate account key: %v", ErrAcquisition, err)
	}

	user := &acmeUser{email: m.email, key: accountKey}
	cfg := lego.NewConfig(user)
	cfg.CADirURL = m.caDirURL
	cfg.Certificate.KeyType = m.keyType

	client, err := m.newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create acme client: %v", ErrAcquisition, err)
	}

	if m.http01Req {
		if err := client.SetHTTP01Provider(http01.NewProviderServer("", "80")); err != nil {
			return nil, fmt.Errorf("%w: configure http-01 provider: %v", ErrAcquisition, err)
		}
	}

	reg, err := client.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("%w: register account: %v", ErrAcquisition, err)
	}
	user.registration = reg

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := client.Obtain(certificate.ObtainRequest{
		Domains: []string{domain},
		Bundle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAcquisition, err)
	}

	info, err := m.writeArtifacts(domain, accountKey, res)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAcquisition, err)
	}
	return info, nil
}

func (m *Manager) writeArtifacts(domain string, accountKey crypto.PrivateKey, res *certificate.Resource) (*Info, error) {
	if res == nil || len(res.Certificate) == 0 || len(res.PrivateKey) == 0 {
		return nil, errors.New("empty certificate payload received from ACME server")
	}

	id := Slug(domain)
	dir := filepath.Join(m.baseDir, id)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create cert directory: %w", err)
	}

	certPath, keyPath := m.Paths(id)

	write := func() error {
		if err := os.WriteFile(keyPath, res.PrivateKey, 0600); err != nil {
			return fmt.Errorf("write private key: %w", err)
		}
		if err := os.WriteFile(certPath, res.Certificate, 0644); err != nil {
			return fmt.Errorf("write certificate: %w", err)
		}
		accountPEM := certcrypto.PEMEncode(accountKey)
		if err := os.WriteFile(filepath.Join(dir, accountKeyFile), accountPEM, 0600); err != nil {
			return fmt.Errorf("write account key: %w", err)
		}
		return nil
	}
	if err := write(); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	fingerprint, err := Fingerprint(certPath)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("fingerprint: %w", err)
	}

	return &Info{
		ID:          id,
		Domain:      domain,
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: fingerprint,
	}, nil
}

// Revoke asks the CA to revoke the certificate and removes its material
// from disk. CA-side failure still removes local files; the caller decides
// whether to treat the error as fatal.
func (m *Manager) Revoke(id string) error {
	dir := filepath.Join(m.baseDir, id)
	certPath, _ := m.Paths(id)

	certPEM, readErr := os.ReadFile(certPath)

	var revokeErr error
	if readErr == nil {
		revokeErr = m.revokeWithCA(dir, certPEM)
	} else if !errors.Is(readErr, os.ErrNotExist) {
		revokeErr = readErr
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove certificate material: %w", err)
	}
	if revokeErr != nil {
		return fmt.Errorf("CA revocation failed (local material removed): %w", revokeErr)
	}
	return nil
}

func (m *Manager) revokeWithCA(dir string, certPEM []byte) error {
	accountPEM, err := os.ReadFile(filepath.Join(dir, accountKeyFile))
	if err != nil {
		return fmt.Errorf("no account key for revocation: %w", err)
	}

	accountKey, err := certcrypto.ParsePEMPrivateKey(accountPEM)
	if err != nil {
		return fmt.Errorf("parse account key: %w", err)
	}

	user := &acmeUser{email: m.email, key: accountKey}
	cfg := lego.NewConfig(user)
	cfg.CADirURL = m.caDirURL
	cfg.Certificate.KeyType = m.keyType

	client, err := m.newClient(cfg)
	if err != nil {
		return fmt.Errorf("create acme client: %w", err)
	}

	// Re-registering with the stored key resolves to the issuing account.
	reg, err := client.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return fmt.Errorf("resolve account: %w", err)
	}
	user.registration = reg

	if err := client.Revoke(certPEM); err != nil {
		return err
	}
	log.Debug("certificate revoked with CA")
	return nil
}

// Fingerprint returns the hex SHA-256 digest of the leaf certificate in a
// PEM file.
func Fingerprint(certPath string) (string, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return "", err
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM block")
	}

	hash := sha256.Sum256(block.Bytes)
	return hex.EncodeToString(hash[:]), nil
}

// FormatFingerprint formats a fingerprint for display (with colons).
func FormatFingerprint(fingerprint string) string {
	if len(fingerprint) != 64 {
		return fingerprint
	}

	var b strings.Builder
	for i := 0; i < len(fingerprint); i += 2 {
		if i > 0 {
			b.WriteString(":")
		}
		b.WriteString(strings.ToUpper(fingerprint[i : i+2]))
	}
	return b.String()
}

// ParseLeaf parses the leaf certificate from a PEM file, for diagnostics.
func ParseLeaf(certPath string) (*x509.Certificate, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	return x509.ParseCertificate(block.Bytes)
}

// acmeClient is the narrow slice of lego the manager uses, mockable in
// tests.
type acmeClient interface {
	Register(options registration.RegisterOptions) (*registration.Resource, error)
	SetHTTP01Provider(provider challenge.Provider) error
	Obtain(request certificate.ObtainRequest) (*certificate.Resource, error)
	Revoke(cert []byte) error
}

func defaultClientFactory(cfg *lego.Config) (acmeClient, error) {
	client, err := lego.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &legoClientAdapter{client: client}, nil
}

type legoClientAdapter struct {
	client *lego.Client
}

func (l *legoClientAdapter) Register(options registration.RegisterOptions) (*registration.Resource, error) {
	return l.client.Registration.Register(options)
}

func (l *legoClientAdapter) SetHTTP01Provider(provider challenge.Provider) error {
	return l.client.Challenge.SetHTTP01Provider(provider)
}

func (l *legoClientAdapter) Obtain(request certificate.ObtainRequest) (*certificate.Resource, error) {
	return l.client.Certificate.Obtain(request)
}

func (l *legoClientAdapter) Revoke(cert []byte) error {
	return l.client.Certificate.Revoke(cert)
}

type acmeUser struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string {
	return u.email
}

func (u *acmeUser) GetRegistration() *registration.Resource {
	return u.registration
}

func (u *acmeUser) GetPrivateKey() crypto.PrivateKey {
	return u.key
}
