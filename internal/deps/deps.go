// Package deps ensures OS-level prerequisites and the juicity-server
// binary are present. Every step is idempotent.
package deps

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/net2share/jtm/internal/download"
	"github.com/net2share/jtm/internal/log"
	"github.com/net2share/jtm/internal/system"
)

// ErrDependencyInstall wraps any package-manager or binary-fetch failure.
var ErrDependencyInstall = errors.New("dependency installation failed")

// Release defaults; the version is a deliberate pin, not "latest".
const (
	DefaultReleaseBaseURL = "https://github.com/juicity/juicity/releases/download"
	DefaultReleaseVersion = "v0.4.3"
)

// osPackages are the distro packages the deployment needs. The TLS trust
// store must be present for ACME and release downloads.
var osPackages = []string{"ca-certificates"}

// Installer provisions host dependencies.
type Installer struct {
	pkgManager  string
	release     download.ReleaseConfig
	installPkg  func(manager string, packages ...string) error
	fetch       func(cfg *download.ReleaseConfig, progressFn func(downloaded, total int64)) (string, error)
	fetchDigest func(cfg *download.ReleaseConfig) (string, error)
}

// Option configures an Installer.
type Option func(*Installer)

// WithPackageManager overrides package manager detection.
func WithPackageManager(name string) Option {
	return func(i *Installer) { i.pkgManager = name }
}

// WithRelease overrides the release to download.
func WithRelease(cfg download.ReleaseConfig) Option {
	return func(i *Installer) { i.release = cfg }
}

// WithPackageInstaller overrides package installation, for tests.
func WithPackageInstaller(fn func(manager string, packages ...string) error) Option {
	return func(i *Installer) { i.installPkg = fn }
}

// WithFetcher overrides archive download, for tests.
func WithFetcher(fn func(cfg *download.ReleaseConfig, progressFn func(downloaded, total int64)) (string, error)) Option {
	return func(i *Installer) { i.fetch = fn }
}

// WithDigestFetcher overrides digest retrieval, for tests.
func WithDigestFetcher(fn func(cfg *download.ReleaseConfig) (string, error)) Option {
	return func(i *Installer) { i.fetchDigest = fn }
}

// NewInstaller returns an Installer for the host.
func NewInstaller(opts ...Option) *Installer {
	i := &Installer{
		pkgManager: system.GetPackageManager(),
		release: download.ReleaseConfig{
			BaseURL: DefaultReleaseBaseURL,
			Version: DefaultReleaseVersion,
			Arch:    download.ReleaseArch(runtime.GOARCH),
		},
		installPkg:  system.InstallPackages,
		fetch:       download.DownloadArchive,
		fetchDigest: download.FetchChecksum,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ensure makes sure OS packages and the server binary are present.
// Re-running when everything is already installed is a no-op.
func (i *Installer) Ensure(progressFn func(downloaded, total int64)) error {
	if i.pkgManager != "" {
		if err := i.installPkg(i.pkgManager, osPackages...); err != nil {
			return fmt.Errorf("%w: %v", ErrDependencyInstall, err)
		}
	} else {
		log.Warn("no supported package manager found, skipping OS packages")
	}

	if i.IsSatisfied() {
		log.Debug("%s already installed", download.BinaryName)
		return nil
	}

	// Digest retrieval is best effort; a release without a published
	// digest still installs. A mismatch against a published one is fatal.
	digest, err := i.fetchDigest(&i.release)
	if err != nil {
		log.Warn("could not fetch release digest, skipping verification: %v", err)
		digest = ""
	}

	zipPath, err := i.fetch(&i.release, progressFn)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyInstall, err)
	}
	defer os.Remove(zipPath)

	if err := download.VerifyChecksum(zipPath, digest); err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyInstall, err)
	}

	tmpDir, err := os.MkdirTemp("", "juicity-extract-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyInstall, err)
	}
	defer os.RemoveAll(tmpDir)

	binPath, err := download.ExtractServerBinary(zipPath, tmpDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyInstall, err)
	}

	if err := download.InstallBinaryAs(binPath, download.BinaryName); err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyInstall, err)
	}
	return nil
}

// IsSatisfied reports whether the server binary is already installed.
func (i *Installer) IsSatisfied() bool {
	return download.IsBinaryInstalled(download.BinaryName)
}
