// Package download fetches the juicity release archive and installs the
// server binary.
package download

import (
	"archive/zip"
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	// InstallDir is where extracted binaries are installed.
	InstallDir = "/usr/local/bin"

	// BinaryName is the server binary inside the release archive.
	BinaryName = "juicity-server"
)

// ReleaseConfig describes a juicity release to download.
type ReleaseConfig struct {
	BaseURL string // e.g. https://github.com/juicity/juicity/releases/download
	Version string // e.g. v0.4.3
	Arch    string // release arch suffix, e.g. x86_64
}

// ArchiveName returns the release archive filename for the configured arch.
func (cfg *ReleaseConfig) ArchiveName() string {
	return fmt.Sprintf("juicity-linux-%s.zip", cfg.Arch)
}

// ArchiveURL returns the full download URL of the release archive.
func (cfg *ReleaseConfig) ArchiveURL() string {
	return fmt.Sprintf("%s/%s/%s", cfg.BaseURL, cfg.Version, cfg.ArchiveName())
}

// ReleaseArch maps a GOARCH value to the juicity release naming.
func ReleaseArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "arm64"
	case "386":
		return "x86_32"
	}
	return goarch
}

// DownloadArchive downloads the release archive to a temp file and returns
// its path. The caller removes the file when done.
func DownloadArchive(cfg *ReleaseConfig, progressFn func(downloaded, total int64)) (string, error) {
	tmpFile, err := os.CreateTemp("", "juicity-*.zip")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tmpFile.Close()

	resp, err := http.Get(cfg.ArchiveURL())
	if err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("download failed with status: %s", resp.Status)
	}

	var reader io.Reader = resp.Body
	if progressFn != nil {
		reader = &progressReader{
			reader:     resp.Body,
			total:      resp.ContentLength,
			progressFn: progressFn,
		}
	}

	written, err := io.Copy(tmpFile, reader)
	if err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if written == 0 {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("downloaded file is empty")
	}

	return tmpFile.Name(), nil
}

type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	progressFn func(downloaded, total int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.downloaded += int64(n)
	if pr.progressFn != nil {
		pr.progressFn(pr.downloaded, pr.total)
	}
	return n, err
}

// ExtractServerBinary extracts the server binary from the release archive
// into destDir and returns its path.
func ExtractServerBinary(zipPath, destDir string) (string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if filepath.Base(f.Name) != BinaryName {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to read archive entry: %w", err)
		}
		defer rc.Close()

		destPath := filepath.Join(destDir, BinaryName)
		out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
		if err != nil {
			return "", fmt.Errorf("failed to create binary file: %w", err)
		}

		if _, err := io.Copy(out, rc); err != nil {
			out.Close()
			os.Remove(destPath)
			return "", fmt.Errorf("failed to extract binary: %w", err)
		}
		if err := out.Close(); err != nil {
			return "", fmt.Errorf("failed to close binary file: %w", err)
		}
		return destPath, nil
	}

	return "", fmt.Errorf("archive does not contain %s", BinaryName)
}

// InstallBinaryAs installs an extracted binary under InstallDir with the
// given name and removes the source file.
func InstallBinaryAs(srcPath, binaryName string) error {
	destPath := filepath.Join(InstallDir, binaryName)

	if err := os.MkdirAll(InstallDir, 0755); err != nil {
		return fmt.Errorf("failed to create install directory: %w", err)
	}

	input, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read extracted binary: %w", err)
	}

	if err := os.WriteFile(destPath, input, 0755); err != nil {
		return fmt.Errorf("failed to write binary: %w", err)
	}

	os.Remove(srcPath)
	return nil
}

// IsBinaryInstalled checks if a binary exists under InstallDir.
func IsBinaryInstalled(binaryName string) bool {
	_, err := os.Stat(filepath.Join(InstallDir, binaryName))
	return err == nil
}

// RemoveBinary removes an installed binary by name.
func RemoveBinary(binaryName string) {
	os.Remove(filepath.Join(InstallDir, binaryName))
}

// FetchChecksum fetches the published SHA-256 digest for the release
// archive. Juicity publishes a "<archive>.dgst" file next to each asset
// listing one hash per algorithm; coreutils-style "<hash> <filename>"
// lines are accepted too.
func FetchChecksum(cfg *ReleaseConfig) (string, error) {
	url := cfg.ArchiveURL() + ".dgst"
	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch digest file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch digest file: %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		if strings.TrimSuffix(strings.ToLower(parts[0]), ":") == "sha256" {
			return parts[1], nil
		}
		if len(parts[0]) == 64 && filepath.Base(parts[1]) == cfg.ArchiveName() {
			return parts[0], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to parse digest file: %w", err)
	}
	return "", fmt.Errorf("no SHA-256 digest found for %s", cfg.ArchiveName())
}

// SHA256File computes the hex SHA-256 digest of a file.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to compute checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum compares a file's SHA-256 digest against the expected hex
// value. An empty expected value skips verification.
func VerifyChecksum(path, expected string) error {
	if expected == "" {
		return nil
	}

	sum, err := SHA256File(path)
	if err != nil {
		return err
	}
	if sum != expected {
		return fmt.Errorf("SHA256 checksum mismatch: expected %s, got %s", expected, sum)
	}
	return nil
}
