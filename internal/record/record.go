// Package record persists the Installation Record: the single source of
// truth describing the one juicity deployment this tool manages.
//
// The record file is created when an install begins and deleted when an
// uninstall completes. A missing file means nothing is installed.
package record

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	// Dir is the jtm state directory.
	Dir = "/etc/jtm"
	// File is the record filename inside Dir.
	File = "record.json"
)

// Status describes which lifecycle phase the deployment is in.
type Status string

const (
	// StatusAbsent means no record exists. It is never written to disk;
	// absence of the record file is synonymous with it.
	StatusAbsent Status = "absent"
	// StatusInstalling means an install is in flight.
	StatusInstalling Status = "installing"
	// StatusActive means every install step succeeded.
	StatusActive Status = "active"
	// StatusRemoving means an uninstall is in flight; a retry of
	// `jtm remove` resumes from here.
	StatusRemoving Status = "removing"
)

// Credentials is the secret material shared by the server config and the
// emitted client profile. Generated once at install time.
type Credentials struct {
	UUID     string `json:"uuid"`
	Password string `json:"password"`
}

// Record describes the currently-installed deployment.
type Record struct {
	Domain        string      `json:"domain"`
	CertificateID string      `json:"certificate_id,omitempty"`
	Credentials   Credentials `json:"service_credentials"`
	ServiceName   string      `json:"service_name,omitempty"`
	ListenPort    int         `json:"listen_port"`
	ServerIP      string      `json:"server_ip"`
	Status        Status      `json:"status"`
	InstalledAt   time.Time   `json:"installed_at"`
}

// Validate checks the record invariants.
func (r *Record) Validate() error {
	if r.Domain == "" {
		return errors.New("record has no domain")
	}
	switch r.Status {
	case StatusInstalling:
	case StatusActive, StatusRemoving:
		if r.CertificateID == "" {
			return fmt.Errorf("record is %s but holds no certificate reference", r.Status)
		}
	default:
		return fmt.Errorf("invalid record status %q", r.Status)
	}
	return nil
}

// GenerateCredentials creates fresh service credentials: a UUIDv4 username
// and a 16-character hex password.
func GenerateCredentials() (Credentials, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return Credentials{}, fmt.Errorf("failed to generate password: %w", err)
	}
	return Credentials{
		UUID:     uuid.NewString(),
		Password: hex.EncodeToString(buf),
	}, nil
}

// Store reads and writes the record file at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store for the well-known host path.
func NewStore() *Store {
	return &Store{path: filepath.Join(Dir, File)}
}

// NewStoreAt returns a store for a specific path, mainly for tests.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

// Path returns the record file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the record. A missing file returns (nil, nil): nothing
// installed.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read installation record: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse installation record: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt installation record: %w", err)
	}
	return &r, nil
}

// Save writes the record. The file holds generated secrets, so it is not
// group or world readable.
func (s *Store) Save(r *Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal installation record: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write installation record: %w", err)
	}
	return nil
}

// Delete removes the record file. A missing file is fine: absent is the
// desired end state.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete installation record: %w", err)
	}
	return nil
}
