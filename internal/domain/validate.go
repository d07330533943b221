// Package domain validates that a domain name resolves to this host.
package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnresolved means the domain has no A/AAAA record.
	ErrUnresolved = errors.New("domain does not resolve")
	// ErrMismatch means the domain resolves, but not to this host.
	ErrMismatch = errors.New("domain does not point to this host")
)

// DefaultPublicIPURL is the service queried for the host's public address.
const DefaultPublicIPURL = "http://ifconfig.me/ip"

// Validator checks domain ownership by comparing DNS resolution against the
// host's public IP. Both lookups are read-only and bounded by a timeout.
type Validator struct {
	lookupHost func(ctx context.Context, host string) ([]string, error)
	publicIP   func(ctx context.Context) (string, error)
	timeout    time.Duration
}

// Option configures a Validator.
type Option func(*Validator)

// WithLookupHost overrides DNS resolution, mainly for tests.
func WithLookupHost(fn func(ctx context.Context, host string) ([]string, error)) Option {
	return func(v *Validator) { v.lookupHost = fn }
}

// WithPublicIP overrides the public IP lookup, mainly for tests.
func WithPublicIP(fn func(ctx context.Context) (string, error)) Option {
	return func(v *Validator) { v.publicIP = fn }
}

// WithTimeout bounds each network query.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) { v.timeout = d }
}

// NewValidator returns a validator using the host resolver and a public
// HTTP service for the external address.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		lookupHost: net.DefaultResolver.LookupHost,
		publicIP:   fetchPublicIP,
		timeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate resolves the domain and compares the result against the host's
// public address. On success it returns the matching server IP.
func (v *Validator) Validate(ctx context.Context, domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", fmt.Errorf("%w: empty domain", ErrUnresolved)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	addrs, err := v.lookupHost(ctx, domain)
	if err != nil || len(addrs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnresolved, domain)
	}

	myIP, err := v.publicIP(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to determine public IP: %w", err)
	}

	for _, addr := range addrs {
		if addr == myIP {
			return addr, nil
		}
	}
	return "", fmt.Errorf("%w: %s resolves to %s, host is %s",
		ErrMismatch, domain, strings.Join(addrs, ","), myIP)
}

func fetchPublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, DefaultPublicIPURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("public IP lookup returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return "", err
	}

	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("public IP lookup returned %q", ip)
	}
	return ip, nil
}
