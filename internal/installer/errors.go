package installer

import (
	"errors"
	"fmt"

	"github.com/net2share/jtm/internal/domain"
)

// Pre-condition errors. These are surfaced before any side effect.
var (
	// ErrAlreadyInstalled means an Installation Record already exists.
	ErrAlreadyInstalled = errors.New("a deployment is already installed")

	// ErrNoInstallation means no Installation Record exists.
	ErrNoInstallation = errors.New("no deployment is installed")
)

// FlowError is a structured error with a user-facing hint.
type FlowError struct {
	// Message is the main error message.
	Message string
	// Hint provides a suggestion for resolution.
	Hint string
	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s\n%s", e.Message, e.Hint)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *FlowError) Unwrap() error {
	return e.Err
}

// AlreadyInstalledError reports an install attempt over an existing record.
func AlreadyInstalledError(installedDomain string) *FlowError {
	return &FlowError{
		Message: fmt.Sprintf("a deployment for '%s' is already installed", installedDomain),
		Hint:    "Run 'jtm remove' first, or confirm the reinstall prompt",
		Err:     ErrAlreadyInstalled,
	}
}

// NoInstallationError reports an operation that needs an installed
// deployment.
func NoInstallationError() *FlowError {
	return &FlowError{
		Message: "no deployment is installed on this host",
		Hint:    "Run 'jtm install' first",
		Err:     ErrNoInstallation,
	}
}

// DomainMismatchRemovalError reports a removal naming the wrong domain.
func DomainMismatchRemovalError(requested string) *FlowError {
	return &FlowError{
		Message: fmt.Sprintf("'%s' is not the domain this deployment is bound to", requested),
		Hint:    "Name the exact domain the deployment was installed with",
		Err:     domain.ErrMismatch,
	}
}
