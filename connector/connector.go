// ABOUTME: Connector contract for external CRM systems
// ABOUTME: Defines list/create/update/delete, the optional email lookup, and the error taxonomy
package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/harperreed/crmsync/models"
)

var (
	// ErrUnavailable covers network and authentication failures reaching a system.
	ErrUnavailable = errors.New("connector unavailable")

	// ErrRejected is returned when the remote system refuses a record (validation).
	ErrRejected = errors.New("connector rejected record")

	// ErrNotFound is returned when the remote record no longer exists.
	ErrNotFound = errors.New("remote record not found")
)

// Connector exposes contact-shaped records of one external system.
type Connector interface {
	// Name is the system name used in contact provenance.
	Name() string
	// List returns every contact currently visible to the integration.
	List(ctx context.Context) ([]RemoteRecord, error)
	// Create creates a record and returns its external id.
	Create(ctx context.Context, fields models.ContactFields) (string, error)
	// Update overwrites every field of an existing record.
	Update(ctx context.Context, externalID string, fields models.ContactFields) error
	// Delete removes a record. Callers treat failures as best-effort.
	Delete(ctx context.Context, externalID string) error
}

// EmailLookup is implemented by connectors that can search by email without a
// full list. The engine prefers it for the dedup-on-create guard.
type EmailLookup interface {
	// FindByEmail returns the record with the given email, or nil if none exists.
	FindByEmail(ctx context.Context, email string) (*RemoteRecord, error)
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(system string, err error) error {
	return fmt.Errorf("%s: %w: %v", system, ErrUnavailable, err)
}

// Rejected wraps err so that errors.Is(err, ErrRejected) holds.
func Rejected(system string, err error) error {
	return fmt.Errorf("%s: %w: %v", system, ErrRejected, err)
}

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "other"
	}
}

// IsUnavailable reports whether err means the whole system is unreachable.
// A per-call timeout counts as unavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
