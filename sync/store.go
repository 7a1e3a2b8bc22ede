// ABOUTME: Local store contract consumed by the sync engine
// ABOUTME: Defines the store interfaces and the engine's error values
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/models"
)

var (
	// ErrWriteConflict means another active contact already owns the email.
	ErrWriteConflict = models.ErrWriteConflict

	// ErrStaleContact means the contact was written or deleted after it was read.
	ErrStaleContact = models.ErrStaleContact

	// ErrStoreUnavailable aborts a cycle. Any store failure other than a
	// write conflict is reported wrapped in it.
	ErrStoreUnavailable = errors.New("local store unavailable")

	// ErrCycleInProgress is returned when another cycle holds the tenant lease.
	ErrCycleInProgress = errors.New("sync cycle already in progress for tenant")
)

// Store is the tenant-scoped contact store. GetContact, FindActiveByEmail and
// FindActiveByExternalID return nil, nil when nothing matches.
type Store interface {
	GetContact(ctx context.Context, tenantID string, id uuid.UUID) (*models.Contact, error)
	FindActiveByEmail(ctx context.Context, tenantID, email string) (*models.Contact, error)
	FindActiveByExternalID(ctx context.Context, tenantID, system, externalID string) (*models.Contact, error)
	ListActive(ctx context.Context, tenantID string) ([]models.Contact, error)
	ListTombstonedEmails(ctx context.Context, tenantID string) ([]string, error)
	Upsert(ctx context.Context, contact *models.Contact) error
	Tombstone(ctx context.Context, tenantID string, id uuid.UUID) error
}

// RunRecorder persists per-system sync state and the run log.
type RunRecorder interface {
	RecordSystemStatus(ctx context.Context, tenantID, system, status, errorMsg string) error
	RecordRun(ctx context.Context, run models.SyncRun) error
}

// StatusReader reads back what RunRecorder wrote.
type StatusReader interface {
	GetSyncStates(ctx context.Context, tenantID string) ([]models.SyncState, error)
	ListRuns(ctx context.Context, tenantID string, limit int) ([]models.SyncRun, error)
}

// isConflict reports whether a write lost a race and may be retried after a
// fresh read.
func isConflict(err error) bool {
	return errors.Is(err, ErrWriteConflict) || errors.Is(err, ErrStaleContact)
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
