// ABOUTME: Local contact writes with immediate push to external systems
// ABOUTME: Create-or-update by email, partial update by id, delete and status
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/harperreed/crmsync/models"
)

// ErrInvalidInput wraps validation failures of local writes.
var ErrInvalidInput = errors.New("invalid contact input")

// ContactInput is a full local write keyed by email.
type ContactInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone"`
	JobTitle string `json:"jobTitle"`
	Pronouns string `json:"pronouns"`
}

// ContactPatch updates only the fields that are set.
type ContactPatch struct {
	Name     *string `json:"name" validate:"omitempty,min=1"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone"`
	JobTitle *string `json:"jobTitle"`
	Pronouns *string `json:"pronouns"`
}

// PushReport describes the immediate push after a local write. Deferred is
// set when a running cycle held the lease; that cycle or the next one pushes.
type PushReport struct {
	Deferred bool              `json:"deferred"`
	Created  []string          `json:"created,omitempty"`
	Updated  []string          `json:"updated,omitempty"`
	Linked   []string          `json:"linked,omitempty"`
	Failures map[string]string `json:"failures,omitempty"`
}

type SaveResult struct {
	Contact *models.Contact `json:"contact"`
	Created bool            `json:"created"`
	Push    *PushReport     `json:"push"`
}

// Status is the persisted sync state of a tenant.
type Status struct {
	Systems []models.SyncState `json:"systems"`
	Runs    []models.SyncRun   `json:"runs"`
}

// ContactService applies local writes and pushes them out.
type ContactService struct {
	engine   *Engine
	validate *validator.Validate
}

func NewContactService(engine *Engine) *ContactService {
	return &ContactService{engine: engine, validate: validator.New()}
}

// List returns active contacts, newest first.
func (s *ContactService) List(ctx context.Context, tenantID string) ([]models.Contact, error) {
	contacts, err := s.engine.store.ListActive(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}

// maxWriteAttempts bounds the re-read and re-apply loop of local writes.
const maxWriteAttempts = 3

// Save creates or updates the active contact with in.Email. A tombstoned
// email can be re-created this way; only remote discovery is blocked.
func (s *ContactService) Save(ctx context.Context, tenantID string, in ContactInput) (*SaveResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	created := false
	load := func() (*models.Contact, error) {
		contact, err := s.engine.store.FindActiveByEmail(ctx, tenantID, in.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to find contact: %w", err)
		}
		created = contact == nil
		if created {
			contact = &models.Contact{
				ID:        uuid.New(),
				TenantID:  tenantID,
				Email:     in.Email,
				Sources:   []string{models.SystemLocal},
				CreatedAt: s.engine.now(),
			}
		}
		return contact, nil
	}
	apply := func(contact *models.Contact) {
		contact.Name = in.Name
		contact.Phone = in.Phone
		if contact.Phone == "" {
			contact.Phone = models.DefaultPhone
		}
		contact.JobTitle = in.JobTitle
		contact.Pronouns = in.Pronouns
		contact.UpdatedAt = s.engine.now()
	}

	contact, err := s.write(ctx, load, apply)
	if err != nil {
		return nil, fmt.Errorf("failed to save contact: %w", err)
	}

	report, err := s.push(ctx, contact.TenantID, contact.ID)
	if err != nil {
		return nil, err
	}
	return &SaveResult{Contact: s.reload(ctx, contact), Created: created, Push: report}, nil
}

// Update applies patch to the contact with id and pushes it.
func (s *ContactService) Update(ctx context.Context, tenantID string, id uuid.UUID, patch ContactPatch) (*SaveResult, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	load := func() (*models.Contact, error) {
		contact, err := s.engine.store.GetContact(ctx, tenantID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get contact: %w", err)
		}
		if contact == nil || contact.Deleted {
			return nil, models.ErrContactNotFound
		}
		return contact, nil
	}
	apply := func(contact *models.Contact) {
		if patch.Name != nil {
			contact.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Email != nil {
			contact.Email = strings.TrimSpace(*patch.Email)
		}
		if patch.Phone != nil {
			contact.Phone = *patch.Phone
			if contact.Phone == "" {
				contact.Phone = models.DefaultPhone
			}
		}
		if patch.JobTitle != nil {
			contact.JobTitle = *patch.JobTitle
		}
		if patch.Pronouns != nil {
			contact.Pronouns = *patch.Pronouns
		}
		contact.UpdatedAt = s.engine.now()
	}

	contact, err := s.write(ctx, load, apply)
	if err != nil {
		if errors.Is(err, models.ErrContactNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}

	report, err := s.push(ctx, tenantID, contact.ID)
	if err != nil {
		return nil, err
	}
	return &SaveResult{Contact: s.reload(ctx, contact), Push: report}, nil
}

// write loads a contact, applies a change and stores it. When a concurrent
// writer (usually a running cycle) stored the contact first, the change is
// applied again to a fresh read.
func (s *ContactService) write(ctx context.Context, load func() (*models.Contact, error), apply func(*models.Contact)) (*models.Contact, error) {
	var err error
	for range maxWriteAttempts {
		var contact *models.Contact
		contact, err = load()
		if err != nil {
			return nil, err
		}
		apply(contact)

		err = s.engine.store.Upsert(ctx, contact)
		if err == nil {
			return contact, nil
		}
		if !isConflict(err) {
			return nil, err
		}
	}
	return nil, err
}

func (s *ContactService) Delete(ctx context.Context, tenantID string, id uuid.UUID) (*DeleteResult, error) {
	return s.engine.Delete(ctx, tenantID, id)
}

func (s *ContactService) DeleteByEmail(ctx context.Context, tenantID, email string) (*DeleteResult, error) {
	return s.engine.DeleteByEmail(ctx, tenantID, email)
}

// Sync runs a cycle on demand.
func (s *ContactService) Sync(ctx context.Context, tenantID string) (*Summary, error) {
	return s.engine.RunCycle(ctx, tenantID)
}

// SyncInBackground starts a cycle without waiting for it.
func (s *ContactService) SyncInBackground(tenantID string) {
	s.engine.RunInBackground(tenantID)
}

// Status returns per-system state and the most recent runs.
func (s *ContactService) Status(ctx context.Context, tenantID string, runs int) (*Status, error) {
	reader, ok := s.engine.store.(StatusReader)
	if !ok {
		return &Status{}, nil
	}

	states, err := reader.GetSyncStates(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	history, err := reader.ListRuns(ctx, tenantID, runs)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	return &Status{Systems: states, Runs: history}, nil
}

// push sends the stored contact to every configured system under the tenant
// lease. While a cycle holds the lease the contact is handed to that cycle,
// which pushes it once its own pushes are done.
func (s *ContactService) push(ctx context.Context, tenantID string, id uuid.UUID) (*PushReport, error) {
	s.engine.markPending(tenantID, id)

	release, err := s.engine.leaser.Acquire(ctx, tenantID)
	if errors.Is(err, ErrCycleInProgress) {
		return &PushReport{Deferred: true}, nil
	}
	if err != nil {
		return &PushReport{Deferred: true, Failures: map[string]string{"lease": err.Error()}}, nil
	}
	defer release()

	s.engine.clearPending(tenantID, id)
	return s.engine.pushContact(ctx, s.engine.provider.Open(ctx, tenantID), tenantID, id)
}

func (s *ContactService) reload(ctx context.Context, contact *models.Contact) *models.Contact {
	fresh, err := s.engine.store.GetContact(ctx, contact.TenantID, contact.ID)
	if err != nil || fresh == nil {
		return contact
	}
	return fresh
}

