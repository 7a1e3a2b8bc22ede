// ABOUTME: Local contact deletion with best-effort remote cleanup
// ABOUTME: Remote deletes may fail; the local tombstone always lands
package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/connector"
	"github.com/harperreed/crmsync/models"
	"go.uber.org/zap"
)

// DeleteResult reports the remote side of a deletion.
type DeleteResult struct {
	ContactID      uuid.UUID         `json:"contactId"`
	Email          string            `json:"email"`
	RemoteDeleted  []string          `json:"remoteDeleted"`
	RemoteFailures map[string]string `json:"remoteFailures,omitempty"`
}

// Delete removes the contact from every linked system, then tombstones it.
// Deleting an already tombstoned contact is a no-op.
func (e *Engine) Delete(ctx context.Context, tenantID string, id uuid.UUID) (*DeleteResult, error) {
	contact, err := e.store.GetContact(ctx, tenantID, id)
	if err != nil {
		return nil, storeFailure("load contact", err)
	}
	if contact == nil {
		return nil, models.ErrContactNotFound
	}
	return e.deleteContact(ctx, contact)
}

// DeleteByEmail deletes the active contact owning email.
func (e *Engine) DeleteByEmail(ctx context.Context, tenantID, email string) (*DeleteResult, error) {
	contact, err := e.store.FindActiveByEmail(ctx, tenantID, email)
	if err != nil {
		return nil, storeFailure("find contact", err)
	}
	if contact == nil {
		return nil, models.ErrContactNotFound
	}
	return e.deleteContact(ctx, contact)
}

func (e *Engine) deleteContact(ctx context.Context, contact *models.Contact) (*DeleteResult, error) {
	result := &DeleteResult{
		ContactID:      contact.ID,
		Email:          contact.Email,
		RemoteDeleted:  []string{},
		RemoteFailures: make(map[string]string),
	}
	if contact.Deleted {
		return result, nil
	}

	logger := e.logger.With(zap.String("tenant", contact.TenantID), zap.String("contact_id", contact.ID.String()))
	d := &remoteDeleter{engine: e, tenantID: contact.TenantID, logger: logger, result: result, tried: make(map[string]string)}
	d.deleteLinked(ctx, contact)

	if err := e.store.Tombstone(ctx, contact.TenantID, contact.ID); err != nil {
		if errors.Is(err, models.ErrContactNotFound) {
			return nil, err
		}
		return nil, storeFailure("tombstone contact", err)
	}

	// A running cycle may have stored new links between the read above and
	// the tombstone; tombstoned rows keep their links.
	stored, err := e.store.GetContact(ctx, contact.TenantID, contact.ID)
	if err != nil {
		logger.Warn("Failed to re-read deleted contact", zap.Error(err))
	} else if stored != nil {
		d.deleteLinked(ctx, stored)
	}

	logger.Info("Contact deleted",
		zap.Strings("remote_deleted", result.RemoteDeleted),
		zap.Int("remote_failures", len(result.RemoteFailures)),
	)
	return result, nil
}

// remoteDeleter removes a contact's linked remote records, each at most once.
type remoteDeleter struct {
	engine   *Engine
	tenantID string
	logger   *zap.Logger
	result   *DeleteResult
	session  *connector.Session
	// tried maps system to the external id already attempted there.
	tried map[string]string
}

func (d *remoteDeleter) deleteLinked(ctx context.Context, contact *models.Contact) {
	for _, system := range contact.LinkedSystems() {
		externalID := contact.ExternalIDs[system]
		if d.tried[system] == externalID {
			continue
		}
		d.tried[system] = externalID

		if d.session == nil {
			d.session = d.engine.provider.Open(ctx, d.tenantID)
		}
		conn, ok := d.session.Get(system)
		if !ok {
			cause := d.session.Failed[system]
			if cause == nil {
				cause = fmt.Errorf("%s is not configured", system)
			}
			d.result.RemoteFailures[system] = cause.Error()
			continue
		}

		err := d.engine.call(ctx, system, "delete", func(ctx context.Context) error {
			return conn.Delete(ctx, externalID)
		})
		if err != nil && !errors.Is(err, connector.ErrNotFound) {
			d.logger.Warn("Remote delete failed", zap.String("system", system), zap.Error(err))
			d.result.RemoteFailures[system] = err.Error()
			continue
		}
		delete(d.result.RemoteFailures, system)
		if !slices.Contains(d.result.RemoteDeleted, system) {
			d.result.RemoteDeleted = append(d.result.RemoteDeleted, system)
		}
	}
}
