// ABOUTME: Contact store backed by SQLite
// ABOUTME: Tenant-scoped lookups, upsert keyed by (tenant, email), and tombstoning
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/models"
	"github.com/mattn/go-sqlite3"
)

// Store persists contacts, links, sync state and run history in SQLite.
type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const contactColumns = `id, tenant_id, email, name, phone, job_title, pronouns, sources, deleted, created_at, updated_at, version`

func (s *Store) GetContact(ctx context.Context, tenantID string, id uuid.UUID) (*models.Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts WHERE tenant_id = ? AND id = ?
	`, tenantID, id.String())

	contact, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}

	if err := s.loadLinks(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

func (s *Store) FindActiveByEmail(ctx context.Context, tenantID, email string) (*models.Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts WHERE tenant_id = ? AND email_normalized = ? AND deleted = 0
	`, tenantID, models.NormalizeEmail(email))

	contact, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find contact by email: %w", err)
	}

	if err := s.loadLinks(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

func (s *Store) FindActiveByExternalID(ctx context.Context, tenantID, system, externalID string) (*models.Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.tenant_id, c.email, c.name, c.phone, c.job_title, c.pronouns, c.sources, c.deleted, c.created_at, c.updated_at, c.version
		FROM contacts c
		JOIN contact_links l ON l.contact_id = c.id
		WHERE l.tenant_id = ? AND l.system = ? AND l.external_id = ? AND c.deleted = 0
	`, tenantID, system, externalID)

	contact, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find contact by external id: %w", err)
	}

	if err := s.loadLinks(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

// ListActive returns every non-tombstoned contact of the tenant, newest first.
func (s *Store) ListActive(ctx context.Context, tenantID string) ([]models.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts WHERE tenant_id = ? AND deleted = 0
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var contacts []models.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, *contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}

	links, err := s.tenantLinks(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for i := range contacts {
		contacts[i].ExternalIDs = links[contacts[i].ID.String()]
	}

	return contacts, nil
}

func (s *Store) ListTombstonedEmails(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT email_normalized FROM contacts
		WHERE tenant_id = ? AND deleted = 1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tombstoned emails: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// Upsert inserts a new contact (Version 0) or updates the stored one in one
// transaction together with its links, then bumps contact.Version. Returns
// models.ErrWriteConflict when another active contact already owns the
// email, and models.ErrStaleContact when the row was written or tombstoned
// since contact was read. A tombstoned row is never revived.
func (s *Store) Upsert(ctx context.Context, contact *models.Contact) error {
	if contact.ID == uuid.Nil {
		contact.ID = uuid.New()
	}
	now := time.Now().UTC()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}
	if contact.UpdatedAt.IsZero() {
		contact.UpdatedAt = now
	}
	if len(contact.Sources) == 0 {
		contact.Sources = []string{models.SystemLocal}
	}

	sources, err := json.Marshal(contact.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if contact.Version == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO contacts (id, tenant_id, email, email_normalized, name, phone, job_title, pronouns, sources, deleted, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, 1)
		`, contact.ID.String(), contact.TenantID, contact.Email, contact.NormalizedEmail(), contact.Name,
			contact.Phone, contact.JobTitle, contact.Pronouns, string(sources), contact.CreatedAt, contact.UpdatedAt)
		if err != nil {
			return mapWriteError(err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE contacts SET
				email = ?,
				email_normalized = ?,
				name = ?,
				phone = ?,
				job_title = ?,
				pronouns = ?,
				sources = ?,
				updated_at = ?,
				version = version + 1
			WHERE tenant_id = ? AND id = ? AND version = ? AND deleted = 0
		`, contact.Email, contact.NormalizedEmail(), contact.Name, contact.Phone, contact.JobTitle,
			contact.Pronouns, string(sources), contact.UpdatedAt, contact.TenantID, contact.ID.String(), contact.Version)
		if err != nil {
			return mapWriteError(err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s at version %d", models.ErrStaleContact, contact.ID, contact.Version)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM contact_links WHERE contact_id = ?`, contact.ID.String()); err != nil {
		return fmt.Errorf("failed to clear links: %w", err)
	}
	for _, system := range contact.LinkedSystems() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contact_links (contact_id, tenant_id, system, external_id)
			VALUES (?, ?, ?, ?)
		`, contact.ID.String(), contact.TenantID, system, contact.ExternalIDs[system]); err != nil {
			return fmt.Errorf("failed to write link: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return mapWriteError(err)
	}
	contact.Version++
	return nil
}

// Tombstone marks the contact deleted. Links are retained for audit.
func (s *Store) Tombstone(ctx context.Context, tenantID string, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contacts SET deleted = 1, updated_at = ?, version = version + 1
		WHERE tenant_id = ? AND id = ?
	`, time.Now().UTC(), tenantID, id.String())
	if err != nil {
		return fmt.Errorf("failed to tombstone contact: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return models.ErrContactNotFound
	}
	return nil
}

func (s *Store) loadLinks(ctx context.Context, contact *models.Contact) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT system, external_id FROM contact_links WHERE contact_id = ?
	`, contact.ID.String())
	if err != nil {
		return fmt.Errorf("failed to load links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var system, externalID string
		if err := rows.Scan(&system, &externalID); err != nil {
			return fmt.Errorf("failed to scan link: %w", err)
		}
		if contact.ExternalIDs == nil {
			contact.ExternalIDs = make(map[string]string)
		}
		contact.ExternalIDs[system] = externalID
	}
	return rows.Err()
}

func (s *Store) tenantLinks(ctx context.Context, tenantID string) (map[string]map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT contact_id, system, external_id FROM contact_links WHERE tenant_id = ?
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	links := make(map[string]map[string]string)
	for rows.Next() {
		var contactID, system, externalID string
		if err := rows.Scan(&contactID, &system, &externalID); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		if links[contactID] == nil {
			links[contactID] = make(map[string]string)
		}
		links[contactID][system] = externalID
	}
	return links, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		contact models.Contact
		id      string
		sources string
		deleted int
	)

	err := row.Scan(
		&id,
		&contact.TenantID,
		&contact.Email,
		&contact.Name,
		&contact.Phone,
		&contact.JobTitle,
		&contact.Pronouns,
		&sources,
		&deleted,
		&contact.CreatedAt,
		&contact.UpdatedAt,
		&contact.Version,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid contact id %q: %w", id, err)
	}
	contact.ID = parsed
	contact.Deleted = deleted != 0

	if err := json.Unmarshal([]byte(sources), &contact.Sources); err != nil {
		return nil, fmt.Errorf("invalid sources for %s: %w", id, err)
	}

	return &contact, nil
}

// mapWriteError turns an email uniqueness violation into
// models.ErrWriteConflict and a duplicate id into models.ErrStaleContact.
func mapWriteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique:
			return fmt.Errorf("%w: %v", models.ErrWriteConflict, err)
		case sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", models.ErrStaleContact, err)
		}
	}
	return fmt.Errorf("failed to write contact: %w", err)
}
