// ABOUTME: Embedded key-value contact store backed by BadgerDB
// ABOUTME: Implements the same tenant-scoped contract as the SQLite store for single-binary deployments
package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/harperreed/crmsync/models"
)

const sep = "\x00"

// Store wraps a BadgerDB handle. Secondary indexes (email, external id) are
// maintained inside the same transaction as the contact document.
type Store struct {
	db *badger.DB
	mu sync.RWMutex
}

// Open opens (or creates) a store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return open(badger.DefaultOptions(dir).WithLogger(nil))
}

// OpenInMemory opens a store that lives only for the process lifetime.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return ctx.Err()
}

func key(parts ...string) []byte {
	return []byte(strings.Join(parts, sep))
}

func prefix(parts ...string) []byte {
	return append(key(parts...), sep...)
}

func contactKey(tenantID string, id uuid.UUID) []byte {
	return key("contact", tenantID, id.String())
}

func emailKey(tenantID, email string) []byte {
	return key("email", tenantID, models.NormalizeEmail(email))
}

func externalKey(tenantID, system, externalID string) []byte {
	return key("ext", tenantID, system, externalID)
}

func (s *Store) GetContact(ctx context.Context, tenantID string, id uuid.UUID) (*models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var contact *models.Contact
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		contact, err = getContact(txn, contactKey(tenantID, id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return contact, nil
}

func (s *Store) FindActiveByEmail(ctx context.Context, tenantID, email string) (*models.Contact, error) {
	return s.findByIndex(ctx, tenantID, emailKey(tenantID, email))
}

func (s *Store) FindActiveByExternalID(ctx context.Context, tenantID, system, externalID string) (*models.Contact, error) {
	return s.findByIndex(ctx, tenantID, externalKey(tenantID, system, externalID))
}

func (s *Store) findByIndex(ctx context.Context, tenantID string, indexKey []byte) (*models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var contact *models.Contact
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := getString(txn, indexKey)
		if err != nil || id == "" {
			return err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("corrupt index entry %q: %w", id, err)
		}
		contact, err = getContact(txn, contactKey(tenantID, parsed))
		if contact != nil && contact.Deleted {
			contact = nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}
	return contact, nil
}

// ListActive returns every non-tombstoned contact of the tenant, newest first.
func (s *Store) ListActive(ctx context.Context, tenantID string) ([]models.Contact, error) {
	all, err := s.scanContacts(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	active := slices.DeleteFunc(all, func(c models.Contact) bool { return c.Deleted })
	slices.SortFunc(active, func(a, b models.Contact) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return active, nil
}

func (s *Store) ListTombstonedEmails(ctx context.Context, tenantID string) ([]string, error) {
	all, err := s.scanContacts(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var emails []string
	for _, c := range all {
		if c.Deleted {
			emails = append(emails, c.NormalizedEmail())
		}
	}
	slices.Sort(emails)
	return slices.Compact(emails), nil
}

func (s *Store) scanContacts(ctx context.Context, tenantID string) ([]models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var contacts []models.Contact
	p := prefix("contact", tenantID)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			var c models.Contact
			if err := it.Item().Value(func(val []byte) error {
				return decodeContact(val, &c)
			}); err != nil {
				return fmt.Errorf("failed to decode %q: %w", it.Item().Key(), err)
			}
			contacts = append(contacts, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}

// Upsert writes the contact and refreshes its indexes, then bumps
// contact.Version. Returns models.ErrWriteConflict when another active
// contact owns the email or a concurrent transaction touched the same keys,
// and models.ErrStaleContact when the stored document moved past the version
// the caller read. A tombstoned contact is never revived.
func (s *Store) Upsert(ctx context.Context, contact *models.Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

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

	s.mu.RLock()
	defer s.mu.RUnlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		ck := contactKey(contact.TenantID, contact.ID)
		existing, err := getContact(txn, ck)
		if err != nil {
			return err
		}
		stale := existing == nil && contact.Version != 0 ||
			existing != nil && (existing.Deleted || existing.Version != contact.Version)
		if stale {
			return models.ErrStaleContact
		}

		ek := emailKey(contact.TenantID, contact.Email)
		owner, err := getString(txn, ek)
		if err != nil {
			return err
		}
		if owner != "" && owner != contact.ID.String() {
			return models.ErrWriteConflict
		}

		if existing != nil {
			if existing.NormalizedEmail() != contact.NormalizedEmail() {
				if err := txn.Delete(emailKey(existing.TenantID, existing.Email)); err != nil {
					return err
				}
			}
			for system, id := range existing.ExternalIDs {
				if err := txn.Delete(externalKey(existing.TenantID, system, id)); err != nil {
					return err
				}
			}
		}

		stored := contact.Clone()
		stored.Deleted = false
		stored.Version = contact.Version + 1
		if err := putJSON(txn, ck, stored); err != nil {
			return err
		}
		if err := txn.Set(ek, []byte(contact.ID.String())); err != nil {
			return err
		}
		for _, system := range contact.LinkedSystems() {
			if err := txn.Set(externalKey(contact.TenantID, system, contact.ExternalIDs[system]), []byte(contact.ID.String())); err != nil {
				return err
			}
		}
		return nil
	})

	switch {
	case err == nil:
		contact.Version++
		return nil
	case errors.Is(err, models.ErrStaleContact):
		return fmt.Errorf("%w: %s at version %d", models.ErrStaleContact, contact.ID, contact.Version)
	case errors.Is(err, models.ErrWriteConflict), errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %v", models.ErrWriteConflict, err)
	default:
		return fmt.Errorf("failed to write contact: %w", err)
	}
}

// Tombstone marks the contact deleted and drops it from the active indexes.
func (s *Store) Tombstone(ctx context.Context, tenantID string, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.Update(func(txn *badger.Txn) error {
		ck := contactKey(tenantID, id)
		contact, err := getContact(txn, ck)
		if err != nil {
			return fmt.Errorf("failed to load contact: %w", err)
		}
		if contact == nil {
			return models.ErrContactNotFound
		}

		contact.Deleted = true
		contact.UpdatedAt = time.Now().UTC()
		contact.Version++
		if err := putJSON(txn, ck, contact); err != nil {
			return err
		}

		ek := emailKey(tenantID, contact.Email)
		owner, err := getString(txn, ek)
		if err != nil {
			return err
		}
		if owner == id.String() {
			if err := txn.Delete(ek); err != nil {
				return err
			}
		}
		for system, externalID := range contact.ExternalIDs {
			if err := txn.Delete(externalKey(tenantID, system, externalID)); err != nil {
				return err
			}
		}
		return nil
	})
}

func getContact(txn *badger.Txn, k []byte) (*models.Contact, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var contact models.Contact
	if err := item.Value(func(val []byte) error {
		return decodeContact(val, &contact)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode contact: %w", err)
	}
	return &contact, nil
}

// decodeContact reads a stored document. Documents written before contacts
// carried a version count as version 1.
func decodeContact(val []byte, contact *models.Contact) error {
	if err := json.Unmarshal(val, contact); err != nil {
		return err
	}
	if contact.Version == 0 {
		contact.Version = 1
	}
	return nil
}

func getString(txn *badger.Txn, k []byte) (string, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	return string(val), err
}

func putJSON(txn *badger.Txn, k []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", bytes.ReplaceAll(k, []byte(sep), []byte("/")), err)
	}
	return txn.Set(k, data)
}
