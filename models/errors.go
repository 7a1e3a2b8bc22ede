// ABOUTME: Sentinel errors shared by the contact stores
// ABOUTME: Lets the engine classify store failures without importing a concrete store
package models

import "errors"

var (
	// ErrContactNotFound is returned when no contact matches the lookup.
	ErrContactNotFound = errors.New("contact not found")

	// ErrWriteConflict is returned by Upsert when another active contact
	// already owns the (tenant, email) key.
	ErrWriteConflict = errors.New("write conflict: email already in use")

	// ErrStaleContact is returned by Upsert when the stored contact was
	// written or tombstoned after the caller read it.
	ErrStaleContact = errors.New("stale write: contact changed since it was read")
)
