// ABOUTME: Data models for the contact sync engine
// ABOUTME: Defines Contact with provenance helpers, sync state and run records
package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SystemLocal is the provenance name of the local system of record.
const SystemLocal = "local"

// DefaultPhone is stored when a contact arrives without a phone number.
const DefaultPhone = "(No phone)"

type Contact struct {
	ID          uuid.UUID         `json:"id"`
	TenantID    string            `json:"tenant_id"`
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Phone       string            `json:"phone"`
	JobTitle    string            `json:"job_title,omitempty"`
	Pronouns    string            `json:"pronouns,omitempty"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	Sources     []string          `json:"sources"`
	Deleted     bool              `json:"deleted,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	// Version is bumped by the store on every write. Zero means not yet stored.
	Version int64 `json:"version"`
}

// ContactFields is the profile payload exchanged with external systems.
type ContactFields struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	JobTitle string `json:"jobTitle"`
	Pronouns string `json:"pronouns"`
}

// NormalizeEmail converts email to its matching key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizedEmail returns the contact's matching key.
func (c *Contact) NormalizedEmail() string {
	return NormalizeEmail(c.Email)
}

// ExternalID returns the identifier the contact has in system, if linked.
func (c *Contact) ExternalID(system string) (string, bool) {
	id, ok := c.ExternalIDs[system]
	return id, ok && id != ""
}

// HasSource reports whether system is part of the contact's provenance.
func (c *Contact) HasSource(system string) bool {
	return slices.Contains(c.Sources, system)
}

// Link records the contact's identifier in system and adds system to its sources.
func (c *Contact) Link(system, externalID string) {
	if c.ExternalIDs == nil {
		c.ExternalIDs = make(map[string]string)
	}
	c.ExternalIDs[system] = externalID
	c.AddSource(system)
}

// Unlink removes system from both the identifier map and the sources.
// The sources never become empty; they fall back to local.
func (c *Contact) Unlink(system string) {
	delete(c.ExternalIDs, system)
	c.Sources = slices.DeleteFunc(c.Sources, func(s string) bool { return s == system })
	if len(c.Sources) == 0 {
		c.Sources = []string{SystemLocal}
	}
}

// AddSource unions system into the sources, keeping them sorted.
func (c *Contact) AddSource(system string) {
	if c.HasSource(system) {
		return
	}
	c.Sources = append(c.Sources, system)
	slices.Sort(c.Sources)
}

// LinkedSystems returns the remote systems the contact is linked to, sorted.
func (c *Contact) LinkedSystems() []string {
	systems := make([]string, 0, len(c.ExternalIDs))
	for system, id := range c.ExternalIDs {
		if id != "" {
			systems = append(systems, system)
		}
	}
	slices.Sort(systems)
	return systems
}

// Fields returns the outbound profile payload. The phone placeholder is not sent.
func (c *Contact) Fields() ContactFields {
	phone := c.Phone
	if phone == DefaultPhone {
		phone = ""
	}
	return ContactFields{
		Name:     c.Name,
		Email:    c.Email,
		Phone:    phone,
		JobTitle: c.JobTitle,
		Pronouns: c.Pronouns,
	}
}

// Clone returns a deep copy safe to mutate.
func (c *Contact) Clone() *Contact {
	cp := *c
	cp.Sources = slices.Clone(c.Sources)
	if c.ExternalIDs != nil {
		cp.ExternalIDs = make(map[string]string, len(c.ExternalIDs))
		for k, v := range c.ExternalIDs {
			cp.ExternalIDs[k] = v
		}
	}
	return &cp
}

// Sync state statuses.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

// SyncState is the last known status of one tenant's link to one system.
type SyncState struct {
	TenantID      string     `json:"tenant_id"`
	System        string     `json:"system"`
	Status        string     `json:"status"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Sync run outcomes.
const (
	RunOutcomeCompleted = "completed"
	RunOutcomeAborted   = "aborted"
)

// SyncRun is the persisted record of one reconciliation cycle.
type SyncRun struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Outcome    string    `json:"outcome"`
	Summary    string    `json:"summary"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
