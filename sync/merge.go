// ABOUTME: Merge resolver applied when a remote record matches a local contact
// ABOUTME: First link adopts provenance only; later links use last-write-wins on updatedAt
package sync

import (
	"github.com/harperreed/crmsync/connector"
	"github.com/harperreed/crmsync/models"
)

// MergeResult describes what Merge changed on the contact.
type MergeResult struct {
	// Linked is set when the contact gained its first link to the system.
	Linked bool
	// FieldsUpdated is set when a newer remote record overwrote profile fields.
	FieldsUpdated bool
	// LocalNewer is set when the local contact is newer and differs from the
	// remote record, so the remote should receive an update.
	LocalNewer bool
	// Duplicate is set when the contact is already linked to a different
	// record of the same system. Nothing is changed.
	Duplicate bool
}

// Changed reports whether the contact must be written back.
func (r MergeResult) Changed() bool {
	return r.Linked || r.FieldsUpdated
}

// Merge folds remote record r from system into contact. Sources only grow.
func Merge(contact *models.Contact, system string, r connector.RemoteRecord) MergeResult {
	linkedID, linked := contact.ExternalID(system)
	if !linked {
		contact.Link(system, r.ExternalID)
		return MergeResult{Linked: true}
	}
	if linkedID != r.ExternalID {
		return MergeResult{Duplicate: true}
	}

	if r.UpdatedAt.After(contact.UpdatedAt) {
		if applyRemoteFields(contact, r) {
			contact.UpdatedAt = r.UpdatedAt
			return MergeResult{FieldsUpdated: true}
		}
		return MergeResult{}
	}

	if contact.UpdatedAt.After(r.UpdatedAt) && fieldsDiffer(contact.Fields(), r.Fields()) {
		return MergeResult{LocalNewer: true}
	}
	return MergeResult{}
}

// applyRemoteFields copies non-empty remote values. An empty remote value
// never blanks a local one.
func applyRemoteFields(contact *models.Contact, r connector.RemoteRecord) bool {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&contact.Name, r.Name)
	set(&contact.Phone, r.Phone)
	set(&contact.JobTitle, r.JobTitle)
	set(&contact.Pronouns, r.Pronouns)
	return changed
}

func fieldsDiffer(local, remote models.ContactFields) bool {
	return local.Name != remote.Name ||
		local.Phone != remote.Phone ||
		local.JobTitle != remote.JobTitle ||
		local.Pronouns != remote.Pronouns ||
		models.NormalizeEmail(local.Email) != models.NormalizeEmail(remote.Email)
}
