package sync

import (
	"testing"
	"time"

	"github.com/harperreed/crmsync/connector"
	"github.com/harperreed/crmsync/models"
	"github.com/stretchr/testify/assert"
)

func mergeFixture(at time.Time) *models.Contact {
	return &models.Contact{
		Email:     "ada@example.com",
		Name:      "Ada Lovelace",
		Phone:     "555-0100",
		JobTitle:  "Analyst",
		Sources:   []string{models.SystemLocal},
		UpdatedAt: at,
	}
}

func TestMerge(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		linkedID string
		remote   connector.RemoteRecord
		want     MergeResult
		wantName string
		wantAt   time.Time
	}{
		{
			name:     "first link keeps fields",
			remote:   connector.RemoteRecord{ExternalID: "h-1", Email: "ada@example.com", Name: "Other", UpdatedAt: t0.Add(time.Hour)},
			want:     MergeResult{Linked: true},
			wantName: "Ada Lovelace",
			wantAt:   t0,
		},
		{
			name:     "newer remote overwrites",
			linkedID: "h-1",
			remote:   connector.RemoteRecord{ExternalID: "h-1", Email: "ada@example.com", Name: "Ada King", Phone: "555-0100", JobTitle: "Analyst", UpdatedAt: t0.Add(time.Hour)},
			want:     MergeResult{FieldsUpdated: true},
			wantName: "Ada King",
			wantAt:   t0.Add(time.Hour),
		},
		{
			name:     "newer remote with same values is a no-op",
			linkedID: "h-1",
			remote:   connector.RemoteRecord{ExternalID: "h-1", Email: "ada@example.com", Name: "Ada Lovelace", UpdatedAt: t0.Add(time.Hour)},
			want:     MergeResult{},
			wantName: "Ada Lovelace",
			wantAt:   t0,
		},
		{
			name:     "older remote that differs asks for a push",
			linkedID: "h-1",
			remote:   connector.RemoteRecord{ExternalID: "h-1", Email: "ada@example.com", Name: "Stale", UpdatedAt: t0.Add(-time.Hour)},
			want:     MergeResult{LocalNewer: true},
			wantName: "Ada Lovelace",
			wantAt:   t0,
		},
		{
			name:     "older remote that matches needs nothing",
			linkedID: "h-1",
			remote:   connector.RemoteRecord{ExternalID: "h-1", Email: "ADA@example.com", Name: "Ada Lovelace", Phone: "555-0100", JobTitle: "Analyst", UpdatedAt: t0.Add(-time.Hour)},
			want:     MergeResult{},
			wantName: "Ada Lovelace",
			wantAt:   t0,
		},
		{
			name:     "different record of the same system",
			linkedID: "h-1",
			remote:   connector.RemoteRecord{ExternalID: "h-2", Email: "ada@example.com", Name: "Dup", UpdatedAt: t0.Add(time.Hour)},
			want:     MergeResult{Duplicate: true},
			wantName: "Ada Lovelace",
			wantAt:   t0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contact := mergeFixture(t0)
			if tt.linkedID != "" {
				contact.Link("hubspot", tt.linkedID)
			}

			got := Merge(contact, "hubspot", tt.remote)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantName, contact.Name)
			assert.True(t, tt.wantAt.Equal(contact.UpdatedAt), "updatedAt = %v, want %v", contact.UpdatedAt, tt.wantAt)
			assert.True(t, contact.HasSource("hubspot") || tt.want.Duplicate)
			assert.True(t, contact.HasSource(models.SystemLocal), "sources never shrink")
		})
	}
}

func TestMergeKeepsLocalValuesForEmptyRemoteFields(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	contact := mergeFixture(t0)
	contact.Link("hubspot", "h-1")

	res := Merge(contact, "hubspot", connector.RemoteRecord{ExternalID: "h-1", Email: "ada@example.com", Pronouns: "she/her", UpdatedAt: t0.Add(time.Minute)})

	assert.True(t, res.FieldsUpdated)
	assert.Equal(t, "Ada Lovelace", contact.Name)
	assert.Equal(t, "555-0100", contact.Phone)
	assert.Equal(t, "Analyst", contact.JobTitle)
	assert.Equal(t, "she/her", contact.Pronouns)
}
