// ABOUTME: Tests for contact data models
// ABOUTME: Validates provenance helpers, email normalization, and outbound fields
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Alice@Example.com", "alice@example.com"},
		{"  bob@example.com ", "bob@example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeEmail(tt.input))
	}
}

func TestLinkAddsSourceAndID(t *testing.T) {
	c := &Contact{Sources: []string{SystemLocal}}

	c.Link("hubspot", "h-1")

	id, ok := c.ExternalID("hubspot")
	assert.True(t, ok)
	assert.Equal(t, "h-1", id)
	assert.Equal(t, []string{"hubspot", SystemLocal}, c.Sources)
}

func TestLinkIsIdempotent(t *testing.T) {
	c := &Contact{Sources: []string{SystemLocal}}

	c.Link("hubspot", "h-1")
	c.Link("hubspot", "h-1")

	assert.Len(t, c.Sources, 2)
}

func TestUnlinkFallsBackToLocal(t *testing.T) {
	c := &Contact{}
	c.Link("pipedrive", "p-1")
	assert.Equal(t, []string{"pipedrive"}, c.Sources)

	c.Unlink("pipedrive")

	_, ok := c.ExternalID("pipedrive")
	assert.False(t, ok)
	assert.Equal(t, []string{SystemLocal}, c.Sources)
}

func TestLinkedSystems(t *testing.T) {
	c := &Contact{ExternalIDs: map[string]string{"pipedrive": "p", "hubspot": "h", "google": ""}}

	assert.Equal(t, []string{"hubspot", "pipedrive"}, c.LinkedSystems())
}

func TestFieldsDropsPhonePlaceholder(t *testing.T) {
	c := &Contact{Name: "Ada", Email: "ada@example.com", Phone: DefaultPhone, JobTitle: "Engineer"}

	fields := c.Fields()

	assert.Empty(t, fields.Phone)
	assert.Equal(t, "Engineer", fields.JobTitle)
}

func TestCloneIsDeep(t *testing.T) {
	original := &Contact{Sources: []string{SystemLocal}}
	original.Link("hubspot", "h-1")

	cp := original.Clone()
	cp.Unlink("hubspot")

	_, ok := original.ExternalID("hubspot")
	assert.True(t, ok, "mutating the clone must not touch the original")
	assert.True(t, original.HasSource("hubspot"))
}
