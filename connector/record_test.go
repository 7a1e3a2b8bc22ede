package connector

import (
	"testing"
	"time"

	"github.com/harperreed/crmsync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		record  RemoteRecord
		wantErr bool
	}{
		{"valid", RemoteRecord{ExternalID: "1", Email: "a@example.com"}, false},
		{"trims email", RemoteRecord{ExternalID: "1", Email: "  a@example.com "}, false},
		{"missing id", RemoteRecord{Email: "a@example.com"}, true},
		{"missing email", RemoteRecord{ExternalID: "1"}, true},
		{"malformed email", RemoteRecord{ExternalID: "1", Email: "nope"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"", time.Time{}},
		{"2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01T12:00:00.5+02:00", time.Date(2024, 5, 1, 10, 0, 0, 500000000, time.UTC)},
		{"1714557600000", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01 10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := ParseTimestamp(tt.input)
		require.NoError(t, err, tt.input)
		assert.True(t, tt.want.Equal(got), "ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestValidateFields(t *testing.T) {
	assert.NoError(t, ValidateFields(models.ContactFields{Email: "ok@example.com"}))
	assert.Error(t, ValidateFields(models.ContactFields{Email: ""}))
}

func TestKind(t *testing.T) {
	assert.Equal(t, "unavailable", Kind(Unavailable("hubspot", assert.AnError)))
	assert.Equal(t, "rejected", Kind(Rejected("hubspot", assert.AnError)))
	assert.Equal(t, "other", Kind(assert.AnError))
	assert.Equal(t, "none", Kind(nil))
}
