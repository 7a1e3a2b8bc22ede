// ABOUTME: Typed remote record with boundary validation
// ABOUTME: Parses loosely-typed CRM payloads into RemoteRecord values
package connector

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/harperreed/crmsync/models"
)

var validate = validator.New()

// RemoteRecord is one contact as seen by an external system.
type RemoteRecord struct {
	ExternalID string    `json:"externalId" validate:"required"`
	Email      string    `json:"email" validate:"required,email"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	JobTitle   string    `json:"jobTitle"`
	Pronouns   string    `json:"pronouns"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Validate checks the invariants the engine relies on.
func (r *RemoteRecord) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid remote record %q: %w", r.ExternalID, err)
	}
	return nil
}

// Fields returns the record's profile payload.
func (r *RemoteRecord) Fields() models.ContactFields {
	return models.ContactFields{
		Name:     r.Name,
		Email:    r.Email,
		Phone:    r.Phone,
		JobTitle: r.JobTitle,
		Pronouns: r.Pronouns,
	}
}

// ValidateFields checks an outbound payload before it is sent.
func ValidateFields(fields models.ContactFields) error {
	if err := validate.Var(fields.Email, "required,email"); err != nil {
		return fmt.Errorf("email %q: %w", fields.Email, err)
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC 3339 strings and Unix epoch milliseconds.
// An empty value yields the zero time.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}

	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
