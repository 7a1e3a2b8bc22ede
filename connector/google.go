// ABOUTME: Google Contacts connector over the People API
// ABOUTME: Maps people/me connections to remote records and back
package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/harperreed/crmsync/models"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"
)

// SystemGoogle is the provenance name of the Google Contacts connector.
const SystemGoogle = "google"

const (
	personReadFields  = "names,emailAddresses,phoneNumbers,organizations,metadata"
	personWriteFields = "names,emailAddresses,phoneNumbers,organizations"
)

// Google reads and writes the authenticated user's contacts.
type Google struct {
	service *people.Service
	logger  *zap.Logger
}

// NewGoogle wraps an existing People service.
func NewGoogle(service *people.Service, logger *zap.Logger) *Google {
	return &Google{service: service, logger: logger.With(zap.String("system", SystemGoogle))}
}

// GoogleFactory loads the stored OAuth token for every session. The token
// belongs to a single Google account, so all tenants share it.
func GoogleFactory(cfg GoogleConfig, logger *zap.Logger, opts ...option.ClientOption) Factory {
	return func(ctx context.Context, _ string) (Connector, error) {
		token, err := LoadToken(cfg.tokenPath())
		if err != nil {
			return nil, fmt.Errorf("no Google token, run 'crmsync auth google': %w", err)
		}

		client := NewOAuthConfig(cfg).Client(context.Background(), token)
		clientOpts := append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
		service, err := people.NewService(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create People service: %w", err)
		}
		return NewGoogle(service, logger), nil
	}
}

func (g *Google) Name() string { return SystemGoogle }

func (g *Google) List(ctx context.Context) ([]RemoteRecord, error) {
	var records []RemoteRecord
	pageToken := ""

	for {
		call := g.service.People.Connections.List("people/me").
			PageSize(1000).
			PersonFields(personReadFields).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		response, err := call.Do()
		if err != nil {
			return nil, g.classify("list", err)
		}
		if response == nil {
			break
		}

		for _, person := range response.Connections {
			record := convertPerson(person)
			if err := record.Validate(); err != nil {
				g.logger.Debug("Skipping invalid person", zap.String("resource", person.ResourceName), zap.Error(err))
				continue
			}
			records = append(records, record)
		}

		pageToken = response.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return records, nil
}

func (g *Google) Create(ctx context.Context, fields models.ContactFields) (string, error) {
	if err := ValidateFields(fields); err != nil {
		return "", Rejected(SystemGoogle, err)
	}

	created, err := g.service.People.CreateContact(toPerson(fields)).Context(ctx).Do()
	if err != nil {
		return "", g.classify("create", err)
	}
	return created.ResourceName, nil
}

func (g *Google) Update(ctx context.Context, externalID string, fields models.ContactFields) error {
	if err := ValidateFields(fields); err != nil {
		return Rejected(SystemGoogle, err)
	}

	// Updates must carry the current etag
	current, err := g.service.People.Get(externalID).PersonFields("metadata").Context(ctx).Do()
	if err != nil {
		return g.classify("get", err)
	}

	person := toPerson(fields)
	person.Etag = current.Etag
	_, err = g.service.People.UpdateContact(externalID, person).
		UpdatePersonFields(personWriteFields).
		Context(ctx).
		Do()
	if err != nil {
		return g.classify("update", err)
	}
	return nil
}

func (g *Google) Delete(ctx context.Context, externalID string) error {
	if _, err := g.service.People.DeleteContact(externalID).Context(ctx).Do(); err != nil {
		return g.classify("delete", err)
	}
	return nil
}

func (g *Google) classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest:
			return Rejected(SystemGoogle, fmt.Errorf("%s: %w", op, err))
		case http.StatusNotFound:
			return fmt.Errorf("%s %s: %w: %v", SystemGoogle, op, ErrNotFound, err)
		}
	}
	return Unavailable(SystemGoogle, fmt.Errorf("%s: %w", op, err))
}

// convertPerson maps a People API person, preferring primary values.
func convertPerson(person *people.Person) RemoteRecord {
	record := RemoteRecord{ExternalID: person.ResourceName}

	if len(person.Names) > 0 {
		record.Name = person.Names[0].DisplayName
	}

	for _, email := range person.EmailAddresses {
		if email.Value == "" {
			continue
		}
		if record.Email == "" {
			record.Email = email.Value
		}
		if email.Metadata != nil && email.Metadata.Primary {
			record.Email = email.Value
			break
		}
	}

	for _, phone := range person.PhoneNumbers {
		if phone.Value == "" {
			continue
		}
		if record.Phone == "" {
			record.Phone = phone.Value
		}
		if phone.Metadata != nil && phone.Metadata.Primary {
			record.Phone = phone.Value
			break
		}
	}

	if len(person.Organizations) > 0 {
		record.JobTitle = person.Organizations[0].Title
	}

	if person.Metadata != nil {
		for _, source := range person.Metadata.Sources {
			updated, err := time.Parse(time.RFC3339Nano, source.UpdateTime)
			if err == nil && updated.After(record.UpdatedAt) {
				record.UpdatedAt = updated.UTC()
			}
		}
	}

	return record
}

func toPerson(fields models.ContactFields) *people.Person {
	person := &people.Person{
		Names:          []*people.Name{{UnstructuredName: fields.Name}},
		EmailAddresses: []*people.EmailAddress{{Value: fields.Email}},
	}
	if fields.Phone != "" {
		person.PhoneNumbers = []*people.PhoneNumber{{Value: fields.Phone}}
	}
	if fields.JobTitle != "" {
		person.Organizations = []*people.Organization{{Title: fields.JobTitle}}
	}
	return person
}

var _ Connector = (*Google)(nil)
