// ABOUTME: Contact MCP tool handlers
// ABOUTME: Implements list_contacts, save_contact, update_contact and delete_contact tools
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ContactHandlers serve contact tools for one tenant.
type ContactHandlers struct {
	service *sync.ContactService
	tenant  string
}

func NewContactHandlers(service *sync.ContactService, tenant string) *ContactHandlers {
	return &ContactHandlers{service: service, tenant: tenant}
}

type ContactOutput struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Phone       string            `json:"phone,omitempty"`
	JobTitle    string            `json:"job_title,omitempty"`
	Pronouns    string            `json:"pronouns,omitempty"`
	Sources     []string          `json:"sources"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	UpdatedAt   string            `json:"updated_at"`
}

type ListContactsInput struct {
	Source string `json:"source,omitempty" jsonschema:"Only return contacts known to this system (e.g. hubspot)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default all)"`
}

type ListContactsOutput struct {
	Contacts []ContactOutput `json:"contacts"`
	Count    int             `json:"count"`
}

func (h *ContactHandlers) ListContacts(ctx context.Context, _ *mcp.CallToolRequest, input ListContactsInput) (*mcp.CallToolResult, ListContactsOutput, error) {
	contacts, err := h.service.List(ctx, h.tenant)
	if err != nil {
		return nil, ListContactsOutput{}, err
	}

	result := make([]ContactOutput, 0, len(contacts))
	for i := range contacts {
		if input.Source != "" && !contacts[i].HasSource(input.Source) {
			continue
		}
		result = append(result, contactToOutput(&contacts[i]))
		if input.Limit > 0 && len(result) == input.Limit {
			break
		}
	}

	return nil, ListContactsOutput{Contacts: result, Count: len(result)}, nil
}

type SaveContactInput struct {
	Name     string `json:"name" jsonschema:"Contact name (required)"`
	Email    string `json:"email" jsonschema:"Contact email address, the matching key (required)"`
	Phone    string `json:"phone,omitempty" jsonschema:"Contact phone number"`
	JobTitle string `json:"job_title,omitempty" jsonschema:"Job title"`
	Pronouns string `json:"pronouns,omitempty" jsonschema:"Pronouns"`
}

type SaveContactOutput struct {
	Contact ContactOutput    `json:"contact"`
	Created bool             `json:"created"`
	Push    *sync.PushReport `json:"push,omitempty"`
}

// SaveContact creates or updates a contact by email and pushes it out.
func (h *ContactHandlers) SaveContact(ctx context.Context, _ *mcp.CallToolRequest, input SaveContactInput) (*mcp.CallToolResult, SaveContactOutput, error) {
	result, err := h.service.Save(ctx, h.tenant, sync.ContactInput{
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		JobTitle: input.JobTitle,
		Pronouns: input.Pronouns,
	})
	if err != nil {
		return nil, SaveContactOutput{}, fmt.Errorf("failed to save contact: %w", err)
	}

	return nil, SaveContactOutput{Contact: contactToOutput(result.Contact), Created: result.Created, Push: result.Push}, nil
}

type UpdateContactInput struct {
	ID       string  `json:"id" jsonschema:"Contact ID (required)"`
	Name     *string `json:"name,omitempty" jsonschema:"New name"`
	Email    *string `json:"email,omitempty" jsonschema:"New email address"`
	Phone    *string `json:"phone,omitempty" jsonschema:"New phone number"`
	JobTitle *string `json:"job_title,omitempty" jsonschema:"New job title"`
	Pronouns *string `json:"pronouns,omitempty" jsonschema:"New pronouns"`
}

func (h *ContactHandlers) UpdateContact(ctx context.Context, _ *mcp.CallToolRequest, input UpdateContactInput) (*mcp.CallToolResult, SaveContactOutput, error) {
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return nil, SaveContactOutput{}, fmt.Errorf("invalid contact ID: %w", err)
	}

	result, err := h.service.Update(ctx, h.tenant, id, sync.ContactPatch{
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		JobTitle: input.JobTitle,
		Pronouns: input.Pronouns,
	})
	if err != nil {
		return nil, SaveContactOutput{}, fmt.Errorf("failed to update contact: %w", err)
	}

	return nil, SaveContactOutput{Contact: contactToOutput(result.Contact), Push: result.Push}, nil
}

type DeleteContactInput struct {
	ID    string `json:"id,omitempty" jsonschema:"Contact ID"`
	Email string `json:"email,omitempty" jsonschema:"Contact email, used when no ID is given"`
}

type DeleteContactOutput struct {
	ID             string            `json:"id"`
	Email          string            `json:"email"`
	RemoteDeleted  []string          `json:"remote_deleted"`
	RemoteFailures map[string]string `json:"remote_failures,omitempty"`
}

// DeleteContact removes a contact locally and from every linked system.
func (h *ContactHandlers) DeleteContact(ctx context.Context, _ *mcp.CallToolRequest, input DeleteContactInput) (*mcp.CallToolResult, DeleteContactOutput, error) {
	var result *sync.DeleteResult
	var err error

	switch {
	case input.ID != "":
		id, parseErr := uuid.Parse(input.ID)
		if parseErr != nil {
			return nil, DeleteContactOutput{}, fmt.Errorf("invalid contact ID: %w", parseErr)
		}
		result, err = h.service.Delete(ctx, h.tenant, id)
	case input.Email != "":
		result, err = h.service.DeleteByEmail(ctx, h.tenant, input.Email)
	default:
		return nil, DeleteContactOutput{}, fmt.Errorf("id or email is required")
	}
	if err != nil {
		return nil, DeleteContactOutput{}, fmt.Errorf("failed to delete contact: %w", err)
	}

	return nil, DeleteContactOutput{
		ID:             result.ContactID.String(),
		Email:          result.Email,
		RemoteDeleted:  result.RemoteDeleted,
		RemoteFailures: result.RemoteFailures,
	}, nil
}

func contactToOutput(contact *models.Contact) ContactOutput {
	return ContactOutput{
		ID:          contact.ID.String(),
		Name:        contact.Name,
		Email:       contact.Email,
		Phone:       contact.Phone,
		JobTitle:    contact.JobTitle,
		Pronouns:    contact.Pronouns,
		Sources:     contact.Sources,
		ExternalIDs: contact.ExternalIDs,
		UpdatedAt:   contact.UpdatedAt.Format(time.RFC3339),
	}
}
