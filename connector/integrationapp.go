// ABOUTME: integration.app connector for CRM contacts (HubSpot, Pipedrive, ...)
// ABOUTME: Runs list/create/update/delete-contact actions over a per-tenant connection
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/harperreed/crmsync/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultIntegrationAppURL = "https://api.integration.app"

// IntegrationAppConfig holds workspace credentials and client limits.
type IntegrationAppConfig struct {
	BaseURL         string
	WorkspaceKey    string
	WorkspaceSecret string
	TokenTTL        time.Duration
	Timeout         time.Duration
	RateLimit       float64 // requests per second, 0 disables
	Burst           int
}

// IntegrationApp talks to one connection (e.g. "hubspot") for one tenant.
type IntegrationApp struct {
	system  string
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewIntegrationApp creates a connector authenticated with a customer token.
// The limiter may be shared between tenants and may be nil.
func NewIntegrationApp(cfg IntegrationAppConfig, system, token string, limiter *rate.Limiter, logger *zap.Logger) *IntegrationApp {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultIntegrationAppURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &IntegrationApp{
		system:  system,
		client:  client,
		limiter: limiter,
		logger:  logger.With(zap.String("system", system)),
	}
}

// IntegrationAppFactory returns a factory minting a customer token per tenant.
// The connection key equals the system name.
func IntegrationAppFactory(cfg IntegrationAppConfig, system string, logger *zap.Logger) Factory {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return func(_ context.Context, tenantID string) (Connector, error) {
		token, err := CustomerToken(cfg, tenantID, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to mint customer token: %w", err)
		}
		return NewIntegrationApp(cfg, system, token, limiter, logger), nil
	}
}

func (c *IntegrationApp) Name() string { return c.system }

type actionResponse struct {
	Output json.RawMessage `json:"output"`
}

type actionError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type contactRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Fields struct {
		FullName     string `json:"fullName"`
		PrimaryEmail string `json:"primaryEmail"`
		PrimaryPhone string `json:"primaryPhone"`
		JobTitle     string `json:"jobTitle"`
		Pronouns     string `json:"pronouns"`
	} `json:"fields"`
	UpdatedTime string `json:"updatedTime"`
	UpdatedAt   string `json:"updatedAt"`
}

type listOutput struct {
	Records []contactRecord `json:"records"`
	Cursor  string          `json:"cursor"`
}

type listInput struct {
	Cursor string            `json:"cursor,omitempty"`
	Filter map[string]string `json:"filter,omitempty"`
}

type contactInput struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	JobTitle string `json:"jobTitle"`
	Pronouns string `json:"pronouns"`
}

type idOutput struct {
	ID string `json:"id"`
}

const maxListPages = 1000

// List pages through list-contacts. A failure on any page fails the whole
// list so that callers never mistake a partial result for remote deletions.
func (c *IntegrationApp) List(ctx context.Context) ([]RemoteRecord, error) {
	var records []RemoteRecord
	cursor := ""
	for page := 0; page < maxListPages; page++ {
		var out listOutput
		if err := c.runAction(ctx, "list-contacts", listInput{Cursor: cursor}, &out); err != nil {
			return nil, err
		}

		records = append(records, c.convert(out.Records)...)

		if out.Cursor == "" || out.Cursor == cursor {
			return records, nil
		}
		cursor = out.Cursor
	}
	return nil, Unavailable(c.system, fmt.Errorf("list-contacts exceeded %d pages", maxListPages))
}

// FindByEmail runs list-contacts with an email filter. The match is re-checked
// case-insensitively since filters are applied by the remote CRM.
func (c *IntegrationApp) FindByEmail(ctx context.Context, email string) (*RemoteRecord, error) {
	var out listOutput
	if err := c.runAction(ctx, "list-contacts", listInput{Filter: map[string]string{"email": email}}, &out); err != nil {
		return nil, err
	}

	want := models.NormalizeEmail(email)
	for _, r := range c.convert(out.Records) {
		if models.NormalizeEmail(r.Email) == want {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

func (c *IntegrationApp) Create(ctx context.Context, fields models.ContactFields) (string, error) {
	if err := ValidateFields(fields); err != nil {
		return "", Rejected(c.system, err)
	}

	var out idOutput
	if err := c.runAction(ctx, "create-contact", toContactInput("", fields), &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", Rejected(c.system, fmt.Errorf("create-contact returned no id"))
	}
	return out.ID, nil
}

func (c *IntegrationApp) Update(ctx context.Context, externalID string, fields models.ContactFields) error {
	if err := ValidateFields(fields); err != nil {
		return Rejected(c.system, err)
	}
	return c.runAction(ctx, "update-contact", toContactInput(externalID, fields), nil)
}

func (c *IntegrationApp) Delete(ctx context.Context, externalID string) error {
	return c.runAction(ctx, "delete-contact", idOutput{ID: externalID}, nil)
}

func (c *IntegrationApp) runAction(ctx context.Context, action string, input any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Unavailable(c.system, err)
		}
	}

	path := fmt.Sprintf("/connections/%s/actions/%s/run", c.system, action)
	c.logger.Debug("Running integration action", zap.String("action", action))

	var result actionResponse
	var apiErr actionError
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(input).
		SetResult(&result).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return Unavailable(c.system, fmt.Errorf("%s: %w", action, err))
	}

	if resp.IsError() {
		detail := apiErr.Message
		if detail == "" {
			detail = strings.TrimSpace(resp.String())
		}
		cause := fmt.Errorf("%s: status %d: %s", action, resp.StatusCode(), detail)

		c.logger.Warn("Integration action failed",
			zap.String("action", action),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("detail", detail),
		)

		switch resp.StatusCode() {
		case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusConflict:
			return Rejected(c.system, cause)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %v", c.system, ErrNotFound, cause)
		default:
			return Unavailable(c.system, cause)
		}
	}

	if out == nil || len(result.Output) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Output, out); err != nil {
		return Unavailable(c.system, fmt.Errorf("%s: failed to decode output: %w", action, err))
	}
	return nil
}

func (c *IntegrationApp) convert(in []contactRecord) []RemoteRecord {
	records := make([]RemoteRecord, 0, len(in))
	for _, raw := range in {
		updated := raw.UpdatedTime
		if updated == "" {
			updated = raw.UpdatedAt
		}
		updatedAt, err := ParseTimestamp(updated)
		if err != nil {
			c.logger.Warn("Skipping record with bad timestamp", zap.String("external_id", raw.ID), zap.Error(err))
			continue
		}

		name := raw.Name
		if name == "" {
			name = raw.Fields.FullName
		}

		record := RemoteRecord{
			ExternalID: raw.ID,
			Email:      raw.Fields.PrimaryEmail,
			Name:       name,
			Phone:      raw.Fields.PrimaryPhone,
			JobTitle:   raw.Fields.JobTitle,
			Pronouns:   raw.Fields.Pronouns,
			UpdatedAt:  updatedAt,
		}
		if err := record.Validate(); err != nil {
			c.logger.Debug("Skipping invalid record", zap.String("external_id", raw.ID), zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records
}

func toContactInput(id string, fields models.ContactFields) contactInput {
	return contactInput{
		ID:       id,
		Name:     fields.Name,
		Email:    fields.Email,
		Phone:    fields.Phone,
		JobTitle: fields.JobTitle,
		Pronouns: fields.Pronouns,
	}
}

var (
	_ Connector   = (*IntegrationApp)(nil)
	_ EmailLookup = (*IntegrationApp)(nil)
)
