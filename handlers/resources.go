// ABOUTME: MCP resource handlers exposing contacts and sync state
// ABOUTME: Serves crmsync://contacts and crmsync://status as JSON
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harperreed/crmsync/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	contactsURI = "crmsync://contacts"
	statusURI   = "crmsync://status"
)

type ResourceHandlers struct {
	service *sync.ContactService
	tenant  string
}

func NewResourceHandlers(service *sync.ContactService, tenant string) *ResourceHandlers {
	return &ResourceHandlers{service: service, tenant: tenant}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI

	switch uri {
	case contactsURI:
		contacts, err := h.service.List(ctx, h.tenant)
		if err != nil {
			return nil, err
		}
		out := make([]ContactOutput, 0, len(contacts))
		for i := range contacts {
			out = append(out, contactToOutput(&contacts[i]))
		}
		return jsonResource(uri, out)

	case statusURI:
		status, err := h.service.Status(ctx, h.tenant, 10)
		if err != nil {
			return nil, err
		}
		return jsonResource(uri, statusToOutput(status))

	default:
		return nil, fmt.Errorf("unknown resource: %s", uri)
	}
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
