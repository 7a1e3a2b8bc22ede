// ABOUTME: MCP server assembly
// ABOUTME: Registers contact and sync tools, resources and prompts for one tenant
package handlers

import (
	"time"

	"github.com/harperreed/crmsync/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer builds an MCP server bound to tenant.
func NewServer(service *sync.ContactService, tenant, version string, syncTimeout time.Duration) *mcp.Server {
	contactHandlers := NewContactHandlers(service, tenant)
	syncHandlers := NewSyncHandlers(service, tenant, syncTimeout)
	resourceHandlers := NewResourceHandlers(service, tenant)
	promptHandlers := NewPromptHandlers(service, tenant)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "crmsync",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_contacts",
		Description: "List local contacts, optionally only those known to one external system",
	}, contactHandlers.ListContacts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_contact",
		Description: "Create or update a contact by email and push it to every connected CRM",
	}, contactHandlers.SaveContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_contact",
		Description: "Update fields of an existing contact by ID and push the change",
	}, contactHandlers.UpdateContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_contact",
		Description: "Delete a contact by ID or email, locally and in every linked CRM",
	}, contactHandlers.DeleteContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_sync",
		Description: "Run a reconciliation cycle against all connected CRMs and return its summary",
	}, syncHandlers.RunSync)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Show per-system sync state and recent runs",
	}, syncHandlers.SyncStatus)

	server.AddResource(&mcp.Resource{
		URI:         contactsURI,
		Name:        "contacts",
		Description: "All active contacts",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         statusURI,
		Name:        "status",
		Description: "Per-system sync state and recent runs",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddPrompt(&mcp.Prompt{
		Name:        syncReviewPrompt,
		Description: "Review synchronization health and suggest next steps",
	}, promptHandlers.GetPrompt)

	return server
}
