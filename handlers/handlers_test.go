// ABOUTME: Tests for MCP tool, resource and prompt handlers
// ABOUTME: Runs handlers against SQLite and in-memory connectors
package handlers

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/harperreed/crmsync/connector"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTenant = "acme"

type fixture struct {
	service *sync.ContactService
	hubspot *connector.Memory
}

func setupService(t *testing.T) *fixture {
	t.Helper()

	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	hubspot := connector.NewMemory("hubspot")
	engine := sync.NewEngine(db.NewStore(database), connector.Fixed{hubspot}, zap.NewNop())
	t.Cleanup(engine.Wait)

	return &fixture{service: sync.NewContactService(engine), hubspot: hubspot}
}

func strPtr(s string) *string { return &s }

func TestSaveAndListContacts(t *testing.T) {
	f := setupService(t)
	h := NewContactHandlers(f.service, testTenant)
	ctx := t.Context()

	_, saved, err := h.SaveContact(ctx, nil, SaveContactInput{Name: "Ada Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.True(t, saved.Created)
	assert.Equal(t, "(No phone)", saved.Contact.Phone)
	assert.Equal(t, []string{"hubspot"}, saved.Push.Created)
	assert.Contains(t, saved.Contact.ExternalIDs, "hubspot")

	_, list, err := h.ListContacts(ctx, nil, ListContactsInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Count)

	_, list, err = h.ListContacts(ctx, nil, ListContactsInput{Source: "pipedrive"})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Count)
}

func TestSaveContactValidation(t *testing.T) {
	f := setupService(t)
	h := NewContactHandlers(f.service, testTenant)

	_, _, err := h.SaveContact(t.Context(), nil, SaveContactInput{Name: "Ada", Email: "not-an-email"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sync.ErrInvalidInput)
	assert.Equal(t, 0, f.hubspot.Len())
}

func TestUpdateContact(t *testing.T) {
	f := setupService(t)
	h := NewContactHandlers(f.service, testTenant)
	ctx := t.Context()

	_, saved, err := h.SaveContact(ctx, nil, SaveContactInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	_, updated, err := h.UpdateContact(ctx, nil, UpdateContactInput{ID: saved.Contact.ID, JobTitle: strPtr("Analyst")})
	require.NoError(t, err)
	assert.Equal(t, "Analyst", updated.Contact.JobTitle)
	assert.Equal(t, "Ada", updated.Contact.Name)
	assert.Equal(t, []string{"hubspot"}, updated.Push.Updated)

	remote, ok := f.hubspot.Record(saved.Contact.ExternalIDs["hubspot"])
	require.True(t, ok)
	assert.Equal(t, "Analyst", remote.JobTitle)

	_, _, err = h.UpdateContact(ctx, nil, UpdateContactInput{ID: "bogus"})
	assert.Error(t, err)
}

func TestDeleteContact(t *testing.T) {
	f := setupService(t)
	h := NewContactHandlers(f.service, testTenant)
	ctx := t.Context()

	_, _, err := h.SaveContact(ctx, nil, SaveContactInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	_, deleted, err := h.DeleteContact(ctx, nil, DeleteContactInput{Email: "ADA@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hubspot"}, deleted.RemoteDeleted)
	assert.Equal(t, 0, f.hubspot.Len())

	_, _, err = h.DeleteContact(ctx, nil, DeleteContactInput{})
	assert.Error(t, err)
}

func TestRunSyncAndStatus(t *testing.T) {
	f := setupService(t)
	f.hubspot.Put(connector.RemoteRecord{ExternalID: "hs-1", Email: "grace@example.com", Name: "Grace"})

	syncHandlers := NewSyncHandlers(f.service, testTenant, 0)
	ctx := t.Context()

	_, run, err := syncHandlers.RunSync(ctx, nil, RunSyncInput{})
	require.NoError(t, err)
	assert.NotEmpty(t, run.RunID)
	require.Len(t, run.Systems, 1)
	assert.Equal(t, 1, run.Systems[0].LocalCreated)

	_, status, err := syncHandlers.SyncStatus(ctx, nil, SyncStatusInput{})
	require.NoError(t, err)
	require.Len(t, status.Systems, 1)
	assert.Equal(t, "idle", status.Systems[0].Status)
	assert.NotEmpty(t, status.Systems[0].LastSuccessAt)
	require.Len(t, status.Runs, 1)
	assert.Equal(t, run.RunID, status.Runs[0].RunID)
}

func TestReadResources(t *testing.T) {
	f := setupService(t)
	_, _, err := NewContactHandlers(f.service, testTenant).SaveContact(t.Context(), nil, SaveContactInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	h := NewResourceHandlers(f.service, testTenant)

	result, err := h.ReadResource(t.Context(), &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: contactsURI}})
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)

	var contacts []ContactOutput
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &contacts))
	require.Len(t, contacts, 1)
	assert.Equal(t, "ada@example.com", contacts[0].Email)

	_, err = h.ReadResource(t.Context(), &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: "crmsync://nope"}})
	assert.Error(t, err)
}

func TestSyncReviewPrompt(t *testing.T) {
	f := setupService(t)
	_, err := f.service.Sync(t.Context(), testTenant)
	require.NoError(t, err)

	h := NewPromptHandlers(f.service, testTenant)
	result, err := h.GetPrompt(t.Context(), &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: syncReviewPrompt}})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)

	text, ok := result.Messages[0].Content.(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "hubspot: idle")
	assert.Contains(t, text.Text, "completed")

	_, err = h.GetPrompt(t.Context(), &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: "other"}})
	assert.Error(t, err)
}

func TestServerOverInMemoryTransport(t *testing.T) {
	f := setupService(t)
	server := NewServer(f.service, testTenant, "test", 0)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)

	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"list_contacts", "save_contact", "update_contact", "delete_contact", "run_sync", "sync_status"}, names)

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "save_contact",
		Arguments: map[string]any{"name": "Ada", "email": "ada@example.com"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 1, f.hubspot.Len())
}
