package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/harperreed/crmsync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOpensInOrder(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("hubspot", Static(NewMemory("hubspot"))))
	require.NoError(t, registry.Register("broken", func(context.Context, string) (Connector, error) {
		return nil, errors.New("no credentials")
	}))
	require.NoError(t, registry.Register("pipedrive", Static(NewMemory("pipedrive"))))

	session := registry.Open(context.Background(), "tenant-a")

	assert.Equal(t, []string{"hubspot", "broken", "pipedrive"}, session.Systems())
	require.Len(t, session.Connectors, 2)
	assert.ErrorIs(t, session.Failed["broken"], ErrUnavailable)

	_, ok := session.Get("pipedrive")
	assert.True(t, ok)
	_, ok = session.Get("broken")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("hubspot", Static(NewMemory("hubspot"))))
	assert.Error(t, registry.Register("hubspot", Static(NewMemory("hubspot"))))
}

func TestMemoryConnector(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryWithLookup("hubspot")

	id, err := m.Create(ctx, models.ContactFields{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	found, err := m.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found.ExternalID)

	require.NoError(t, m.Delete(ctx, id))
	assert.ErrorIs(t, m.Delete(ctx, id), ErrNotFound)
	assert.Equal(t, 1, m.Creates)
	assert.Equal(t, 1, m.Deletes)
}
