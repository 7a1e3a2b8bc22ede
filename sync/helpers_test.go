package sync

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/connector"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTenant = "tenant-a"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingStore counts upserts so tests can assert the absence of writes.
type countingStore struct {
	*db.Store
	upserts atomic.Int64
}

func (s *countingStore) Upsert(ctx context.Context, contact *models.Contact) error {
	s.upserts.Add(1)
	return s.Store.Upsert(ctx, contact)
}

func setupTestStore(t *testing.T) *countingStore {
	t.Helper()

	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	return &countingStore{Store: db.NewStore(database)}
}

type harness struct {
	t         *testing.T
	store     *countingStore
	clock     *testClock
	hubspot   *connector.Memory
	pipedrive *connector.Memory
	engine    *Engine
}

func newHarness(t *testing.T, connectors ...connector.Connector) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		store: setupTestStore(t),
		clock: &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}

	if len(connectors) == 0 {
		h.hubspot = connector.NewMemory("hubspot")
		h.pipedrive = connector.NewMemory("pipedrive")
		connectors = []connector.Connector{h.hubspot, h.pipedrive}
	}
	registry := connector.NewRegistry()
	for _, c := range connectors {
		if m, ok := c.(interface{ SetClock(func() time.Time) }); ok {
			m.SetClock(h.clock.Now)
		}
		require.NoError(t, registry.Register(c.Name(), connector.Static(c)))
	}

	h.engine = NewEngine(h.store, registry, zap.NewNop(),
		WithClock(h.clock.Now),
		WithConfig(Config{ConnectorTimeout: time.Second, PushConcurrency: 2}),
	)
	return h
}

func (h *harness) addLocal(email, name string) *models.Contact {
	h.t.Helper()

	contact := &models.Contact{
		ID:        uuid.New(),
		TenantID:  testTenant,
		Email:     email,
		Name:      name,
		Phone:     models.DefaultPhone,
		Sources:   []string{models.SystemLocal},
		CreatedAt: h.clock.Now(),
		UpdatedAt: h.clock.Now(),
	}
	require.NoError(h.t, h.store.Upsert(context.Background(), contact))
	return contact
}

func (h *harness) run() *Summary {
	h.t.Helper()

	summary, err := h.engine.RunCycle(context.Background(), testTenant)
	require.NoError(h.t, err)
	require.NotNil(h.t, summary)
	assertProvenance(h.t, h.active())
	return summary
}

func (h *harness) active() []models.Contact {
	h.t.Helper()

	contacts, err := h.store.ListActive(context.Background(), testTenant)
	require.NoError(h.t, err)
	return contacts
}

func (h *harness) byEmail(email string) *models.Contact {
	h.t.Helper()

	contact, err := h.store.FindActiveByEmail(context.Background(), testTenant, email)
	require.NoError(h.t, err)
	return contact
}

// assertProvenance checks that every remote source has an external id and
// every external id has its source.
func assertProvenance(t *testing.T, contacts []models.Contact) {
	t.Helper()

	for _, c := range contacts {
		assert.NotEmpty(t, c.Sources, "contact %s has no sources", c.Email)
		for _, system := range c.Sources {
			if system == models.SystemLocal {
				continue
			}
			_, linked := c.ExternalID(system)
			assert.True(t, linked, "contact %s lists %s without an external id", c.Email, system)
		}
		for _, system := range c.LinkedSystems() {
			assert.True(t, c.HasSource(system), "contact %s linked to %s without the source", c.Email, system)
		}
	}
}
