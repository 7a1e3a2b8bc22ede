package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/connector"
	"github.com/harperreed/crmsync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSaveCreatesAndPushes(t *testing.T) {
	h := newHarness(t)
	svc := NewContactService(h.engine)

	result, err := svc.Save(context.Background(), testTenant, ContactInput{
		Name:     " Ada Lovelace ",
		Email:    "Ada@Example.com",
		JobTitle: "Analyst",
	})
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.Equal(t, "Ada Lovelace", result.Contact.Name)
	assert.Equal(t, models.DefaultPhone, result.Contact.Phone)
	assert.ElementsMatch(t, []string{"hubspot", "pipedrive"}, result.Push.Created)
	assert.False(t, result.Push.Deferred)
	assert.Equal(t, []string{"hubspot", models.SystemLocal, "pipedrive"}, result.Contact.Sources)
	assertProvenance(t, h.active())
}

func TestSaveUpdatesExistingByEmail(t *testing.T) {
	h := newHarness(t)
	svc := NewContactService(h.engine)

	first, err := svc.Save(context.Background(), testTenant, ContactInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	second, err := svc.Save(context.Background(), testTenant, ContactInput{Name: "Ada King", Email: "ADA@example.com", Phone: "555-0100"})
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.Contact.ID, second.Contact.ID)
	assert.ElementsMatch(t, []string{"hubspot", "pipedrive"}, second.Push.Updated)

	hubID, _ := second.Contact.ExternalID("hubspot")
	remote, _ := h.hubspot.Record(hubID)
	assert.Equal(t, "Ada King", remote.Name)
	assert.Equal(t, "555-0100", remote.Phone)
	assert.Len(t, h.active(), 1)
}

func TestSaveValidation(t *testing.T) {
	h := newHarness(t)
	svc := NewContactService(h.engine)

	tests := []struct {
		name  string
		input ContactInput
	}{
		{"missing name", ContactInput{Email: "ada@example.com"}},
		{"blank name", ContactInput{Name: "   ", Email: "ada@example.com"}},
		{"missing email", ContactInput{Name: "Ada"}},
		{"malformed email", ContactInput{Name: "Ada", Email: "ada-at-example"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Save(context.Background(), testTenant, tt.input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Empty(t, h.active())
}

func TestSaveDefersPushWhileCycleRuns(t *testing.T) {
	h := newHarness(t)
	svc := NewContactService(h.engine)

	release, err := h.engine.leaser.Acquire(context.Background(), testTenant)
	require.NoError(t, err)

	result, err := svc.Save(context.Background(), testTenant, ContactInput{Name: "Ada", Email: "ada@example.com"})
	release()
	require.NoError(t, err)

	assert.True(t, result.Push.Deferred)
	assert.Zero(t, h.hubspot.Creates)

	h.run()
	assert.Equal(t, 1, h.hubspot.Creates, "the next cycle pushes the deferred contact")
}

func TestSaveReportsPushFailures(t *testing.T) {
	h := newHarness(t)
	svc := NewContactService(h.engine)
	h.pipedrive.CreateErr = connector.Rejected("pipedrive", errors.New("phone required"))

	result, err := svc.Save(context.Background(), testTenant, ContactInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	assert.Equal(t, []string{"hubspot"}, result.Push.Created)
	assert.Contains(t, result.Push.Failures, "pipedrive")
	assert.False(t, result.Contact.HasSource("pipedrive"))
}

func TestSaveAdoptsExistingRemoteRecord(t *testing.T) {
	hub := connector.NewMemoryWithLookup("hubspot")
	h := newHarness(t, hub)
	svc := NewContactService(h.engine)
	hub.Put(connector.RemoteRecord{ExternalID: "h-42", Email: "ada@example.com", Name: "Ada"})

	result, err := svc.Save(context.Background(), testTenant, ContactInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	assert.Equal(t, []string{"hubspot"}, result.Push.Linked)
	assert.Zero(t, hub.Creates)
	id, _ := result.Contact.ExternalID("hubspot")
	assert.Equal(t, "h-42", id)
}

func TestSaveRecreatesTombstonedEmail(t *testing.T) {
	h := newHarness(t)
	svc := NewContactService(h.engine)

	first, err := svc.Save(context.Background(), testTenant, ContactInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = svc.Delete(context.Background(), testTenant, first.Contact.ID)
	require.NoError(t, err)

	second, err := svc.Save(context.Background(), testTenant, ContactInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	assert.True(t, second.Created)
	assert.NotEqual(t, first.Contact.ID, second.Contact.ID, "ids are never reused")
}

func TestUpdatePatchesFields(t *testing.T) {
	h := newHarness(t)
	svc := NewContactService(h.engine)

	saved, err := svc.Save(context.Background(), testTenant, ContactInput{Name: "Ada", Email: "ada@example.com", JobTitle: "Analyst"})
	require.NoError(t, err)

	pronouns := "she/her"
	updated, err := svc.Update(context.Background(), testTenant, saved.Contact.ID, ContactPatch{Pronouns: &pronouns})
	require.NoError(t, err)

	assert.Equal(t, "Ada", updated.Contact.Name)
	assert.Equal(t, "Analyst", updated.Contact.JobTitle)
	assert.Equal(t, "she/her", updated.Contact.Pronouns)
	assert.ElementsMatch(t, []string{"hubspot", "pipedrive"}, updated.Push.Updated)
}

func TestUpdateErrors(t *testing.T) {
	h := newHarness(t)
	svc := NewContactService(h.engine)

	_, err := svc.Update(context.Background(), testTenant, uuid.New(), ContactPatch{})
	assert.ErrorIs(t, err, models.ErrContactNotFound)

	bad := "not-an-email"
	_, err = svc.Update(context.Background(), testTenant, uuid.New(), ContactPatch{Email: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	ada, err := svc.Save(context.Background(), testTenant, ContactInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = svc.Save(context.Background(), testTenant, ContactInput{Name: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)

	taken := "bob@example.com"
	_, err = svc.Update(context.Background(), testTenant, ada.Contact.ID, ContactPatch{Email: &taken})
	assert.ErrorIs(t, err, ErrWriteConflict)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	svc := NewContactService(h.engine)
	h.addLocal("ada@example.com", "Ada")

	summary, err := svc.Sync(context.Background(), testTenant)
	require.NoError(t, err)

	status, err := svc.Status(context.Background(), testTenant, 5)
	require.NoError(t, err)
	assert.Len(t, status.Systems, 2)
	require.Len(t, status.Runs, 1)
	assert.Equal(t, summary.RunID, status.Runs[0].ID)
}

func TestSyncInBackground(t *testing.T) {
	h := newHarness(t)
	svc := NewContactService(h.engine)
	h.addLocal("ada@example.com", "Ada")

	svc.SyncInBackground(testTenant)
	h.engine.Wait()

	assert.Equal(t, 1, h.hubspot.Creates)
}

// racingStore stores a competing edit of the contact just before the first
// update reaches the store, so that update goes stale.
type racingStore struct {
	*countingStore
	raced bool
}

func (s *racingStore) Upsert(ctx context.Context, contact *models.Contact) error {
	if !s.raced && contact.Version > 0 {
		s.raced = true
		rival, err := s.Store.GetContact(ctx, contact.TenantID, contact.ID)
		if err != nil {
			return err
		}
		rival.JobTitle = "Countess"
		if err := s.countingStore.Upsert(ctx, rival); err != nil {
			return err
		}
	}
	return s.countingStore.Upsert(ctx, contact)
}

func TestUpdateReappliesPatchAfterConcurrentWrite(t *testing.T) {
	h := newHarness(t)
	contact := h.addLocal("ada@example.com", "Ada")
	store := &racingStore{countingStore: h.store}
	svc := NewContactService(NewEngine(store, h.engine.provider, zap.NewNop(), WithClock(h.clock.Now)))

	name := "Ada Lovelace"
	result, err := svc.Update(context.Background(), testTenant, contact.ID, ContactPatch{Name: &name})
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", result.Contact.Name)
	assert.Equal(t, "Countess", result.Contact.JobTitle, "the competing edit is kept")
	assert.ElementsMatch(t, []string{"hubspot", "pipedrive"}, result.Push.Created)
}
