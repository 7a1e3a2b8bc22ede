package db

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	database, err := OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	return NewStore(database)
}

func newContact(tenantID, email string) *models.Contact {
	return &models.Contact{
		ID:       uuid.New(),
		TenantID: tenantID,
		Email:    email,
		Name:     "Test Person",
		Phone:    models.DefaultPhone,
		Sources:  []string{models.SystemLocal},
	}
}
