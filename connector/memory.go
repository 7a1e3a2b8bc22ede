// ABOUTME: In-memory connector for development and tests
// ABOUTME: Thread-safe record map with call counters and failure injection
package connector

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/harperreed/crmsync/models"
)

// Memory is a Connector holding records in process memory.
type Memory struct {
	name string

	mu      sync.Mutex
	records map[string]RemoteRecord
	nextID  int
	now     func() time.Time

	// Injected failures, returned verbatim when set.
	ListErr   error
	CreateErr error
	UpdateErr error
	DeleteErr error

	Creates int
	Updates int
	Deletes int
	Lists   int
}

func NewMemory(name string) *Memory {
	return &Memory{
		name:    name,
		records: make(map[string]RemoteRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Name() string { return m.name }

// Put inserts or replaces a record directly, bypassing counters.
func (m *Memory) Put(r RemoteRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ExternalID] = r
}

// Remove drops a record directly, simulating a deletion made in the remote UI.
func (m *Memory) Remove(externalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, externalID)
}

// Record returns a copy of the record with the given id.
func (m *Memory) Record(externalID string) (RemoteRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[externalID]
	return r, ok
}

// Len returns the number of records held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *Memory) List(ctx context.Context) ([]RemoteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lists++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	if err := ctx.Err(); err != nil {
		return nil, Unavailable(m.name, err)
	}

	records := make([]RemoteRecord, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r)
	}
	slices.SortFunc(records, func(a, b RemoteRecord) int { return strings.Compare(a.ExternalID, b.ExternalID) })
	return records, nil
}

func (m *Memory) Create(_ context.Context, fields models.ContactFields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	if err := ValidateFields(fields); err != nil {
		return "", Rejected(m.name, err)
	}

	m.nextID++
	m.Creates++
	id := fmt.Sprintf("%s-%d", m.name, m.nextID)
	m.records[id] = m.toRecord(id, fields)
	return id, nil
}

func (m *Memory) Update(_ context.Context, externalID string, fields models.ContactFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if _, ok := m.records[externalID]; !ok {
		return fmt.Errorf("%s %s: %w", m.name, externalID, ErrNotFound)
	}

	m.Updates++
	m.records[externalID] = m.toRecord(externalID, fields)
	return nil
}

func (m *Memory) Delete(_ context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	if _, ok := m.records[externalID]; !ok {
		return fmt.Errorf("%s %s: %w", m.name, externalID, ErrNotFound)
	}

	m.Deletes++
	delete(m.records, externalID)
	return nil
}

func (m *Memory) toRecord(id string, fields models.ContactFields) RemoteRecord {
	return RemoteRecord{
		ExternalID: id,
		Email:      fields.Email,
		Name:       fields.Name,
		Phone:      fields.Phone,
		JobTitle:   fields.JobTitle,
		Pronouns:   fields.Pronouns,
		UpdatedAt:  m.now(),
	}
}

// SetClock overrides the timestamp source used for created and updated records.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// MemoryWithLookup adds email search to Memory.
type MemoryWithLookup struct {
	*Memory
	Lookups int
}

func NewMemoryWithLookup(name string) *MemoryWithLookup {
	return &MemoryWithLookup{Memory: NewMemory(name)}
}

func (m *MemoryWithLookup) FindByEmail(_ context.Context, email string) (*RemoteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lookups++
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	want := models.NormalizeEmail(email)
	for _, r := range m.records {
		if models.NormalizeEmail(r.Email) == want {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

var (
	_ Connector   = (*Memory)(nil)
	_ Connector   = (*MemoryWithLookup)(nil)
	_ EmailLookup = (*MemoryWithLookup)(nil)
)
