// ABOUTME: Sync state and run history kept in the badger store
// ABOUTME: Mirrors the sync_state and sync_runs tables of the SQLite store
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/harperreed/crmsync/models"
)

// RecordSystemStatus stores the sync status of one tenant/system pair.
func (s *Store) RecordSystemStatus(ctx context.Context, tenantID, system, status, errorMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k := key("state", tenantID, system)
	return s.db.Update(func(txn *badger.Txn) error {
		state := models.SyncState{TenantID: tenantID, System: system}
		item, err := txn.Get(k)
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &state) }); err != nil {
				return fmt.Errorf("failed to decode sync state: %w", err)
			}
		case err != badger.ErrKeyNotFound:
			return err
		}

		now := time.Now().UTC()
		state.Status = status
		state.LastError = errorMsg
		state.UpdatedAt = now
		if status == models.SyncStatusIdle {
			state.LastSuccessAt = &now
		}
		return putJSON(txn, k, state)
	})
}

// GetSyncStates returns the sync state of every system of a tenant, by system name.
func (s *Store) GetSyncStates(ctx context.Context, tenantID string) ([]models.SyncState, error) {
	var states []models.SyncState
	err := s.scan(ctx, prefix("state", tenantID), func(val []byte) error {
		var state models.SyncState
		if err := json.Unmarshal(val, &state); err != nil {
			return err
		}
		states = append(states, state)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sync states: %w", err)
	}
	return states, nil
}

// RecordRun stores the outcome of one reconciliation cycle.
func (s *Store) RecordRun(ctx context.Context, run models.SyncRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, key("run", run.TenantID, run.ID), run)
	})
}

// ListRuns returns the most recent cycles for a tenant, newest first.
func (s *Store) ListRuns(ctx context.Context, tenantID string, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}

	var runs []models.SyncRun
	err := s.scan(ctx, prefix("run", tenantID), func(val []byte) error {
		var run models.SyncRun
		if err := json.Unmarshal(val, &run); err != nil {
			return err
		}
		runs = append(runs, run)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}

	slices.SortFunc(runs, func(a, b models.SyncRun) int { return b.StartedAt.Compare(a.StartedAt) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *Store) scan(ctx context.Context, p []byte, fn func(val []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}
