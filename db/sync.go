// ABOUTME: Database operations for sync_state and sync_runs tables
// ABOUTME: Tracks per-system sync status and the history of reconciliation cycles
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/crmsync/models"
)

// RecordSystemStatus upserts the sync status of one tenant/system pair.
// A transition to idle also stamps last_success_at and clears the error.
func (s *Store) RecordSystemStatus(ctx context.Context, tenantID, system, status, errorMsg string) error {
	var errorMsgVal sql.NullString
	if errorMsg != "" {
		errorMsgVal = sql.NullString{String: errorMsg, Valid: true}
	}

	now := time.Now().UTC()
	var lastSuccess sql.NullTime
	if status == models.SyncStatusIdle {
		lastSuccess = sql.NullTime{Time: now, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (tenant_id, system, status, last_success_at, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, system) DO UPDATE SET
			status = excluded.status,
			last_success_at = COALESCE(excluded.last_success_at, sync_state.last_success_at),
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, tenantID, system, status, lastSuccess, errorMsgVal, now)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}

	return nil
}

// GetSyncStates retrieves the sync state for every system of a tenant.
func (s *Store) GetSyncStates(ctx context.Context, tenantID string) ([]models.SyncState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, system, status, last_success_at, last_error, updated_at
		FROM sync_state
		WHERE tenant_id = ?
		ORDER BY system
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []models.SyncState
	for rows.Next() {
		var state models.SyncState
		var lastSuccess sql.NullTime
		var lastError sql.NullString

		err := rows.Scan(
			&state.TenantID,
			&state.System,
			&state.Status,
			&lastSuccess,
			&lastError,
			&state.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}

		if lastSuccess.Valid {
			state.LastSuccessAt = &lastSuccess.Time
		}
		state.LastError = lastError.String

		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync states: %w", err)
	}

	return states, nil
}

// RecordRun stores the outcome of one reconciliation cycle.
func (s *Store) RecordRun(ctx context.Context, run models.SyncRun) error {
	var errorVal sql.NullString
	if run.Error != "" {
		errorVal = sql.NullString{String: run.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, tenant_id, outcome, summary, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.TenantID, run.Outcome, run.Summary, errorVal, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}

	return nil
}

// ListRuns returns the most recent cycles for a tenant, newest first.
func (s *Store) ListRuns(ctx context.Context, tenantID string, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, outcome, summary, error, started_at, finished_at
		FROM sync_runs
		WHERE tenant_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		var errorVal sql.NullString
		if err := rows.Scan(&run.ID, &run.TenantID, &run.Outcome, &run.Summary, &errorVal, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		run.Error = errorVal.String
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
