// ABOUTME: Sync MCP tool handlers
// ABOUTME: Implements run_sync and sync_status tools
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type SyncHandlers struct {
	service *sync.ContactService
	tenant  string
	timeout time.Duration
}

func NewSyncHandlers(service *sync.ContactService, tenant string, timeout time.Duration) *SyncHandlers {
	if timeout <= 0 {
		timeout = 50 * time.Second
	}
	return &SyncHandlers{service: service, tenant: tenant, timeout: timeout}
}

type RunSyncInput struct{}

type RunSyncOutput struct {
	RunID    string                `json:"run_id"`
	Duration string                `json:"duration"`
	Errors   int                   `json:"errors"`
	Systems  []*sync.SystemSummary `json:"systems"`
}

// RunSync runs one cycle for the tenant and waits for it.
func (h *SyncHandlers) RunSync(ctx context.Context, _ *mcp.CallToolRequest, _ RunSyncInput) (*mcp.CallToolResult, RunSyncOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	summary, err := h.service.Sync(ctx, h.tenant)
	if err != nil {
		return nil, RunSyncOutput{}, fmt.Errorf("sync failed: %w", err)
	}

	return nil, RunSyncOutput{
		RunID:    summary.RunID,
		Duration: summary.Duration().String(),
		Errors:   summary.Errors(),
		Systems:  summary.Systems,
	}, nil
}

type SyncStatusInput struct {
	Runs int `json:"runs,omitempty" jsonschema:"Number of recent runs to include (default 5)"`
}

type SystemStatusOutput struct {
	System        string `json:"system"`
	Status        string `json:"status"`
	LastSuccessAt string `json:"last_success_at,omitempty"`
	LastError     string `json:"last_error,omitempty"`
}

type RunOutput struct {
	RunID      string `json:"run_id"`
	Outcome    string `json:"outcome"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Error      string `json:"error,omitempty"`
}

type SyncStatusOutput struct {
	Systems []SystemStatusOutput `json:"systems"`
	Runs    []RunOutput          `json:"runs"`
}

func (h *SyncHandlers) SyncStatus(ctx context.Context, _ *mcp.CallToolRequest, input SyncStatusInput) (*mcp.CallToolResult, SyncStatusOutput, error) {
	runs := input.Runs
	if runs <= 0 {
		runs = 5
	}

	status, err := h.service.Status(ctx, h.tenant, runs)
	if err != nil {
		return nil, SyncStatusOutput{}, fmt.Errorf("failed to get sync status: %w", err)
	}

	return nil, statusToOutput(status), nil
}

func statusToOutput(status *sync.Status) SyncStatusOutput {
	out := SyncStatusOutput{
		Systems: make([]SystemStatusOutput, 0, len(status.Systems)),
		Runs:    make([]RunOutput, 0, len(status.Runs)),
	}
	for _, state := range status.Systems {
		out.Systems = append(out.Systems, systemStateToOutput(state))
	}
	for _, run := range status.Runs {
		out.Runs = append(out.Runs, runToOutput(run))
	}
	return out
}

func systemStateToOutput(state models.SyncState) SystemStatusOutput {
	out := SystemStatusOutput{
		System:    state.System,
		Status:    state.Status,
		LastError: state.LastError,
	}
	if state.LastSuccessAt != nil {
		out.LastSuccessAt = state.LastSuccessAt.Format(time.RFC3339)
	}
	return out
}

func runToOutput(run models.SyncRun) RunOutput {
	return RunOutput{
		RunID:      run.ID,
		Outcome:    run.Outcome,
		StartedAt:  run.StartedAt.Format(time.RFC3339),
		FinishedAt: run.FinishedAt.Format(time.RFC3339),
		Error:      run.Error,
	}
}
