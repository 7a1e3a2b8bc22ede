// ABOUTME: MCP prompt handlers
// ABOUTME: Builds a sync review prompt from the latest run state
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/crmsync/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const syncReviewPrompt = "sync-review"

type PromptHandlers struct {
	service *sync.ContactService
	tenant  string
}

func NewPromptHandlers(service *sync.ContactService, tenant string) *PromptHandlers {
	return &PromptHandlers{service: service, tenant: tenant}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case syncReviewPrompt:
		return h.getSyncReviewPrompt(ctx)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) getSyncReviewPrompt(ctx context.Context) (*mcp.GetPromptResult, error) {
	status, err := h.service.Status(ctx, h.tenant, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync status: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Please review the health of contact synchronization:\n\n")

	if len(status.Systems) == 0 {
		promptText.WriteString("No system has been synchronized yet.\n")
	}
	for _, state := range status.Systems {
		fmt.Fprintf(&promptText, "- %s: %s", state.System, state.Status)
		if state.LastSuccessAt != nil {
			fmt.Fprintf(&promptText, " (last success %s)", state.LastSuccessAt.Format("2006-01-02 15:04"))
		}
		if state.LastError != "" {
			fmt.Fprintf(&promptText, "\n  last error: %s", state.LastError)
		}
		promptText.WriteString("\n")
	}

	if len(status.Runs) > 0 {
		promptText.WriteString("\nRecent runs:\n")
		for _, run := range status.Runs {
			fmt.Fprintf(&promptText, "- %s %s %s\n", run.StartedAt.Format("2006-01-02 15:04"), run.Outcome, run.Summary)
		}
	}

	promptText.WriteString("\nPlease point out systems that keep failing, records that are repeatedly skipped, and whether a manual sync is needed.")

	return &mcp.GetPromptResult{
		Description: "Sync review for tenant " + h.tenant,
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}
