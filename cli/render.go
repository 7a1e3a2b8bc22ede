// ABOUTME: Terminal rendering of summaries, contacts and sync status
// ABOUTME: Shared lipgloss styles for command output
package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/sync"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	systemStyle = lipgloss.NewStyle().
			Bold(true).
			Width(12)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

func renderSummary(w io.Writer, summary *sync.Summary) {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf("Sync %s for %s", summary.RunID, summary.TenantID)))
	s.WriteString(mutedStyle.Render(fmt.Sprintf("  (%s)", summary.Duration().Round(time.Millisecond))))
	s.WriteString("\n\n")

	if len(summary.Systems) == 0 {
		s.WriteString(mutedStyle.Render("No systems configured."))
		s.WriteString("\n")
	}

	for _, sys := range summary.Systems {
		s.WriteString(systemStyle.Render(sys.System))
		if sys.Unavailable {
			s.WriteString(errorStyle.Render("✗ unavailable"))
		} else if sys.Errors > 0 {
			s.WriteString(warnStyle.Render(fmt.Sprintf("! %d errors", sys.Errors)))
		} else {
			s.WriteString(okStyle.Render("✓ ok"))
		}
		fmt.Fprintf(&s, "  fetched %d • created %d/%d • updated %d/%d • linked %d • unlinked %d • skipped %d\n",
			sys.Fetched,
			sys.LocalCreated, sys.RemoteCreated,
			sys.LocalUpdated, sys.RemoteUpdated,
			sys.Linked, sys.Unlinked, sys.Skipped,
		)
		for _, failure := range sys.Failures {
			s.WriteString(errorStyle.Render("    " + failure))
			s.WriteString("\n")
		}
	}

	_, _ = io.WriteString(w, s.String())
}

func renderContacts(w io.Writer, contacts []models.Contact) {
	var s strings.Builder

	s.WriteString(headerStyle.Render(fmt.Sprintf("Contacts (%d)", len(contacts))))
	s.WriteString("\n\n")

	if len(contacts) == 0 {
		s.WriteString(mutedStyle.Render("No contacts yet."))
		s.WriteString("\n")
	}

	for _, contact := range contacts {
		fmt.Fprintf(&s, "%s  %s  %s",
			mutedStyle.Render(contact.ID.String()[:8]),
			lipgloss.NewStyle().Bold(true).Render(contact.Name),
			contact.Email,
		)
		if contact.Phone != "" && contact.Phone != models.DefaultPhone {
			fmt.Fprintf(&s, "  %s", contact.Phone)
		}
		if systems := contact.LinkedSystems(); len(systems) > 0 {
			s.WriteString(okStyle.Render("  [" + strings.Join(systems, ", ") + "]"))
		}
		s.WriteString("\n")
	}

	_, _ = io.WriteString(w, s.String())
}

func renderStatus(w io.Writer, tenant string, status *sync.Status) {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Sync status for " + tenant))
	s.WriteString("\n\n")

	if len(status.Systems) == 0 {
		s.WriteString(mutedStyle.Render("No sync data found. Run 'crmsync sync' first."))
		s.WriteString("\n")
	}

	for _, state := range status.Systems {
		s.WriteString(systemStyle.Render(state.System))
		switch state.Status {
		case models.SyncStatusSyncing:
			s.WriteString(warnStyle.Render("⟳ Syncing..."))
		case models.SyncStatusError:
			s.WriteString(errorStyle.Render("✗ Error"))
			if state.LastError != "" {
				s.WriteString(errorStyle.Render(": " + state.LastError))
			}
		default:
			s.WriteString(okStyle.Render("✓ Idle"))
		}
		if state.LastSuccessAt != nil {
			s.WriteString(mutedStyle.Render(" • Last synced " + state.LastSuccessAt.Local().Format("2006-01-02 15:04")))
		}
		s.WriteString("\n")
	}

	if len(status.Runs) > 0 {
		s.WriteString("\n")
		s.WriteString(headerStyle.Render("Recent Runs"))
		s.WriteString("\n\n")
		for _, run := range status.Runs {
			outcome := okStyle.Render(run.Outcome)
			if run.Outcome != models.RunOutcomeCompleted {
				outcome = errorStyle.Render(run.Outcome)
			}
			fmt.Fprintf(&s, "%s  %s  %s\n",
				run.StartedAt.Local().Format("2006-01-02 15:04:05"),
				outcome,
				mutedStyle.Render(run.ID),
			)
			if run.Error != "" {
				s.WriteString(errorStyle.Render("    " + run.Error))
				s.WriteString("\n")
			}
		}
	}

	_, _ = io.WriteString(w, s.String())
}

func renderPush(w io.Writer, report *sync.PushReport) {
	if report == nil {
		return
	}
	if report.Deferred {
		fmt.Fprintln(w, mutedStyle.Render("Push deferred: a sync is running and will pick up the change."))
		return
	}
	for _, system := range report.Created {
		fmt.Fprintln(w, okStyle.Render("✓ created in "+system))
	}
	for _, system := range report.Linked {
		fmt.Fprintln(w, okStyle.Render("✓ linked to existing record in "+system))
	}
	for _, system := range report.Updated {
		fmt.Fprintln(w, okStyle.Render("✓ updated in "+system))
	}
	for system, msg := range report.Failures {
		fmt.Fprintln(w, errorStyle.Render("✗ "+system+": "+msg))
	}
}
