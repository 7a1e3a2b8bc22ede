// ABOUTME: Cycle summary returned to triggers
// ABOUTME: Per-system counters of created, updated, linked, unlinked and errored contacts
package sync

import (
	"fmt"
	"time"
)

// SystemSummary counts what one cycle did for one external system.
type SystemSummary struct {
	System        string   `json:"system"`
	Fetched       int      `json:"fetched"`
	LocalCreated  int      `json:"localCreated"`
	LocalUpdated  int      `json:"localUpdated"`
	RemoteCreated int      `json:"remoteCreated"`
	RemoteUpdated int      `json:"remoteUpdated"`
	Linked        int      `json:"linked"`
	Unlinked      int      `json:"unlinked"`
	Skipped       int      `json:"skipped"`
	Errors        int      `json:"errors"`
	Unavailable   bool     `json:"unavailable"`
	Failures      []string `json:"failures,omitempty"`
}

// Created is the number of records created on either side.
func (s *SystemSummary) Created() int { return s.LocalCreated + s.RemoteCreated }

// Updated is the number of records updated on either side.
func (s *SystemSummary) Updated() int { return s.LocalUpdated + s.RemoteUpdated }

func (s *SystemSummary) fail(format string, args ...any) {
	s.Errors++
	s.Failures = append(s.Failures, fmt.Sprintf(format, args...))
}

// Summary is the result of one cycle for one tenant.
type Summary struct {
	RunID      string           `json:"runId"`
	TenantID   string           `json:"tenantId"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Systems    []*SystemSummary `json:"systems"`
}

// System returns the summary for system, or nil.
func (s *Summary) System(name string) *SystemSummary {
	for _, sys := range s.Systems {
		if sys.System == name {
			return sys
		}
	}
	return nil
}

// Errors totals errors across systems.
func (s *Summary) Errors() int {
	total := 0
	for _, sys := range s.Systems {
		total += sys.Errors
	}
	return total
}

func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
