/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package summary is the JSON report a watcher writes to stdout after each
// cycle.
package summary

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/eventcursor"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/issuematcher"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/reviewreconciler"
)

// Summary describes one cycle.
type Summary struct {
	// RunID correlates the summary with the cycle's logs and trace.
	RunID      string    `json:"runId"`
	Job        string    `json:"job"`
	Repository string    `json:"repository"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
	DryRun     bool      `json:"dryRun,omitempty"`

	CursorStatus eventcursor.Status `json:"cursorStatus,omitempty"`
	Cursor       eventcursor.Cursor `json:"cursor"`
	GapDetected  bool               `json:"gapDetected"`
	NewEvents    int                `json:"newEvents"`

	// Issue watcher.
	Matched    []githubreconciler.ActionableItem `json:"matched,omitempty"`
	Observed   []issuematcher.Observation        `json:"observed,omitempty"`
	Suppressed []int                             `json:"suppressed,omitempty"`

	// Review watcher.
	Candidates      []int                             `json:"candidates,omitempty"`
	CandidateSource string                            `json:"candidateSource,omitempty"`
	Urgent          []string                          `json:"urgent,omitempty"`
	Actionable      []githubreconciler.ActionableItem `json:"actionable,omitempty"`
	Ready           []githubreconciler.ActionableItem `json:"ready,omitempty"`
	Skipped         []reviewreconciler.Skip           `json:"skipped,omitempty"`

	Runs  []githubreconciler.RunResult `json:"runs"`
	Error string                       `json:"error,omitempty"`
}

// New starts a summary for job against repo.
func New(job string, repo githubreconciler.Repository, now time.Time) *Summary {
	return &Summary{
		RunID:      uuid.NewString(),
		Job:        job,
		Repository: repo.String(),
		StartedAt:  now,
		Runs:       []githubreconciler.RunResult{},
	}
}

// Fail records the error that aborted the cycle.
func (s *Summary) Fail(err error) {
	if err != nil {
		s.Error = err.Error()
	}
}

// FailedRuns counts runs that did not succeed.
func (s *Summary) FailedRuns() int {
	n := 0
	for _, r := range s.Runs {
		if !r.Succeeded() {
			n++
		}
	}
	return n
}

// ExitCode is 1 when the cycle aborted or any agent run failed.
func (s *Summary) ExitCode() int {
	if s.Error != "" || s.FailedRuns() > 0 {
		return 1
	}
	return 0
}

// Write encodes the summary as a single JSON document.
func (s *Summary) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	return nil
}
