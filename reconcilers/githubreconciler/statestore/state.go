/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package statestore persists a reconciler's cursor and dedup records as a
// single JSON document, and holds the pure dedup check over those records.
package statestore

import (
	"maps"
	"time"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler/eventcursor"
)

// State is everything a job carries between cycles.
type State struct {
	Cursor      eventcursor.Cursor `json:"cursor"`
	GapDetected bool               `json:"gapDetected,omitempty"`

	// Notifications records which ready transitions were already reported.
	Notifications Records `json:"notifications,omitempty"`
	// Dispatches records the review state each pull request's last
	// successful agent run addressed.
	Dispatches Records `json:"dispatches,omitempty"`
}

// Record is the review state a pull request was last handled at.
type Record struct {
	HeadSHA        string    `json:"headSha"`
	LatestActivity time.Time `json:"latestReviewActivity"`
	NotifiedAt     time.Time `json:"notifiedAt"`
}

// Records maps pull request number to its last handled state.
type Records map[int]Record

// Check reports whether (headSHA, latest) differs from what was recorded for
// pr. When it does, the returned map carries a fresh record; otherwise the
// input is returned unchanged. The input map is never modified.
func Check(records Records, pr int, headSHA string, latest, now time.Time) (bool, Records) {
	if rec, ok := records[pr]; ok && rec.HeadSHA == headSHA && rec.LatestActivity.Equal(latest) {
		return false, records
	}

	updated := maps.Clone(records)
	if updated == nil {
		updated = make(Records, 1)
	}
	updated[pr] = Record{HeadSHA: headSHA, LatestActivity: latest, NotifiedAt: now}
	return true, updated
}
