/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package eventcursor tracks how far a reconciler has read a repository's
// newest-first event feed. Advance is pure: it compares a fetched window with
// the persisted cursor and reports which events are new. Persisting the
// returned cursor is the caller's job.
package eventcursor

import (
	"slices"
	"time"

	"github.com/google/go-github/v84/github"
)

// Status describes how a fetched window relates to the stored cursor.
type Status string

const (
	// StatusFirstRun means no cursor was stored. No event is treated as new.
	StatusFirstRun Status = "FIRST_RUN"
	// StatusNoChange means the newest event is the stored cursor.
	StatusNoChange Status = "NO_CHANGE"
	// StatusGap means the stored cursor fell out of the window.
	StatusGap Status = "GAP"
	// StatusOK means the window holds events newer than the cursor.
	StatusOK Status = "OK"
)

// Cursor is the last-seen event id and when it was recorded.
type Cursor struct {
	LastEventID string    `json:"lastEventId,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitzero"`
}

// IsZero reports whether no event has ever been seen.
func (c Cursor) IsZero() bool {
	return c.LastEventID == ""
}

// Result is the outcome of Advance.
type Result struct {
	// Events are the events newer than the previous cursor, oldest first.
	Events []*github.Event
	// Cursor is the cursor to persist.
	Cursor Cursor
	Status Status
}

// Gap reports whether recent activity may have been missed.
func (r Result) Gap() bool {
	return r.Status == StatusGap
}

// Advance compares a newest-first feed window with the previous cursor.
func Advance(feed []*github.Event, prev Cursor, now time.Time) Result {
	if len(feed) == 0 {
		if prev.IsZero() {
			return Result{Cursor: prev, Status: StatusFirstRun}
		}
		return Result{Cursor: prev, Status: StatusNoChange}
	}

	next := Cursor{LastEventID: feed[0].GetID(), Timestamp: now}

	switch {
	case prev.IsZero():
		return Result{Cursor: next, Status: StatusFirstRun}
	case next.LastEventID == prev.LastEventID:
		return Result{Cursor: prev, Status: StatusNoChange}
	}

	i := slices.IndexFunc(feed, func(e *github.Event) bool {
		return e.GetID() == prev.LastEventID
	})
	if i < 0 {
		return Result{Cursor: next, Status: StatusGap}
	}

	newer := slices.Clone(feed[:i])
	slices.Reverse(newer)
	return Result{Events: newer, Cursor: next, Status: StatusOK}
}
