/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package issuematcher turns issue events and a periodic sweep of open issues
// into actionable items. An issue is actionable when it carries the
// configured label, its "Auto-generate PR" checkbox is ticked, and no open
// pull request already claims to fix it.
package issuematcher

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/events"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/retry"
)

// triggers are the issue actions that may start an agent run.
var triggers = []string{"opened", "edited", "labeled", "reopened"}

// Observation records an event that was seen but did not produce an item.
type Observation struct {
	EventID string `json:"eventId,omitempty"`
	Type    string `json:"type"`
	Action  string `json:"action,omitempty"`
	Number  int    `json:"number,omitempty"`
	Reason  string `json:"reason"`
}

// Result is the outcome of one Match.
type Result struct {
	// Items are deduplicated by issue number: event-derived items first in
	// event order, then sweep-derived items by ascending number.
	Items []githubreconciler.ActionableItem
	// Observed lists events that did not trigger, with the reason.
	Observed []Observation
	// Suppressed lists issues skipped because an open PR fixes them.
	Suppressed []int
}

// Matcher evaluates issues in one repository.
type Matcher struct {
	gh            *github.Client
	repo          githubreconciler.Repository
	label         string
	sweepMaxPages int
	retry         retry.Config
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithSweepMaxPages bounds how many pages of labeled open issues the sweep
// reads per label spelling. Zero disables the sweep.
func WithSweepMaxPages(n int) Option {
	return func(m *Matcher) {
		m.sweepMaxPages = n
	}
}

// WithRetry sets the retry policy for best-effort lookups.
func WithRetry(cfg retry.Config) Option {
	return func(m *Matcher) {
		m.retry = cfg
	}
}

// New constructs a Matcher for issues labeled label in repo.
func New(gh *github.Client, repo githubreconciler.Repository, label string, opts ...Option) (*Matcher, error) {
	if gh == nil {
		return nil, errors.New("github client cannot be nil")
	}
	if NormalizeLabel(label) == "" {
		return nil, errors.New("label cannot be empty")
	}
	m := &Matcher{
		gh:            gh,
		repo:          repo,
		label:         NormalizeLabel(label),
		sweepMaxPages: 5,
		retry:         retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return m, nil
}

// Match filters chronological events down to actionable issues and, when
// sweep is set, merges in open labeled issues the event window missed. Each
// issue is judged on the snapshot carried by its newest event in the window.
func (m *Matcher) Match(ctx context.Context, evs []events.Event, sweep bool) Result {
	var res Result
	seen := make(map[int]bool)

	newest := make(map[int]int)
	trigger := make(map[int]string)
	for i, ev := range evs {
		n, ok := ev.IssueNumber()
		if !ok {
			continue
		}
		newest[n] = i
		if slices.Contains(triggers, ev.Action) {
			trigger[n] = ev.Action
		}
	}

	for i, ev := range evs {
		obs := Observation{EventID: ev.ID, Type: ev.Type, Action: ev.Action}
		n, ok := ev.IssueNumber()
		switch {
		case ev.Kind != events.KindIssue:
			obs.Reason = "not an issue event"
		case !ok:
			obs.Reason = "issue is a pull request"
		case newest[n] != i:
			obs.Number = n
			obs.Reason = "superseded by event " + evs[newest[n]].ID
		case trigger[n] == "":
			obs.Number = n
			obs.Reason = fmt.Sprintf("action %q does not trigger", ev.Action)
		default:
			obs.Number = n
			obs.Reason = m.evaluate(ctx, Track(ev.Issue), seen)
		}
		if obs.Reason != "" {
			res.Observed = append(res.Observed, obs)
			if obs.Reason == reasonOpenPR {
				res.Suppressed = append(res.Suppressed, n)
			}
			continue
		}
		res.Items = append(res.Items, Track(ev.Issue).item("event:"+trigger[n]))
	}

	if !sweep || m.sweepMaxPages <= 0 {
		return res
	}

	swept, suppressed := m.sweep(ctx, seen)
	res.Items = append(res.Items, swept...)
	res.Suppressed = append(res.Suppressed, suppressed...)
	return res
}

const reasonOpenPR = "open pull request fixes issue"

// evaluate returns why the newest snapshot of an issue does not trigger, or
// "" when it does. Issues that qualify are added to seen so the sweep skips
// them.
func (m *Matcher) evaluate(ctx context.Context, issue TrackedIssue, seen map[int]bool) string {
	if reason := m.disqualify(issue); reason != "" {
		return reason
	}
	seen[issue.Number] = true
	if m.HasOpenPR(ctx, issue.Number) {
		return reasonOpenPR
	}
	return ""
}

func (m *Matcher) disqualify(issue TrackedIssue) string {
	switch {
	case issue.State == "closed":
		return "issue is closed"
	case !HasLabel(issue.Labels, m.label):
		return "missing label " + m.label
	case !issue.CheckboxChecked:
		return "auto-generate checkbox not checked"
	}
	return ""
}

// labelNames lists the repository labels that normalize to the configured
// label. The issue listing filters by exact name, so every spelling in use
// is queried.
func (m *Matcher) labelNames(ctx context.Context) ([]string, error) {
	var names []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		var next int
		labels, err := retry.Do(ctx, m.retry, "list labels", retry.IsRetryable, func() ([]*github.Label, error) {
			labels, resp, err := m.gh.Issues.ListLabels(ctx, m.repo.Owner, m.repo.Name, opts)
			if err != nil {
				return nil, err
			}
			next = resp.NextPage
			return labels, nil
		})
		if err != nil {
			return nil, fmt.Errorf("listing labels: %w", err)
		}
		for _, l := range labels {
			if NormalizeLabel(l.GetName()) == m.label {
				names = append(names, l.GetName())
			}
		}
		if next == 0 {
			return names, nil
		}
		opts.Page = next
	}
}

// labeledIssues lists the open issues carrying name, reading at most
// sweepMaxPages pages.
func (m *Matcher) labeledIssues(ctx context.Context, name string) ([]*github.Issue, error) {
	var out []*github.Issue
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		Labels:      []string{name},
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for page := 0; page < m.sweepMaxPages; page++ {
		var next int
		issues, err := retry.Do(ctx, m.retry, "list labeled issues", retry.IsRetryable, func() ([]*github.Issue, error) {
			issues, resp, err := m.gh.Issues.ListByRepo(ctx, m.repo.Owner, m.repo.Name, opts)
			if err != nil {
				return nil, err
			}
			next = resp.NextPage
			return issues, nil
		})
		if err != nil {
			return out, fmt.Errorf("listing issues labeled %q: %w", name, err)
		}
		out = append(out, issues...)
		if next == 0 {
			return out, nil
		}
		opts.ListOptions.Page = next
	}
	clog.FromContext(ctx).With("label", name, "pages", m.sweepMaxPages).Warn("Issue sweep truncated")
	return out, nil
}

// sweep lists open issues carrying the label and returns those that qualify
// and were not seen in the event window. Failures are logged and contribute
// nothing further.
func (m *Matcher) sweep(ctx context.Context, seen map[int]bool) ([]githubreconciler.ActionableItem, []int) {
	log := clog.FromContext(ctx).With("repo", m.repo.String())

	names, err := m.labelNames(ctx)
	if err != nil {
		log.With("error", err).Warn("Issue sweep failed")
		return nil, nil
	}

	var candidates []TrackedIssue
	for _, name := range names {
		issues, err := m.labeledIssues(ctx, name)
		if err != nil {
			log.With("error", err).Warn("Issue sweep failed")
		}
		for _, issue := range issues {
			t := Track(issue)
			if t.PullRequest || seen[t.Number] || m.disqualify(t) != "" {
				continue
			}
			candidates = append(candidates, t)
		}
	}

	slices.SortFunc(candidates, func(a, b TrackedIssue) int { return a.Number - b.Number })

	var items []githubreconciler.ActionableItem
	var suppressed []int
	for _, t := range candidates {
		if seen[t.Number] {
			continue
		}
		seen[t.Number] = true
		if m.HasOpenPR(ctx, t.Number) {
			suppressed = append(suppressed, t.Number)
			continue
		}
		items = append(items, t.item("sweep"))
	}
	log.With("labels", names, "matched", len(items), "suppressed", len(suppressed)).Info("Issue sweep complete")
	return items, suppressed
}
