/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubreconciler

import (
	"strconv"
	"time"
)

// ActionableItem is a unit of work offered to the agent invoker. Key is stable
// across polls for the same issue or pull request so it can be deduplicated.
type ActionableItem struct {
	Key    string       `json:"key"`
	Type   ResourceType `json:"type"`
	Number int          `json:"number"`
	Reason string       `json:"reason"`
	Title  string       `json:"title,omitempty"`
	URL    string       `json:"url,omitempty"`

	// Body is the issue body, used to build the agent prompt.
	Body string `json:"-"`

	// Pull request fields.
	Branch         string    `json:"branch,omitempty"`
	HeadSHA        string    `json:"headSha,omitempty"`
	HeadOwner      string    `json:"-"`
	HeadRepo       string    `json:"-"`
	Unresolved     int       `json:"unresolvedThreads,omitempty"`
	LatestActivity time.Time `json:"latestBotActivity,omitzero"`
	HeadCommitAt   time.Time `json:"headCommitAt,omitzero"`
}

// IssueKey returns the dedup key for an issue.
func IssueKey(number int) string {
	return "issue-" + strconv.Itoa(number)
}

// PullRequestKey returns the dedup key for a pull request.
func PullRequestKey(number int) string {
	return "pr-" + strconv.Itoa(number)
}

// Resource converts the item into a Resource within repo.
func (a ActionableItem) Resource(repo Repository) *Resource {
	res := &Resource{
		Owner:     repo.Owner,
		Repo:      repo.Name,
		Number:    a.Number,
		Type:      a.Type,
		Ref:       a.Branch,
		HeadOwner: a.HeadOwner,
		HeadRepo:  a.HeadRepo,
	}
	if res.HeadOwner == "" {
		res.HeadOwner = repo.Owner
	}
	if res.HeadRepo == "" {
		res.HeadRepo = repo.Name
	}
	return res
}

// RunResult reports the outcome of one agent invocation.
type RunResult struct {
	UnitKey  string        `json:"unitKey"`
	ExitCode int           `json:"exitCode"`
	Signal   string        `json:"signal,omitempty"`
	Error    string        `json:"error,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
	WorkDir  string        `json:"workdir,omitempty"`
	Duration time.Duration `json:"durationNs,omitempty"`
}

// Succeeded reports whether the agent ran and exited zero. Skipped runs count
// as successful.
func (r RunResult) Succeeded() bool {
	return r.Error == "" && r.Signal == "" && r.ExitCode == 0
}
