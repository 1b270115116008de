/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubreconciler

import (
	"fmt"
	"strings"
)

// ResourceType identifies the kind of GitHub object a Resource points at.
type ResourceType string

const (
	ResourceTypeIssue       ResourceType = "issue"
	ResourceTypePullRequest ResourceType = "pull_request"
)

// Repository identifies a GitHub repository.
type Repository struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// String returns the owner/name form.
func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepository parses "owner/name", tolerating a github.com URL prefix
// and a trailing ".git".
func ParseRepository(s string) (Repository, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "github.com/")
	s = strings.TrimSuffix(s, ".git")
	s = strings.Trim(s, "/")

	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, fmt.Errorf("invalid repository %q, expected owner/name", s)
	}
	return Repository{Owner: owner, Name: name}, nil
}

// Resource is a single issue or pull request within a repository. For pull
// requests, Ref is the head branch and HeadOwner/HeadRepo name the repository
// the branch lives in, which differs from Owner/Repo for forks.
type Resource struct {
	Owner  string
	Repo   string
	Number int
	Type   ResourceType

	Ref       string
	HeadOwner string
	HeadRepo  string
}
