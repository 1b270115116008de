/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agentinvoker

import (
	"fmt"
	"slices"
	"strconv"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
)

var (
	issueTemplate = MustParseTemplate(`You are working in a checkout of {{repository}}.

Issue #{{number}} carries a module specification and asked for a pull request
to be generated from it. Its details follow as YAML:

{{context}}

Implement what the issue describes on a new branch and open a pull request
against the default branch. The pull request body must contain the line
"Fixes #{{number}}". Do not modify unrelated files.`)

	pullRequestTemplate = MustParseTemplate(`You are working in a checkout of branch {{branch}} of {{repository}}.

Pull request #{{number}} has review threads from the automated reviewer that
are still unresolved. Its details follow as YAML:

{{context}}

Read each unresolved review thread on the pull request. Address the feedback
with commits on {{branch}} and push them. Reply on a thread when you decide
not to change the code, explaining why.`)
)

// promptContext is the structured part of a prompt.
type promptContext struct {
	Repository        string `yaml:"repository"`
	Kind              string `yaml:"kind"`
	Number            int    `yaml:"number"`
	Title             string `yaml:"title,omitempty"`
	URL               string `yaml:"url,omitempty"`
	Reason            string `yaml:"reason"`
	Branch            string `yaml:"branch,omitempty"`
	HeadSHA           string `yaml:"headSha,omitempty"`
	UnresolvedThreads int    `yaml:"unresolvedThreads,omitempty"`
	Body              string `yaml:"body,omitempty"`
}

// BuildPrompt renders the agent instructions for item. The output depends only
// on its inputs.
func BuildPrompt(repo githubreconciler.Repository, item githubreconciler.ActionableItem) (string, error) {
	pc := promptContext{
		Repository:        repo.String(),
		Kind:              string(item.Type),
		Number:            item.Number,
		Title:             item.Title,
		URL:               item.URL,
		Reason:            item.Reason,
		Branch:            item.Branch,
		HeadSHA:           item.HeadSHA,
		UnresolvedThreads: item.Unresolved,
		Body:              item.Body,
	}

	var tmpl *Template
	switch item.Type {
	case githubreconciler.ResourceTypeIssue:
		tmpl = issueTemplate
	case githubreconciler.ResourceTypePullRequest:
		if item.Branch == "" {
			return "", fmt.Errorf("pull request #%d has no branch", item.Number)
		}
		t, err := pullRequestTemplate.BindString("branch", item.Branch)
		if err != nil {
			return "", err
		}
		tmpl = t
	default:
		return "", fmt.Errorf("unsupported item type %q", item.Type)
	}

	tmpl, err := tmpl.BindString("repository", repo.String())
	if err != nil {
		return "", err
	}
	if tmpl, err = tmpl.BindString("number", strconv.Itoa(item.Number)); err != nil {
		return "", err
	}
	if tmpl, err = tmpl.BindYAML("context", pc); err != nil {
		return "", err
	}
	return tmpl.Build()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
