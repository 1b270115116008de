/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubtest provides test helpers that point GitHub REST and
// GraphQL clients at an in-process server.
package githubtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
)

// GraphQLPath is where the GraphQL client sends its queries.
const GraphQLPath = "/graphql"

// Server is a fake GitHub API.
type Server struct {
	*httptest.Server

	// REST talks to the server's root, GraphQL to GraphQLPath.
	REST    *github.Client
	GraphQL *githubv4.Client
}

// New starts a server backed by mux. The server is closed when the test ends.
func New(t *testing.T, mux *http.ServeMux) *Server {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	rest := github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	rest.BaseURL = base

	return &Server{
		Server:  srv,
		REST:    rest,
		GraphQL: githubv4.NewEnterpriseClient(srv.URL+GraphQLPath, srv.Client()),
	}
}

// JSON writes v as a JSON response body.
func JSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

// Raw writes body verbatim as a JSON response.
func Raw(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

// Event builds a repository event with a raw JSON payload.
func Event(id, typ, payload string) *github.Event {
	raw := json.RawMessage(payload)
	return &github.Event{
		ID:         github.Ptr(id),
		Type:       github.Ptr(typ),
		RawPayload: &raw,
	}
}

// Page writes the slice of items selected by the request's page parameter,
// size items per page, with a Link header pointing at the next page while
// one remains.
func Page[T any](t *testing.T, w http.ResponseWriter, r *http.Request, items []T, size int) {
	t.Helper()
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	page = max(page, 1)
	start := min((page-1)*size, len(items))
	end := min(start+size, len(items))
	if end < len(items) {
		next := *r.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(page+1))
		next.RawQuery = q.Encode()
		w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next.String()))
	}
	out := []T{}
	out = append(out, items[start:end]...)
	JSON(t, w, out)
}

// Labels returns the distinct labels carried by issues in first-seen order.
func Labels(issues []*github.Issue) []*github.Label {
	var names []string
	for _, issue := range issues {
		for _, l := range issue.Labels {
			if !slices.Contains(names, l.GetName()) {
				names = append(names, l.GetName())
			}
		}
	}
	out := make([]*github.Label, 0, len(names))
	for _, name := range names {
		out = append(out, &github.Label{Name: github.Ptr(name)})
	}
	return out
}

// WithLabels keeps the issues carrying every label in the comma separated
// filter, the way the issue listing's labels parameter does. An empty filter
// keeps everything.
func WithLabels(issues []*github.Issue, filter string) []*github.Issue {
	if filter == "" {
		return issues
	}
	var out []*github.Issue
	for _, issue := range issues {
		all := true
		for _, want := range strings.Split(filter, ",") {
			if !slices.ContainsFunc(issue.Labels, func(l *github.Label) bool {
				return strings.EqualFold(l.GetName(), want)
			}) {
				all = false
				break
			}
		}
		if all {
			out = append(out, issue)
		}
	}
	return out
}
