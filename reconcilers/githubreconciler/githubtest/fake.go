/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-github/v84/github"
)

// Activity is a review or comment by Login at At.
type Activity struct {
	Login string
	At    time.Time
}

// Thread is a review thread and the logins of its commenters.
type Thread struct {
	Resolved bool
	Outdated bool
	Authors  []string
}

// PullRequest is the fake state of one pull request.
type PullRequest struct {
	Number   int
	State    string
	Title    string
	Branch   string
	HeadSHA  string
	CommitAt time.Time

	Reviews        []Activity
	ReviewComments []Activity
	IssueComments  []Activity

	// ThreadPages are served one GraphQL page at a time.
	ThreadPages [][]Thread

	FailGet     bool
	FailThreads bool
	FailCommit  bool
}

// Fake is an in-memory repository served over the REST and GraphQL APIs.
// Configure it before calling Serve, or through its setters afterwards.
type Fake struct {
	Owner string
	Repo  string

	mu           sync.Mutex
	events       []*github.Event
	eventsStatus int
	openIssues   []*github.Issue
	openPRBodies []string
	pulls        map[int]*PullRequest
	recent       []int
	requests     []string
	flaky        map[string]int
}

// NewFake returns an empty Fake for owner/repo.
func NewFake(owner, repo string) *Fake {
	return &Fake{Owner: owner, Repo: repo, pulls: make(map[int]*PullRequest)}
}

// SetEvents replaces the newest-first event feed.
func (f *Fake) SetEvents(evs ...*github.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = evs
	f.eventsStatus = 0
}

// FailEvents makes the events endpoint answer with status.
func (f *Fake) FailEvents(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventsStatus = status
}

// SetOpenIssues replaces what the open issue listing returns.
func (f *Fake) SetOpenIssues(issues ...*github.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openIssues = issues
}

// SetOpenPRBodies replaces the bodies of open pull requests returned by
// issue search.
func (f *Fake) SetOpenPRBodies(bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openPRBodies = bodies
}

// AddPullRequest registers pr.
func (f *Fake) AddPullRequest(pr *PullRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pr.State == "" {
		pr.State = "open"
	}
	f.pulls[pr.Number] = pr
}

// SetRecent sets the numbers returned by the open pull request listing.
func (f *Fake) SetRecent(numbers ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recent = numbers
}

// Flake makes the next n requests for path answer 502 Bad Gateway.
func (f *Fake) Flake(path string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flaky == nil {
		f.flaky = make(map[string]int)
	}
	f.flaky[path] = n
}

// Requests returns "METHOD path" for every request served so far.
func (f *Fake) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// Serve starts a server for f.
func (f *Fake) Serve(t *testing.T) *Server {
	t.Helper()
	prefix := fmt.Sprintf("/repos/%s/%s", f.Owner, f.Repo)

	mux := http.NewServeMux()
	handle := func(pattern string, h func(w http.ResponseWriter, r *http.Request)) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.requests = append(f.requests, r.Method+" "+r.URL.Path)
			if f.flaky[r.URL.Path] > 0 {
				f.flaky[r.URL.Path]--
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			h(w, r)
		})
	}

	handle("GET "+prefix+"/events", func(w http.ResponseWriter, _ *http.Request) {
		if f.eventsStatus != 0 {
			w.WriteHeader(f.eventsStatus)
			return
		}
		JSON(t, w, f.events)
	})

	handle("GET "+prefix+"/labels", func(w http.ResponseWriter, r *http.Request) {
		Page(t, w, r, Labels(f.openIssues), 100)
	})

	handle("GET "+prefix+"/issues", func(w http.ResponseWriter, r *http.Request) {
		Page(t, w, r, WithLabels(f.openIssues, r.URL.Query().Get("labels")), 100)
	})

	handle("GET /search/issues", func(w http.ResponseWriter, r *http.Request) {
		ref := regexp.MustCompile(`"Fixes #(\d+)"`).FindStringSubmatch(r.URL.Query().Get("q"))
		var items []*github.Issue
		for i, body := range f.openPRBodies {
			if ref == nil || !strings.Contains(strings.ToLower(body), "fixes #"+ref[1]) {
				continue
			}
			items = append(items, &github.Issue{
				Number:           github.Ptr(1000 + i),
				State:            github.Ptr("open"),
				Body:             github.Ptr(body),
				PullRequestLinks: &github.PullRequestLinks{URL: github.Ptr("x")},
			})
		}
		JSON(t, w, &github.IssuesSearchResult{Total: github.Ptr(len(items)), Issues: items})
	})

	handle("GET "+prefix+"/pulls", func(w http.ResponseWriter, _ *http.Request) {
		out := []*github.PullRequest{}
		for _, n := range f.recent {
			out = append(out, &github.PullRequest{Number: github.Ptr(n)})
		}
		JSON(t, w, out)
	})

	pull := func(w http.ResponseWriter, r *http.Request) *PullRequest {
		n, _ := strconv.Atoi(r.PathValue("n"))
		pr, ok := f.pulls[n]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return nil
		}
		return pr
	}

	handle("GET "+prefix+"/pulls/{n}", func(w http.ResponseWriter, r *http.Request) {
		pr := pull(w, r)
		if pr == nil {
			return
		}
		if pr.FailGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		JSON(t, w, &github.PullRequest{
			Number:  github.Ptr(pr.Number),
			State:   github.Ptr(pr.State),
			Title:   github.Ptr(pr.Title),
			HTMLURL: github.Ptr(fmt.Sprintf("https://github.com/%s/%s/pull/%d", f.Owner, f.Repo, pr.Number)),
			Head: &github.PullRequestBranch{
				Ref: github.Ptr(pr.Branch),
				SHA: github.Ptr(pr.HeadSHA),
				Repo: &github.Repository{
					Name:  github.Ptr(f.Repo),
					Owner: &github.User{Login: github.Ptr(f.Owner)},
				},
			},
		})
	})

	handle("GET "+prefix+"/pulls/{n}/reviews", func(w http.ResponseWriter, r *http.Request) {
		pr := pull(w, r)
		if pr == nil {
			return
		}
		out := []*github.PullRequestReview{}
		for _, a := range pr.Reviews {
			out = append(out, &github.PullRequestReview{
				User:        &github.User{Login: github.Ptr(a.Login)},
				SubmittedAt: &github.Timestamp{Time: a.At},
			})
		}
		JSON(t, w, out)
	})

	handle("GET "+prefix+"/pulls/{n}/comments", func(w http.ResponseWriter, r *http.Request) {
		pr := pull(w, r)
		if pr == nil {
			return
		}
		out := []*github.PullRequestComment{}
		for _, a := range pr.ReviewComments {
			out = append(out, &github.PullRequestComment{
				User:      &github.User{Login: github.Ptr(a.Login)},
				CreatedAt: &github.Timestamp{Time: a.At},
			})
		}
		JSON(t, w, out)
	})

	handle("GET "+prefix+"/issues/{n}/comments", func(w http.ResponseWriter, r *http.Request) {
		pr := pull(w, r)
		if pr == nil {
			return
		}
		out := []*github.IssueComment{}
		for _, a := range pr.IssueComments {
			out = append(out, &github.IssueComment{
				User:      &github.User{Login: github.Ptr(a.Login)},
				CreatedAt: &github.Timestamp{Time: a.At},
			})
		}
		JSON(t, w, out)
	})

	handle("GET "+prefix+"/commits/{sha}", func(w http.ResponseWriter, r *http.Request) {
		for _, pr := range f.pulls {
			if pr.HeadSHA != r.PathValue("sha") {
				continue
			}
			if pr.FailCommit {
				break
			}
			JSON(t, w, &github.RepositoryCommit{
				SHA: github.Ptr(pr.HeadSHA),
				Commit: &github.Commit{
					Committer: &github.CommitAuthor{Date: &github.Timestamp{Time: pr.CommitAt}},
				},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	handle("POST "+GraphQLPath, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string `json:"query"`
			Variables struct {
				Number int     `json:"number"`
				Cursor *string `json:"cursor"`
			} `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode graphql request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		pr, ok := f.pulls[req.Variables.Number]
		if !ok || pr.FailThreads {
			Raw(w, `{"errors":[{"message":"could not resolve pull request"}]}`)
			return
		}
		page := 0
		if req.Variables.Cursor != nil {
			page, _ = strconv.Atoi(strings.TrimPrefix(*req.Variables.Cursor, "page-"))
		}
		JSON(t, w, threadsResponse(pr.ThreadPages, page))
	})

	return New(t, mux)
}

func threadsResponse(pages [][]Thread, page int) map[string]any {
	var threads []Thread
	if page < len(pages) {
		threads = pages[page]
	}
	nodes := []map[string]any{}
	for _, th := range threads {
		comments := []map[string]any{}
		for _, a := range th.Authors {
			comments = append(comments, map[string]any{"author": map[string]any{"login": a}})
		}
		nodes = append(nodes, map[string]any{
			"isResolved": th.Resolved,
			"isOutdated": th.Outdated,
			"comments":   map[string]any{"nodes": comments},
		})
	}
	hasNext := page+1 < len(pages)
	endCursor := ""
	if hasNext {
		endCursor = fmt.Sprintf("page-%d", page+1)
	}
	return map[string]any{
		"data": map[string]any{
			"repository": map[string]any{
				"pullRequest": map[string]any{
					"reviewThreads": map[string]any{
						"pageInfo": map[string]any{"hasNextPage": hasNext, "endCursor": endCursor},
						"nodes":    nodes,
					},
				},
			},
		},
	}
}
