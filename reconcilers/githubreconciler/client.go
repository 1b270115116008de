/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubreconciler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/chainguard-dev/terraform-infra-common/pkg/httpmetrics"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// NewClients returns REST and GraphQL clients that forward the token from ts
// as a bearer token. An empty apiURL targets github.com; otherwise apiURL is
// treated as a GitHub Enterprise Server API root. Requests go through the
// instrumented httpmetrics transport unless ctx already carries an
// oauth2.HTTPClient.
func NewClients(ctx context.Context, ts oauth2.TokenSource, apiURL string) (*github.Client, *githubv4.Client, error) {
	if ts == nil {
		return nil, nil, errors.New("token source cannot be nil")
	}
	if _, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); !ok {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: httpmetrics.Transport})
	}
	httpClient := oauth2.NewClient(ctx, ts)

	gh := github.NewClient(httpClient)
	if isPublicAPI(apiURL) {
		return gh, githubv4.NewClient(httpClient), nil
	}

	gh, err := gh.WithEnterpriseURLs(apiURL, apiURL)
	if err != nil {
		return nil, nil, fmt.Errorf("configure enterprise urls: %w", err)
	}
	return gh, githubv4.NewEnterpriseClient(GraphQLURL(apiURL), httpClient), nil
}

// GraphQLURL derives the GraphQL endpoint from an Enterprise REST API root.
func GraphQLURL(apiURL string) string {
	u := strings.TrimSuffix(apiURL, "/")
	if base, ok := strings.CutSuffix(u, "/api/v3"); ok {
		return base + "/api/graphql"
	}
	return u + "/api/graphql"
}

// StaticTokenSource wraps a bearer token. It returns an error when the token
// is empty so a missing credential is caught before any request is made.
func StaticTokenSource(token string) (oauth2.TokenSource, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("github token cannot be empty")
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), nil
}

// WebURL derives the web host from an Enterprise REST API root. An empty
// apiURL yields https://github.com.
func WebURL(apiURL string) string {
	if isPublicAPI(apiURL) {
		return "https://github.com"
	}
	u := strings.TrimSuffix(apiURL, "/")
	u, _ = strings.CutSuffix(u, "/api/v3")
	return u
}

// isPublicAPI reports whether apiURL names github.com. Actions runners set
// GITHUB_API_URL to https://api.github.com even outside Enterprise.
func isPublicAPI(apiURL string) bool {
	return apiURL == "" || strings.TrimSuffix(apiURL, "/") == "https://api.github.com"
}
