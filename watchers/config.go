/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package watchers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/agentinvoker"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/statestore"
	"chainguard.dev/agentwatch/watchers/metrics"
	"chainguard.dev/agentwatch/watchers/summary"
)

// Config is the environment both watchers read. Each command embeds it and
// adds its own STATE_FILE default.
type Config struct {
	Token      string `env:"GITHUB_TOKEN,required"`
	Repository string `env:"GITHUB_REPOSITORY,required"`
	APIURL     string `env:"GITHUB_API_URL"`

	EventsPerPage int `env:"EVENTS_PER_PAGE,default=100"`

	AgentCommand string   `env:"AGENT_COMMAND,default=claude"`
	AgentArgs    []string `env:"AGENT_ARGS,default=--print"`
	AgentModel   string   `env:"AGENT_MODEL"`

	DryRun         bool   `env:"DRY_RUN,default=false"`
	PushgatewayURL string `env:"PUSHGATEWAY_URL"`
}

// Deps are the collaborators built from a Config.
type Deps struct {
	Repo        githubreconciler.Repository
	TokenSource oauth2.TokenSource
	REST        *github.Client
	GraphQL     *githubv4.Client
	Store       *statestore.FileStore
	Invoker     *agentinvoker.Invoker
}

// Build validates cfg and constructs the collaborators. Nothing is read or
// written before every required setting checks out.
func (c Config) Build(ctx context.Context, stateFile string) (*Deps, error) {
	repo, err := githubreconciler.ParseRepository(c.Repository)
	if err != nil {
		return nil, fmt.Errorf("GITHUB_REPOSITORY: %w", err)
	}
	ts, err := githubreconciler.StaticTokenSource(c.Token)
	if err != nil {
		return nil, fmt.Errorf("GITHUB_TOKEN: %w", err)
	}
	rest, gql, err := githubreconciler.NewClients(ctx, ts, c.APIURL)
	if err != nil {
		return nil, fmt.Errorf("GITHUB_API_URL: %w", err)
	}
	if stateFile == "" {
		return nil, errors.New("STATE_FILE cannot be empty")
	}
	abs, err := filepath.Abs(stateFile)
	if err != nil {
		return nil, fmt.Errorf("STATE_FILE: %w", err)
	}
	store, err := statestore.NewFileStore(abs)
	if err != nil {
		return nil, fmt.Errorf("STATE_FILE: %w", err)
	}
	inv, err := agentinvoker.New(c.AgentCommand, c.AgentArgs, c.AgentModel)
	if err != nil {
		return nil, fmt.Errorf("AGENT_COMMAND: %w", err)
	}
	return &Deps{Repo: repo, TokenSource: ts, REST: rest, GraphQL: gql, Store: store, Invoker: inv}, nil
}

// Report writes sum to w, pushes metrics when a Pushgateway is configured, and
// returns the process exit code.
func (c Config) Report(ctx context.Context, w io.Writer, sum *summary.Summary) int {
	if err := sum.Write(w); err != nil {
		clog.FromContext(ctx).With("error", err).Error("Writing summary failed")
		return 1
	}

	if c.PushgatewayURL != "" {
		m := metrics.New()
		m.Observe(sum)
		if err := m.Push(ctx, c.PushgatewayURL, sum.Job, sum.Repository); err != nil {
			clog.FromContext(ctx).With("error", err).Warn("Pushing metrics failed")
		}
	}
	return sum.ExitCode()
}
