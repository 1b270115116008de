/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs one pr-review watcher cycle: it reports failing checks and
// ready pull requests and runs the agent in a fresh checkout of every pull
// request with unresolved review-bot threads.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/chainguard-dev/terraform-infra-common/pkg/httpmetrics"
	"github.com/sethvargo/go-envconfig"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/clonemanager"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/reviewreconciler"
	"chainguard.dev/agentwatch/watchers"
	"chainguard.dev/agentwatch/watchers/prreview"
)

type config struct {
	watchers.Config

	StateFile       string        `env:"STATE_FILE,default=.agentwatch/pr-review-state.json"`
	ReviewBot       string        `env:"REVIEW_BOT,required"`
	RecentPRLimit   int           `env:"RECENT_PR_LIMIT,default=10"`
	CheckStallAfter time.Duration `env:"CHECK_STALL_AFTER,default=30m"`
}

func main() {
	os.Exit(run())
}

// run executes one cycle and returns the process exit code, so deferred
// cleanup such as the tracer flush completes before main exits.
func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer httpmetrics.SetupTracer(ctx)()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	deps, err := cfg.Build(ctx, cfg.StateFile)
	if err != nil {
		clog.FatalContextf(ctx, "invalid config: %v", err)
	}

	rec, err := reviewreconciler.New(deps.REST, deps.GraphQL, deps.Repo, cfg.ReviewBot,
		reviewreconciler.WithRecentLimit(cfg.RecentPRLimit),
		reviewreconciler.WithStallAfter(cfg.CheckStallAfter))
	if err != nil {
		clog.FatalContextf(ctx, "creating reconciler: %v", err)
	}

	co, err := clonemanager.New(deps.TokenSource, clonemanager.WithHost(githubreconciler.WebURL(cfg.APIURL)))
	if err != nil {
		clog.FatalContextf(ctx, "creating clone manager: %v", err)
	}

	w, err := prreview.New(deps.REST, deps.Repo, deps.Store, rec, co, deps.Invoker,
		prreview.WithEventsPerPage(cfg.EventsPerPage),
		prreview.WithDryRun(cfg.DryRun))
	if err != nil {
		clog.FatalContextf(ctx, "creating watcher: %v", err)
	}

	clog.InfoContextf(ctx, "Watching %s pull requests reviewed by %q, state in %s", deps.Repo, cfg.ReviewBot, deps.Store.Path())
	sum := w.Cycle(ctx)
	return cfg.Report(ctx, os.Stdout, sum)
}
