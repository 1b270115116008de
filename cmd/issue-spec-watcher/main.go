/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs one issue-spec watcher cycle: labeled issues with the
// auto-generate box checked become agent runs in the current working tree.
// Recurrence is left to an external scheduler.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/chainguard-dev/terraform-infra-common/pkg/httpmetrics"
	"github.com/sethvargo/go-envconfig"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler/issuematcher"
	"chainguard.dev/agentwatch/watchers"
	"chainguard.dev/agentwatch/watchers/issuespec"
)

type config struct {
	watchers.Config

	StateFile     string `env:"STATE_FILE,default=.agentwatch/issue-spec-state.json"`
	SpecLabel     string `env:"SPEC_LABEL,default=module-spec"`
	SweepMaxPages int    `env:"SWEEP_MAX_PAGES,default=5"`
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

	matcher, err := issuematcher.New(deps.REST, deps.Repo, cfg.SpecLabel,
		issuematcher.WithSweepMaxPages(cfg.SweepMaxPages))
	if err != nil {
		clog.FatalContextf(ctx, "creating matcher: %v", err)
	}

	w, err := issuespec.New(deps.REST, deps.Repo, deps.Store, matcher, deps.Invoker,
		issuespec.WithEventsPerPage(cfg.EventsPerPage),
		issuespec.WithDryRun(cfg.DryRun))
	if err != nil {
		clog.FatalContextf(ctx, "creating watcher: %v", err)
	}

	clog.InfoContextf(ctx, "Watching %s for %q issues, state in %s", deps.Repo, cfg.SpecLabel, deps.Store.Path())
	sum := w.Cycle(ctx)
	return cfg.Report(ctx, os.Stdout, sum)
}
