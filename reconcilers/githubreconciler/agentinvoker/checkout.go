/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agentinvoker

import (
	"context"

	"github.com/chainguard-dev/clog"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/clonemanager"
)

// Checkouter provides ephemeral working trees.
type Checkouter interface {
	Checkout(ctx context.Context, res *githubreconciler.Resource) (*clonemanager.Lease, error)
}

// RunInCheckout checks out item's branch, runs the agent there, and removes
// the checkout before returning, including when the runner panics.
func RunInCheckout(ctx context.Context, co Checkouter, runner Runner, repo githubreconciler.Repository, item githubreconciler.ActionableItem, prompt string) githubreconciler.RunResult {
	lease, err := co.Checkout(ctx, item.Resource(repo))
	if err != nil {
		return githubreconciler.RunResult{UnitKey: item.Key, ExitCode: -1, Error: err.Error()}
	}
	defer func() {
		if err := lease.Return(ctx); err != nil {
			clog.FromContext(ctx).With("unit", item.Key, "error", err).Warn("Failed to remove checkout")
		}
	}()

	if item.HeadSHA != "" && lease.SHA() != item.HeadSHA {
		clog.FromContext(ctx).With("unit", item.Key, "expected", item.HeadSHA, "got", lease.SHA()).
			Info("Branch moved since evaluation")
	}
	return runner.Run(ctx, item, prompt, lease.Dir())
}
