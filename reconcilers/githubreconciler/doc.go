/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubreconciler holds the types shared by the poll-based GitHub
// watchers: the repository and resource identifiers, the authenticated REST
// and GraphQL clients, and the ActionableItem and RunResult values that flow
// from the matchers to the agent invoker and into the cycle summary.
//
// Each watcher runs exactly one poll cycle per process:
//
//  1. Load persisted state (statestore)
//  2. Fetch the recent events window and advance the cursor (eventcursor)
//  3. Compute the actionable set (issuematcher or reviewreconciler)
//  4. Invoke the agent once per actionable item, sequentially (agentinvoker)
//  5. Persist state and print the summary
package githubreconciler
