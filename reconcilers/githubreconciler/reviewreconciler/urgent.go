/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reviewreconciler

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler/events"
)

var (
	// failedConclusions are terminal check outcomes worth an alert.
	failedConclusions = []string{"failure", "cancelled", "timed_out", "action_required", "startup_failure"}

	// failedDeployments are terminal deployment states worth an alert.
	failedDeployments = []string{"failure", "error"}

	// pendingStatuses are non-terminal states that become alerts once stalled.
	pendingStatuses = []string{"queued", "in_progress", "waiting", "pending", "requested"}
)

// UrgentLines renders one alert per failed or stalled check run, check suite,
// or deployment status event. Identical lines are reported once, in event
// order. A pending check is stalled when it started more than stallAfter
// before now; stallAfter <= 0 disables stall alerts.
func UrgentLines(evs []events.Event, now time.Time, stallAfter time.Duration) []string {
	var lines []string
	for _, ev := range evs {
		line := urgentLine(ev, now, stallAfter)
		if line != "" && !slices.Contains(lines, line) {
			lines = append(lines, line)
		}
	}
	return lines
}

func urgentLine(ev events.Event, now time.Time, stallAfter time.Duration) string {
	switch ev.Kind {
	case events.KindCheckRun:
		cr := ev.CheckRun
		state := checkState(cr.GetStatus(), cr.GetConclusion(), startOr(cr.GetStartedAt().Time, ev.CreatedAt), now, stallAfter)
		if state == "" {
			return ""
		}
		return fmt.Sprintf("check run %q %s on %s%s", cr.GetName(), state, target(ev.PullRequestNumbers(), cr.GetHeadSHA()), link(cr.GetHTMLURL()))

	case events.KindCheckSuite:
		cs := ev.CheckSuite
		state := checkState(cs.GetStatus(), cs.GetConclusion(), startOr(cs.GetCreatedAt().Time, ev.CreatedAt), now, stallAfter)
		if state == "" {
			return ""
		}
		name := cs.GetApp().GetName()
		if name == "" {
			name = "checks"
		}
		where := cs.GetHeadBranch()
		if where == "" {
			where = cs.GetHeadSHA()
		}
		return fmt.Sprintf("check suite %q %s on %s", name, state, target(ev.PullRequestNumbers(), where))

	case events.KindDeploymentStatus:
		ds := ev.DeploymentStatus
		env := ds.GetEnvironment()
		if env == "" {
			env = ev.Deployment.GetEnvironment()
		}
		s := strings.ToLower(ds.GetState())
		var state string
		switch {
		case slices.Contains(failedDeployments, s):
			state = strings.ToUpper(s)
		case slices.Contains(pendingStatuses, s) && stalled(startOr(ds.GetCreatedAt().Time, ev.CreatedAt), now, stallAfter):
			state = fmt.Sprintf("STALLED (%s for %s)", s, now.Sub(startOr(ds.GetCreatedAt().Time, ev.CreatedAt)).Round(time.Minute))
		default:
			return ""
		}
		url := ds.GetTargetURL()
		if url == "" {
			url = ds.GetLogURL()
		}
		return fmt.Sprintf("deployment %q %s for %s%s", env, state, target(nil, ev.Deployment.GetRef()), link(url))
	}
	return ""
}

// checkState returns the alert label for a check, or "" when there is
// nothing to report. A conclusion marks the check as terminal even if the
// status is missing from the payload.
func checkState(status, conclusion string, started, now time.Time, stallAfter time.Duration) string {
	status, conclusion = strings.ToLower(status), strings.ToLower(conclusion)
	switch {
	case conclusion != "" || status == "completed":
		if slices.Contains(failedConclusions, conclusion) {
			return strings.ToUpper(conclusion)
		}
	case slices.Contains(pendingStatuses, status) && stalled(started, now, stallAfter):
		return fmt.Sprintf("STALLED (%s for %s)", status, now.Sub(started).Round(time.Minute))
	}
	return ""
}

func stalled(started, now time.Time, stallAfter time.Duration) bool {
	return stallAfter > 0 && !started.IsZero() && now.Sub(started) > stallAfter
}

func startOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}

func target(prs []int, fallback string) string {
	if len(prs) == 0 {
		if fallback == "" {
			return "unknown ref"
		}
		return fallback
	}
	refs := make([]string, 0, len(prs))
	for _, n := range prs {
		refs = append(refs, fmt.Sprintf("#%d", n))
	}
	return "PR " + strings.Join(refs, ", ")
}

func link(url string) string {
	if url == "" {
		return ""
	}
	return " (" + url + ")"
}
