/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics records per-cycle Prometheus metrics for a watcher and
// pushes them to a Pushgateway, since a one-shot job cannot be scraped.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"chainguard.dev/agentwatch/watchers/summary"
)

// Cycle holds the metrics of one watcher process. Each process runs a single
// cycle and pushes once, so every series describes the last cycle only and
// the Pushgateway keeps the newest value.
type Cycle struct {
	registry *prometheus.Registry

	newEvents   prometheus.Gauge
	gap         prometheus.Gauge
	items       *prometheus.GaugeVec
	runs        *prometheus.GaugeVec
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// New registers the cycle metrics in a fresh registry.
func New() *Cycle {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Cycle{
		registry: reg,
		newEvents: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentwatch_new_events",
			Help: "Events newer than the cursor in the last cycle",
		}),
		gap: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentwatch_cursor_gap",
			Help: "1 when the cursor fell out of the event window in the last cycle",
		}),
		items: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentwatch_items",
			Help: "Items found in the last cycle, by class",
		}, []string{"class"}),
		runs: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentwatch_agent_runs",
			Help: "Agent invocations in the last cycle, by result",
		}, []string{"result"}),
		duration: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentwatch_cycle_duration_seconds",
			Help: "Wall time of the last cycle",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentwatch_last_success_timestamp_seconds",
			Help: "Unix time of the last cycle that completed without error",
		}),
	}
}

// Observe records s.
func (c *Cycle) Observe(s *summary.Summary) {
	c.newEvents.Set(float64(s.NewEvents))
	c.gap.Set(0)
	if s.GapDetected {
		c.gap.Set(1)
	}
	c.items.WithLabelValues("matched").Set(float64(len(s.Matched)))
	c.items.WithLabelValues("urgent").Set(float64(len(s.Urgent)))
	c.items.WithLabelValues("actionable").Set(float64(len(s.Actionable)))
	c.items.WithLabelValues("ready").Set(float64(len(s.Ready)))
	c.items.WithLabelValues("skipped").Set(float64(len(s.Skipped)))

	runs := map[string]int{"skipped": 0, "success": 0, "failure": 0}
	for _, r := range s.Runs {
		switch {
		case r.Skipped:
			runs["skipped"]++
		case r.Succeeded():
			runs["success"]++
		default:
			runs["failure"]++
		}
	}
	for result, n := range runs {
		c.runs.WithLabelValues(result).Set(float64(n))
	}

	if !s.FinishedAt.IsZero() {
		c.duration.Set(s.FinishedAt.Sub(s.StartedAt).Seconds())
		if s.Error == "" {
			c.lastSuccess.Set(float64(s.FinishedAt.Unix()))
		}
	}
}

// Push sends the registry to the Pushgateway at url under job, grouped by
// repository.
func (c *Cycle) Push(ctx context.Context, url, job, repository string) error {
	err := push.New(url, job).
		Gatherer(c.registry).
		Grouping("repository", repository).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
