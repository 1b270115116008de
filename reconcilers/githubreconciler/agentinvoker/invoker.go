/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package agentinvoker builds agent prompts and runs the coding agent as a
// subprocess, one item at a time.
package agentinvoker

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
)

const (
	tracerName = "chainguard.dev/agentwatch/agentinvoker"

	// waitDelay bounds how long Run waits for the agent's output to drain
	// after the agent is killed.
	waitDelay = 10 * time.Second
)

// Runner runs the agent for one item in dir.
type Runner interface {
	Run(ctx context.Context, item githubreconciler.ActionableItem, prompt, dir string) githubreconciler.RunResult
}

// Invoker spawns the agent command. The prompt is passed as the final
// argument, preceded by "--model <Model>" when Model is set.
type Invoker struct {
	Command string
	Args    []string
	Model   string

	// Stdin, Stdout and Stderr default to the process's stdin, stderr and
	// stderr. Agent stdout goes to stderr so that the process's stdout only
	// carries the cycle summary.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

var _ Runner = (*Invoker)(nil)

// New returns an Invoker for command.
func New(command string, args []string, model string) (*Invoker, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, errors.New("agent command cannot be empty")
	}
	return &Invoker{
		Command: command,
		Args:    args,
		Model:   model,
		Stdin:   os.Stdin,
		Stdout:  os.Stderr,
		Stderr:  os.Stderr,
	}, nil
}

// argv returns the arguments passed to Command.
func (i *Invoker) argv(prompt string) []string {
	args := append([]string{}, i.Args...)
	if i.Model != "" {
		args = append(args, "--model", i.Model)
	}
	return append(args, prompt)
}

// Run implements Runner. It blocks until the agent exits. Cancelling ctx
// kills the agent.
func (i *Invoker) Run(ctx context.Context, item githubreconciler.ActionableItem, prompt, dir string) githubreconciler.RunResult {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("unit_key", item.Key),
		attribute.String("command", i.Command),
	))
	defer span.End()

	log := clog.FromContext(ctx).With("unit", item.Key, "command", i.Command, "dir", dir)
	res := githubreconciler.RunResult{UnitKey: item.Key, WorkDir: dir}

	cmd := exec.CommandContext(ctx, i.Command, i.argv(prompt)...)
	cmd.Dir = dir
	cmd.Stdin = i.Stdin
	cmd.Stdout = i.Stdout
	cmd.Stderr = i.Stderr
	cmd.WaitDelay = waitDelay

	log.Info("Starting agent")
	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			res.Signal = ws.Signal().String()
		}
	default:
		res.ExitCode = -1
		res.Error = err.Error()
	}

	span.SetAttributes(attribute.Int("exit_code", res.ExitCode))
	if !res.Succeeded() {
		span.SetStatus(codes.Error, "agent failed")
		log.With("exit_code", res.ExitCode, "signal", res.Signal, "error", res.Error).Warn("Agent failed")
	} else {
		log.With("duration", res.Duration).Info("Agent finished")
	}
	return res
}
