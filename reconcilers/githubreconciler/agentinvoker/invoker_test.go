/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agentinvoker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
	"chainguard.dev/agentwatch/reconcilers/githubreconciler/clonemanager"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func shell(script string) *Invoker {
	return &Invoker{Command: "sh", Args: []string{"-c", script}, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
}

var item = githubreconciler.ActionableItem{Key: "issue-1", Type: githubreconciler.ResourceTypeIssue, Number: 1}

func TestInvokerRun(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name       string
		inv        *Invoker
		wantExit   int
		wantSignal string
		wantError  bool
	}{
		{name: "success", inv: shell("exit 0")},
		{name: "nonzero exit", inv: shell("exit 3"), wantExit: 3},
		{name: "signal", inv: shell("kill -TERM $$"), wantExit: -1, wantSignal: "terminated"},
		{name: "start failure", inv: &Invoker{Command: filepath.Join(t.TempDir(), "no-such-agent")}, wantExit: -1, wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.inv.Run(context.Background(), item, "prompt", t.TempDir())
			if res.UnitKey != "issue-1" {
				t.Errorf("UnitKey: got = %q, wanted = issue-1", res.UnitKey)
			}
			if res.ExitCode != tt.wantExit {
				t.Errorf("ExitCode: got = %d, wanted = %d", res.ExitCode, tt.wantExit)
			}
			if res.Signal != tt.wantSignal {
				t.Errorf("Signal: got = %q, wanted = %q", res.Signal, tt.wantSignal)
			}
			if (res.Error != "") != tt.wantError {
				t.Errorf("Error: got = %q, wanted error = %t", res.Error, tt.wantError)
			}
			wantOK := tt.wantExit == 0 && tt.wantSignal == "" && !tt.wantError
			if res.Succeeded() != wantOK {
				t.Errorf("Succeeded: got = %t, wanted = %t", res.Succeeded(), wantOK)
			}
		})
	}
}

func TestInvokerArgumentsAndStreams(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	var stdout bytes.Buffer
	inv := &Invoker{
		Command: "sh",
		Args:    []string{"-c", `printf '%s\n' "$0" "$@" > args.txt; echo agent-output`},
		Model:   "big-model",
		Stdout:  &stdout,
		Stderr:  &bytes.Buffer{},
	}
	res := inv.Run(context.Background(), item, "do the thing", dir)
	if !res.Succeeded() {
		t.Fatalf("Run: got = %+v, wanted success", res)
	}

	data, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	if diff := cmp.Diff([]string{"--model", "big-model", "do the thing"}, got); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
	if got := strings.TrimSpace(stdout.String()); got != "agent-output" {
		t.Errorf("stdout: got = %q, wanted = agent-output", got)
	}
}

func TestInvokerContextCancel(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res := shell("exec sleep 30").Run(ctx, item, "p", t.TempDir())
	if res.Succeeded() {
		t.Errorf("Run after cancel: got = %+v, wanted failure", res)
	}
	if res.Duration > 20*time.Second {
		t.Errorf("Duration: got = %v, wanted the agent killed promptly", res.Duration)
	}
}

func TestNew(t *testing.T) {
	if _, err := New("  ", nil, ""); err == nil {
		t.Error("New(empty): got = nil error, wanted = error")
	}
	inv, err := New("claude", []string{"--print"}, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if inv.Stdout != os.Stderr {
		t.Error("Stdout: wanted agent stdout routed to stderr")
	}
	if diff := cmp.Diff([]string{"--print", "p"}, inv.argv("p")); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
}

// recordingRunner records the directory it ran in and optionally panics.
type recordingRunner struct {
	dir   string
	sawGo bool
	panic bool
}

func (r *recordingRunner) Run(_ context.Context, it githubreconciler.ActionableItem, _, dir string) githubreconciler.RunResult {
	r.dir = dir
	_, err := os.Stat(filepath.Join(dir, "main.go"))
	r.sawGo = err == nil
	if r.panic {
		panic("agent crashed")
	}
	return githubreconciler.RunResult{UnitKey: it.Key}
}

func newCheckouter(t *testing.T) *clonemanager.Manager {
	t.Helper()
	remote := initRepo(t, "feat")
	mgr, err := clonemanager.New(oauth2.StaticTokenSource(&oauth2.Token{}),
		clonemanager.WithTempDir(t.TempDir()),
		clonemanager.WithRemoteURL(func(string, *githubreconciler.Resource) string { return remote }))
	if err != nil {
		t.Fatalf("clonemanager.New: %v", err)
	}
	return mgr
}

var prItem = githubreconciler.ActionableItem{
	Key:    "pr-5",
	Type:   githubreconciler.ResourceTypePullRequest,
	Number: 5,
	Branch: "feat",
}

func TestRunInCheckout(t *testing.T) {
	co := newCheckouter(t)
	runner := &recordingRunner{}

	res := RunInCheckout(context.Background(), co, runner, repo, prItem, "p")
	if !res.Succeeded() || res.UnitKey != "pr-5" {
		t.Errorf("RunInCheckout: got = %+v, wanted success for pr-5", res)
	}
	if !runner.sawGo {
		t.Error("runner did not see the checked-out tree")
	}
	if _, err := os.Stat(runner.dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("checkout after run: got err = %v, wanted not exist", err)
	}
}

func TestRunInCheckoutPanic(t *testing.T) {
	co := newCheckouter(t)
	runner := &recordingRunner{panic: true}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		RunInCheckout(context.Background(), co, runner, repo, prItem, "p")
	}()

	if runner.dir == "" {
		t.Fatal("runner never ran")
	}
	if _, err := os.Stat(runner.dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("checkout after panic: got err = %v, wanted not exist", err)
	}
}

func TestRunInCheckoutFailure(t *testing.T) {
	co := newCheckouter(t)
	runner := &recordingRunner{}

	missing := prItem
	missing.Branch = "gone"
	res := RunInCheckout(context.Background(), co, runner, repo, missing, "p")
	if res.Succeeded() || res.Error == "" {
		t.Errorf("RunInCheckout: got = %+v, wanted checkout error", res)
	}
	if runner.dir != "" {
		t.Error("runner ran despite failed checkout")
	}
}

// initRepo creates a repository whose branch holds main.go.
func initRepo(t *testing.T, branch string) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := wt.Add("main.go"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), hash)); err != nil {
		t.Fatalf("SetReference: %v", err)
	}
	return dir
}
