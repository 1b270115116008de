/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"golang.org/x/oauth2"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
)

func TestCheckoutLifecycle(t *testing.T) {
	ctx := context.Background()
	repoDir, _, featHash := initTestRepo(t)
	useLocalRemote(t, repoDir)

	mgr, err := New(staticTokenSource(""), WithTempDir(t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	lease, err := mgr.Checkout(ctx, testResource("feat"))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if got := lease.SHA(); got != featHash {
		t.Errorf("SHA: got = %s, wanted = %s", got, featHash)
	}
	if lease.Dir() == repoDir {
		t.Fatal("expected working dir to differ from remote")
	}
	if _, err := os.Stat(filepath.Join(lease.Dir(), "feature.txt")); err != nil {
		t.Errorf("feature file missing from checkout: %v", err)
	}

	if err := lease.Return(ctx); err != nil {
		t.Fatalf("Return: %v", err)
	}
	if _, err := os.Stat(lease.Dir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("checkout dir after Return: got err = %v, wanted not exist", err)
	}
	if err := lease.Return(ctx); err != nil {
		t.Errorf("second Return: got = %v, wanted = nil", err)
	}
}

func TestCheckoutReturnsOnPanic(t *testing.T) {
	ctx := context.Background()
	repoDir, _, _ := initTestRepo(t)
	useLocalRemote(t, repoDir)

	mgr, err := New(staticTokenSource(""), WithTempDir(t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var dir string
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic")
			}
		}()
		lease, err := mgr.Checkout(ctx, testResource("feat"))
		if err != nil {
			t.Fatalf("Checkout: %v", err)
		}
		defer lease.Return(ctx)
		dir = lease.Dir()
		panic("agent exploded")
	}()

	if dir == "" {
		t.Fatal("checkout never happened")
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("checkout dir after panic: got err = %v, wanted not exist", err)
	}
}

func TestCheckoutMissingBranchLeavesNothing(t *testing.T) {
	ctx := context.Background()
	repoDir, _, _ := initTestRepo(t)
	useLocalRemote(t, repoDir)

	parent := t.TempDir()
	mgr, err := New(staticTokenSource(""), WithTempDir(parent))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := mgr.Checkout(ctx, testResource("does-not-exist")); err == nil {
		t.Fatal("Checkout of missing branch: got = nil error, wanted = error")
	}
	entries, err := os.ReadDir(parent)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp entries after failed checkout: got = %d, wanted = 0", len(entries))
	}
}

func TestCheckoutValidation(t *testing.T) {
	mgr, err := New(staticTokenSource("tok"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	issue := testResource("feat")
	issue.Type = githubreconciler.ResourceTypeIssue
	noRef := testResource("")
	noHead := testResource("feat")
	noHead.HeadRepo = ""

	for name, res := range map[string]*githubreconciler.Resource{
		"nil":     nil,
		"issue":   issue,
		"no ref":  noRef,
		"no head": noHead,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := mgr.Checkout(context.Background(), res); err == nil {
				t.Error("Checkout: got = nil error, wanted = error")
			}
		})
	}
}

func TestNewRequiresTokenSource(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil): got = nil error, wanted = error")
	}
}

func TestDefaultRemoteURL(t *testing.T) {
	res := &githubreconciler.Resource{HeadOwner: "someone", HeadRepo: "fork"}

	mgr, err := New(staticTokenSource("tok"), WithHost("https://ghe.example.com/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, want := defaultRemoteURL(mgr.host, res), "https://ghe.example.com/someone/fork.git"; got != want {
		t.Errorf("defaultRemoteURL = %q, want %q", got, want)
	}
	if got, want := defaultRemoteURL(defaultHost, res), "https://github.com/someone/fork.git"; got != want {
		t.Errorf("defaultRemoteURL = %q, want %q", got, want)
	}
}

func TestAuthForRemote(t *testing.T) {
	mgr, _ := New(staticTokenSource("secret"))
	auth, err := mgr.authForRemote()
	if err != nil {
		t.Fatalf("authForRemote: %v", err)
	}
	if auth == nil || auth.Password != "secret" {
		t.Errorf("auth: got = %+v, wanted password secret", auth)
	}

	mgr, _ = New(staticTokenSource(""))
	if auth, _ := mgr.authForRemote(); auth != nil {
		t.Errorf("auth with empty token: got = %+v, wanted nil", auth)
	}
}

func testResource(ref string) *githubreconciler.Resource {
	return &githubreconciler.Resource{
		Owner:     "tests",
		Repo:      "repo",
		Number:    1,
		Type:      githubreconciler.ResourceTypePullRequest,
		Ref:       ref,
		HeadOwner: "tests",
		HeadRepo:  "repo",
	}
}

func useLocalRemote(t *testing.T, dir string) {
	t.Helper()
	repoURL = func(string, *githubreconciler.Resource) string { return dir }
	t.Cleanup(func() { repoURL = defaultRemoteURL })
}

// initTestRepo creates a repository with a master branch and a feat branch
// one commit ahead, returning its path and both head hashes.
func initTestRepo(t *testing.T) (string, string, string) {
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

	commit := func(name, msg string) plumbing.Hash {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(msg), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("Add: %v", err)
		}
		hash, err := wt.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{
				Name:  "Test",
				Email: "test@example.com",
				When:  time.Now(),
			},
		})
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		return hash
	}

	masterHash := commit("README.md", "initial")
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("master"), masterHash)); err != nil {
		t.Fatalf("SetReference master: %v", err)
	}

	featRef := plumbing.NewBranchReferenceName("feat")
	if err := wt.Checkout(&git.CheckoutOptions{Branch: featRef, Create: true}); err != nil {
		t.Fatalf("Checkout feat: %v", err)
	}
	featHash := commit("feature.txt", "feature work")

	if err := wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName("master")}); err != nil {
		t.Fatalf("Checkout master: %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("master"))); err != nil {
		t.Fatalf("SetReference HEAD: %v", err)
	}

	return dir, masterHash.String(), featHash.String()
}

type staticTokenSource string

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: string(s)}, nil
}

func TestWithRemoteURL(t *testing.T) {
	ctx := context.Background()
	repoDir, masterHash, _ := initTestRepo(t)

	mgr, err := New(staticTokenSource(""),
		WithTempDir(t.TempDir()),
		WithRemoteURL(func(string, *githubreconciler.Resource) string { return repoDir }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lease, err := mgr.Checkout(ctx, testResource("master"))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	defer lease.Return(ctx)

	if got := lease.SHA(); got != masterHash {
		t.Errorf("SHA: got = %s, wanted = %s", got, masterHash)
	}
}
