/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"

	"chainguard.dev/agentwatch/reconcilers/githubreconciler"
)

const (
	cloneDirPrefix = "agentwatch-checkout-"
	defaultHost    = "https://github.com"
)

// repoURL resolves the remote git URL for a resource's head repository. Tests
// can override this to provide local filesystem paths.
var repoURL = defaultRemoteURL

// Manager creates ephemeral checkouts.
type Manager struct {
	tokenSource oauth2.TokenSource
	host        string
	tempDir     string
	remoteURL   func(host string, res *githubreconciler.Resource) string
}

// Option configures a Manager.
type Option func(*Manager)

// WithHost sets the git host, e.g. a GitHub Enterprise Server web URL.
func WithHost(host string) Option {
	return func(m *Manager) {
		if host != "" {
			m.host = strings.TrimSuffix(host, "/")
		}
	}
}

// WithTempDir sets the parent directory for checkouts. The default is the
// system temporary directory.
func WithTempDir(dir string) Option {
	return func(m *Manager) {
		m.tempDir = dir
	}
}

// WithRemoteURL overrides how a resource maps to a clone URL, e.g. to clone
// from a mirror or a local path.
func WithRemoteURL(f func(host string, res *githubreconciler.Resource) string) Option {
	return func(m *Manager) {
		m.remoteURL = f
	}
}

// New constructs a Manager. The token source must allow cloning the
// repositories that pull requests are opened from.
func New(tokenSource oauth2.TokenSource, opts ...Option) (*Manager, error) {
	if tokenSource == nil {
		return nil, errors.New("token source cannot be nil")
	}
	m := &Manager{tokenSource: tokenSource, host: defaultHost, remoteURL: repoURL}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Lease is a checked-out working tree owned by the caller until Return.
type Lease struct {
	dir string
	sha string

	once sync.Once
	err  error
}

// Checkout clones the head branch of the pull request res into a new
// temporary directory. On failure nothing is left on disk.
func (m *Manager) Checkout(ctx context.Context, res *githubreconciler.Resource) (*Lease, error) {
	switch {
	case res == nil:
		return nil, errors.New("resource cannot be nil")
	case res.Type != githubreconciler.ResourceTypePullRequest:
		return nil, fmt.Errorf("unsupported resource type %q", res.Type)
	case res.HeadOwner == "" || res.HeadRepo == "":
		return nil, errors.New("resource head repository cannot be empty")
	case res.Ref == "":
		return nil, errors.New("resource ref cannot be empty")
	}

	auth, err := m.authForRemote()
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}

	dir, err := os.MkdirTemp(m.tempDir, cloneDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	remote := m.remoteURL(m.host, res)
	clog.FromContext(ctx).With("remote", remote, "ref", res.Ref, "dir", dir).Info("Cloning pull request branch")

	opts := &git.CloneOptions{
		URL:           remote,
		ReferenceName: plumbing.NewBranchReferenceName(res.Ref),
		SingleBranch:  true,
	}
	if auth != nil {
		opts.Auth = auth
	}
	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("cloning %s@%s: %w", res.HeadOwner+"/"+res.HeadRepo, res.Ref, err)
	}

	head, err := repo.Head()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	return &Lease{dir: dir, sha: head.Hash().String()}, nil
}

func (m *Manager) authForRemote() (*githttp.BasicAuth, error) {
	token, err := m.tokenSource.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, nil
	}
	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: token.AccessToken,
	}, nil
}

func defaultRemoteURL(host string, res *githubreconciler.Resource) string {
	return fmt.Sprintf("%s/%s/%s.git", host, res.HeadOwner, res.HeadRepo)
}

// Dir returns the working tree root.
func (l *Lease) Dir() string {
	return l.dir
}

// SHA returns the checked-out commit.
func (l *Lease) SHA() string {
	return l.sha
}

// Return removes the working tree. Only the first call does any work; later
// calls return its result.
func (l *Lease) Return(ctx context.Context) error {
	l.once.Do(func() {
		if err := os.RemoveAll(l.dir); err != nil {
			l.err = fmt.Errorf("removing checkout %s: %w", l.dir, err)
			return
		}
		clog.FromContext(ctx).With("dir", l.dir).Debug("Removed checkout")
	})
	return l.err
}
