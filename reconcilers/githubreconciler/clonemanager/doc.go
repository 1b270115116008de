/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package clonemanager checks out pull request branches into throwaway
// working trees. A Manager is configured with the token used for git
// transport, and Checkout returns a Lease over a fresh single-branch clone in
// its own temporary directory.
//
// Callers must Return every lease, typically with defer immediately after a
// successful Checkout, which removes the directory. Return is idempotent, so
// it is safe to call both on the normal path and from a deferred cleanup.
package clonemanager
