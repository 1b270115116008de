/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry retries GitHub API calls that fail with rate limits or
// transient server errors.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// Config configures retry behavior.
type Config struct {
	// MaxRetries is the maximum number of retry attempts. 0 disables retries.
	MaxRetries int
	// BaseBackoff is the initial backoff duration.
	BaseBackoff time.Duration
	// MaxBackoff caps both the exponential backoff and any server-provided
	// retry-after hint.
	MaxBackoff time.Duration
	// MaxJitter is the maximum random jitter added to backoff.
	MaxJitter time.Duration
}

// Validate checks that the retry configuration has valid values.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if c.BaseBackoff < 0 {
		return errors.New("base backoff cannot be negative")
	}
	if c.MaxBackoff < 0 {
		return errors.New("max backoff cannot be negative")
	}
	if c.MaxJitter < 0 {
		return errors.New("max jitter cannot be negative")
	}
	return nil
}

// DefaultConfig suits a short-lived poll job: a handful of quick attempts so
// a cycle fails fast when the API is unavailable and the scheduler retries.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
		MaxJitter:   250 * time.Millisecond,
	}
}

// IsRetryable classifies go-github errors. Primary and secondary rate limits
// and 5xx responses are retryable; everything else is not.
func IsRetryable(err error) bool {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var are *github.AbuseRateLimitError
	if errors.As(err, &are) {
		return true
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return er.Response.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// IsRetryableQuery classifies GraphQL client errors. Anything IsRetryable
// accepts is retryable, as is a non-200 response with a 5xx status. Errors
// reported in a GraphQL response body are not.
func IsRetryableQuery(err error) bool {
	if IsRetryable(err) {
		return true
	}
	var status int
	if _, scanErr := fmt.Sscanf(err.Error(), "non-200 OK status code: %d", &status); scanErr != nil {
		return false
	}
	return status >= http.StatusInternalServerError
}

// retryAfter extracts the server's requested wait, if any.
func retryAfter(err error) time.Duration {
	var are *github.AbuseRateLimitError
	if errors.As(err, &are) && are.RetryAfter != nil {
		return *are.RetryAfter
	}
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		if d := time.Until(rle.Rate.Reset.Time); d > 0 {
			return d
		}
	}
	return 0
}

// Do executes fn with exponential backoff, retrying only errors accepted by
// isRetryable.
func Do[T any](ctx context.Context, cfg Config, operation string, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}

		if !isRetryable(lastErr) {
			return result, lastErr
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		backoff := max(cfg.BaseBackoff<<attempt, retryAfter(lastErr))
		backoff = min(backoff, cfg.MaxBackoff)

		var jitter time.Duration
		if cfg.MaxJitter > 0 {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(cfg.MaxJitter)))
			if err == nil {
				jitter = time.Duration(n.Int64())
			}
		}

		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_retries", cfg.MaxRetries).
			With("backoff", backoff+jitter).
			With("error", lastErr.Error()).
			Warn("GitHub call failed, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}

	return result, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, lastErr)
}
