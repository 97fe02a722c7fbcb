// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store provides storage implementations.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Querier is the subset of pgxpool.Pool used by repositories. pgxmock
// pools satisfy it, which keeps repository tests free of a database.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connection retry defaults.
const (
	DefaultConnectRetries = 5
	DefaultConnectBackoff = 500 * time.Millisecond
	maxConnectBackoff     = 10 * time.Second
)

// RetryConfig controls how often a backend is pinged before giving up.
type RetryConfig struct {
	// Retries is the number of pings after the first. Zero selects the default.
	Retries int
	// Backoff is the initial delay between pings. Zero selects the default.
	Backoff time.Duration
}

func (c RetryConfig) backoff() retry.Backoff {
	retries := c.Retries
	if retries <= 0 {
		retries = DefaultConnectRetries
	}
	base := c.Backoff
	if base <= 0 {
		base = DefaultConnectBackoff
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxConnectBackoff, b)
	return retry.WithMaxRetries(uint64(retries), b) //nolint:gosec // retries is positive
}

// pingWithRetry calls ping until it succeeds or the retry budget runs out.
func pingWithRetry(ctx context.Context, cfg RetryConfig, ping func(context.Context) error) error {
	return retry.Do(ctx, cfg.backoff(), func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Connect opens a PostgreSQL pool and waits until the database answers.
func Connect(ctx context.Context, dsn string, cfg RetryConfig) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("backend", "postgres").Wrap(err)
	}
	if err := pingWithRetry(ctx, cfg, pool.Ping); err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").With("backend", "postgres").Wrap(err)
	}
	return pool, nil
}
