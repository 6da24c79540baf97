// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package storage implements the SQLite persistence backend for the
// event store: append-only events, session and workspace rows, and the
// FTS5 search index. All mutation happens inside transactions obtained
// from WithTx; the higher-level session package composes them into
// atomic operations.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	_ "github.com/teradata-labs/chronicle/internal/sqlitedriver"
)

// Backend wraps the SQLite database handle.
type Backend struct {
	db     *sql.DB
	logger *zap.Logger
}

// Options tunes the connection pool. Zero values take defaults.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open opens (creating if needed) the database at path and applies the
// schema. The special path ":memory:" opens an in-memory database, used
// by tests.
func Open(path string, opts Options, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := opts.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := opts.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	if path == ":memory:" {
		// Each pool connection would otherwise see its own empty
		// in-memory database.
		maxOpen = 1
		maxIdle = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	b := &Backend{db: db, logger: logger}
	if err := b.Initialize(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("storage backend opened",
		zap.String("path", path),
		zap.Int("max_open_conns", maxOpen))
	return b, nil
}

// buildDSN attaches per-connection pragmas to the path so every pooled
// connection gets them, and makes write transactions take the SQLite
// write lock up front (BEGIN IMMEDIATE) instead of on first write.
func buildDSN(path string) string {
	q := url.Values{}
	q.Add("_txlock", "immediate")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}

// Initialize applies the schema. Idempotent; runs on every Open.
func (b *Backend) Initialize(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (b *Backend) Close() error {
	return b.db.Close()
}

// WithTx runs fn inside a write transaction. The transaction commits if
// fn returns nil and rolls back completely otherwise, so a multi-step
// operation either fully lands or leaves no trace.
func (b *Backend) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			b.logger.Error("transaction rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// formatTime renders a timestamp for storage: RFC3339 with nanoseconds,
// always UTC, so lexical order equals chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a stored timestamp.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// parseTimePtr parses a nullable stored timestamp.
func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
