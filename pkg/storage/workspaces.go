// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/teradata-labs/chronicle/pkg/types"
)

// GetOrCreateWorkspace returns the workspace for path, creating it if
// absent. The upsert races safely: two concurrent callers both land on
// the same row because path is the unique key and a conflicting insert
// only bumps last_activity_at.
func (b *Backend) GetOrCreateWorkspace(ctx context.Context, tx *sql.Tx, path, name string) (*types.Workspace, error) {
	now := formatTime(time.Now())
	id := types.NewWorkspaceID()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO workspaces (id, path, name, created_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET last_activity_at = excluded.last_activity_at`,
		id.String(), path, name, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert workspace %s: %w", path, err)
	}

	return b.getWorkspaceByPathTx(ctx, tx, path)
}

// GetWorkspace fetches a workspace by id.
func (b *Backend) GetWorkspace(ctx context.Context, id types.WorkspaceID) (*types.Workspace, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT id, path, name, created_at, last_activity_at
		FROM workspaces WHERE id = ?`, id.String())
	ws, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, id)
	}
	return ws, err
}

// GetWorkspaceByPath fetches a workspace by its path.
func (b *Backend) GetWorkspaceByPath(ctx context.Context, path string) (*types.Workspace, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT id, path, name, created_at, last_activity_at
		FROM workspaces WHERE path = ?`, path)
	ws, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: path %s", ErrWorkspaceNotFound, path)
	}
	return ws, err
}

func (b *Backend) getWorkspaceByPathTx(ctx context.Context, tx *sql.Tx, path string) (*types.Workspace, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, path, name, created_at, last_activity_at
		FROM workspaces WHERE path = ?`, path)
	ws, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: path %s", ErrWorkspaceNotFound, path)
	}
	return ws, err
}

// ListWorkspaces returns all workspaces ordered by recent activity.
func (b *Backend) ListWorkspaces(ctx context.Context) ([]*types.Workspace, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, path, name, created_at, last_activity_at
		FROM workspaces ORDER BY last_activity_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []*types.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, rows.Err()
}

// TouchWorkspace bumps a workspace's last_activity_at.
func (b *Backend) TouchWorkspace(ctx context.Context, tx *sql.Tx, id types.WorkspaceID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE workspaces SET last_activity_at = ? WHERE id = ?`,
		formatTime(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("touch workspace %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row rowScanner) (*types.Workspace, error) {
	var (
		ws                  types.Workspace
		id                  string
		createdAt, activity string
	)
	if err := row.Scan(&id, &ws.Path, &ws.Name, &createdAt, &activity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	ws.ID = types.WorkspaceID(id)

	var err error
	if ws.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if ws.LastActivityAt, err = parseTime(activity); err != nil {
		return nil, err
	}
	return &ws, nil
}
