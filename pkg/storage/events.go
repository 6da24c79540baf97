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
	"strings"

	"github.com/teradata-labs/chronicle/pkg/types"
)

const eventColumns = `id, session_id, parent_id, sequence, type, timestamp, payload, workspace_id`

// NextSequence returns the next sequence number for a session. It MUST
// run inside the same transaction as the event insert: outside one, a
// concurrent append could claim the same number. The UNIQUE(session_id,
// sequence) constraint backstops any caller that gets this wrong.
func (b *Backend) NextSequence(ctx context.Context, tx *sql.Tx, sessionID types.SessionID) (int64, error) {
	var next int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), -1) + 1 FROM events WHERE session_id = ?`,
		sessionID.String()).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next sequence for session %s: %w", sessionID, err)
	}
	return next, nil
}

// InsertEvent writes an event row. Events are immutable: there is no
// update or delete path. Re-inserting an existing id returns
// ErrDuplicateEvent so peer-store sync can skip events it already has.
// The existence check runs first: a duplicate row would otherwise trip
// the UNIQUE(session_id, sequence) constraint before the primary key,
// which is indistinguishable from a genuine sequence collision.
func (b *Backend) InsertEvent(ctx context.Context, tx *sql.Tx, ev *types.SessionEvent) error {
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM events WHERE id = ?`, ev.ID.String()).Scan(&exists)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, ev.ID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check event %s: %w", ev.ID, err)
	}

	var parentID any
	if ev.ParentID != nil {
		parentID = ev.ParentID.String()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID.String(), ev.SessionID.String(), parentID, ev.Sequence,
		ev.Type.String(), formatTime(ev.Timestamp), string(ev.Payload),
		ev.WorkspaceID.String())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: events.id") {
			return fmt.Errorf("%w: %s", ErrDuplicateEvent, ev.ID)
		}
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

// GetEvent fetches an event by id.
func (b *Backend) GetEvent(ctx context.Context, id types.EventID) (*types.SessionEvent, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id.String())
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return ev, err
}

// GetEventTx is GetEvent inside a transaction.
func (b *Backend) GetEventTx(ctx context.Context, tx *sql.Tx, id types.EventID) (*types.SessionEvent, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id.String())
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return ev, err
}

// GetEventsByIDs fetches multiple events in one query. Missing ids are
// omitted from the result.
func (b *Backend) GetEventsByIDs(ctx context.Context, ids []types.EventID) (map[types.EventID]*types.SessionEvent, error) {
	result := make(map[types.EventID]*types.SessionEvent, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}

	rows, err := b.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get events by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result[ev.ID] = ev
	}
	return result, rows.Err()
}

// GetEventsBySession returns a session's own events in sequence order.
// Inherited fork history is not included; use GetAncestors from the
// head for the full chain.
func (b *Backend) GetEventsBySession(ctx context.Context, sessionID types.SessionID, limit, offset int) ([]*types.SessionEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ? ORDER BY sequence ASC`
	args := []any{sessionID.String()}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get events for session %s: %w", sessionID, err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// GetEventsSince returns a session's events with sequence greater than
// afterSeq, for incremental sync.
func (b *Backend) GetEventsSince(ctx context.Context, sessionID types.SessionID, afterSeq int64) ([]*types.SessionEvent, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE session_id = ? AND sequence > ? ORDER BY sequence ASC`,
		sessionID.String(), afterSeq)
	if err != nil {
		return nil, fmt.Errorf("get events since %d for session %s: %w", afterSeq, sessionID, err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// GetAncestors walks parent pointers from the given event back to the
// root and returns the chain in root-to-target order, target included.
// The walk follows parent_id only, never session_id: a forked session's
// chain crosses into its source session, and a fork of a fork crosses
// twice.
func (b *Backend) GetAncestors(ctx context.Context, eventID types.EventID) ([]*types.SessionEvent, error) {
	rows, err := b.db.QueryContext(ctx, `
		WITH RECURSIVE ancestors(id, session_id, parent_id, sequence, type, timestamp, payload, workspace_id, depth) AS (
			SELECT `+eventColumns+`, 0 FROM events WHERE id = ?
			UNION ALL
			SELECT e.id, e.session_id, e.parent_id, e.sequence, e.type, e.timestamp, e.payload, e.workspace_id, a.depth + 1
			FROM events e JOIN ancestors a ON e.id = a.parent_id
		)
		SELECT id, session_id, parent_id, sequence, type, timestamp, payload, workspace_id
		FROM ancestors ORDER BY depth DESC`, eventID.String())
	if err != nil {
		return nil, fmt.Errorf("get ancestors of event %s: %w", eventID, err)
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	return events, nil
}

// GetChildren returns the direct children of an event. More than one
// child means the event is a branch point.
func (b *Backend) GetChildren(ctx context.Context, eventID types.EventID) ([]*types.SessionEvent, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE parent_id = ? ORDER BY timestamp ASC`,
		eventID.String())
	if err != nil {
		return nil, fmt.Errorf("get children of event %s: %w", eventID, err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// GetDescendants returns the full subtree below an event, breadth
// ordered by depth then timestamp.
func (b *Backend) GetDescendants(ctx context.Context, eventID types.EventID) ([]*types.SessionEvent, error) {
	rows, err := b.db.QueryContext(ctx, `
		WITH RECURSIVE descendants(id, session_id, parent_id, sequence, type, timestamp, payload, workspace_id, depth) AS (
			SELECT `+eventColumns+`, 0 FROM events WHERE parent_id = ?
			UNION ALL
			SELECT e.id, e.session_id, e.parent_id, e.sequence, e.type, e.timestamp, e.payload, e.workspace_id, d.depth + 1
			FROM events e JOIN descendants d ON e.parent_id = d.id
		)
		SELECT id, session_id, parent_id, sequence, type, timestamp, payload, workspace_id
		FROM descendants ORDER BY depth ASC, timestamp ASC`, eventID.String())
	if err != nil {
		return nil, fmt.Errorf("get descendants of event %s: %w", eventID, err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]*types.SessionEvent, error) {
	var events []*types.SessionEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(row rowScanner) (*types.SessionEvent, error) {
	var (
		ev                   types.SessionEvent
		id, sessionID, wsID  string
		parentID             sql.NullString
		typ, timestamp, body string
	)
	err := row.Scan(&id, &sessionID, &parentID, &ev.Sequence, &typ, &timestamp, &body, &wsID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}

	ev.ID = types.EventID(id)
	ev.SessionID = types.SessionID(sessionID)
	ev.WorkspaceID = types.WorkspaceID(wsID)
	ev.Type = types.EventType(typ)
	ev.Payload = []byte(body)
	if parentID.Valid {
		pid := types.EventID(parentID.String)
		ev.ParentID = &pid
	}
	if ev.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, err
	}
	return &ev, nil
}
