// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teradata-labs/chronicle/pkg/types"
)

const sessionColumns = `
	id, workspace_id, root_event_id, head_event_id, latest_model, provider,
	working_directory, title, parent_session_id, fork_from_event_id,
	event_count, message_count, input_tokens, output_tokens,
	cache_read_tokens, cache_creation_tokens, last_turn_input_tokens,
	cost_usd, created_at, updated_at, last_activity_at, ended_at`

// InsertSession writes a new session row. Root and head event ids may
// be empty; CreateSession sets them in the same transaction once the
// root event exists.
func (b *Backend) InsertSession(ctx context.Context, tx *sql.Tx, s *types.Session) error {
	var parentID, forkEventID any
	if s.ParentSessionID != nil {
		parentID = s.ParentSessionID.String()
	}
	if s.ForkFromEventID != nil {
		forkEventID = s.ForkFromEventID.String()
	}
	var endedAt any
	if s.EndedAt != nil {
		endedAt = formatTime(*s.EndedAt)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.WorkspaceID.String(), s.RootEventID.String(), s.HeadEventID.String(),
		s.LatestModel, s.Provider, s.WorkingDirectory, s.Title, parentID, forkEventID,
		s.EventCount, s.MessageCount, s.InputTokens, s.OutputTokens,
		s.CacheReadTokens, s.CacheCreationTokens, s.LastTurnInputTokens,
		s.CostUSD, formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
		formatTime(s.LastActivityAt), endedAt)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession fetches a session by id.
func (b *Backend) GetSession(ctx context.Context, id types.SessionID) (*types.Session, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id.String())
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// GetSessionTx is GetSession inside a transaction, for operations that
// need a consistent read-modify-write.
func (b *Backend) GetSessionTx(ctx context.Context, tx *sql.Tx, id types.SessionID) (*types.Session, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id.String())
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// GetSessionsByIDs fetches multiple sessions in one query. Missing ids
// are omitted from the result, not errors; the caller decides whether
// absence matters.
func (b *Backend) GetSessionsByIDs(ctx context.Context, ids []types.SessionID) (map[types.SessionID]*types.Session, error) {
	result := make(map[types.SessionID]*types.Session, len(ids))
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
		`SELECT `+sessionColumns+` FROM sessions WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get sessions by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result[s.ID] = s
	}
	return result, rows.Err()
}

// ListSessionsOptions filters ListSessions.
type ListSessionsOptions struct {
	WorkspaceID types.WorkspaceID
	Limit       int
	Offset      int
	// IncludeEnded keeps sessions that have a session.end marker.
	IncludeEnded bool
}

// ListSessions returns sessions ordered by recent activity.
func (b *Backend) ListSessions(ctx context.Context, opts ListSessionsOptions) ([]*types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var conds []string
	var args []any
	if !opts.WorkspaceID.IsEmpty() {
		conds = append(conds, "workspace_id = ?")
		args = append(args, opts.WorkspaceID.String())
	}
	if !opts.IncludeEnded {
		conds = append(conds, "ended_at IS NULL")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY last_activity_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// UpdateSessionHead advances a session's head pointer.
func (b *Backend) UpdateSessionHead(ctx context.Context, tx *sql.Tx, id types.SessionID, head types.EventID) error {
	now := formatTime(time.Now())
	res, err := tx.ExecContext(ctx, `
		UPDATE sessions SET head_event_id = ?, updated_at = ?, last_activity_at = ?
		WHERE id = ?`, head.String(), now, now, id.String())
	if err != nil {
		return fmt.Errorf("update head for session %s: %w", id, err)
	}
	return requireOneRow(res, id)
}

// UpdateSessionRoot sets both root and head, used once when the root
// event is created.
func (b *Backend) UpdateSessionRoot(ctx context.Context, tx *sql.Tx, id types.SessionID, root types.EventID) error {
	now := formatTime(time.Now())
	res, err := tx.ExecContext(ctx, `
		UPDATE sessions SET root_event_id = ?, head_event_id = ?, updated_at = ?
		WHERE id = ?`, root.String(), root.String(), now, id.String())
	if err != nil {
		return fmt.Errorf("update root for session %s: %w", id, err)
	}
	return requireOneRow(res, id)
}

// CounterDeltas is applied atomically with an event insert. All fields
// add to the stored counters except LastTurnInputTokens, which replaces
// the stored value when non-nil: it tracks current context occupancy,
// not an accumulating total.
type CounterDeltas struct {
	Events              int64
	Messages            int64
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	LastTurnInputTokens *int64
	CostUSD             float64
}

// IncrementSessionCounters applies deltas to the session row.
func (b *Backend) IncrementSessionCounters(ctx context.Context, tx *sql.Tx, id types.SessionID, d CounterDeltas) error {
	now := formatTime(time.Now())
	query := `
		UPDATE sessions SET
			event_count = event_count + ?,
			message_count = message_count + ?,
			input_tokens = input_tokens + ?,
			output_tokens = output_tokens + ?,
			cache_read_tokens = cache_read_tokens + ?,
			cache_creation_tokens = cache_creation_tokens + ?,
			cost_usd = cost_usd + ?,
			updated_at = ?,
			last_activity_at = ?`
	args := []any{
		d.Events, d.Messages, d.InputTokens, d.OutputTokens,
		d.CacheReadTokens, d.CacheCreationTokens, d.CostUSD, now, now,
	}
	if d.LastTurnInputTokens != nil {
		query += `, last_turn_input_tokens = ?`
		args = append(args, *d.LastTurnInputTokens)
	}
	query += ` WHERE id = ?`
	args = append(args, id.String())

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("increment counters for session %s: %w", id, err)
	}
	return requireOneRow(res, id)
}

// MarkSessionEnded stamps ended_at.
func (b *Backend) MarkSessionEnded(ctx context.Context, tx *sql.Tx, id types.SessionID, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), formatTime(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("mark session %s ended: %w", id, err)
	}
	return requireOneRow(res, id)
}

// ClearSessionEnded removes the ended_at stamp, reviving the session.
func (b *Backend) ClearSessionEnded(ctx context.Context, id types.SessionID) error {
	res, err := b.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = NULL, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("clear ended for session %s: %w", id, err)
	}
	return requireOneRow(res, id)
}

// UpdateLatestModel refreshes the cached model column. The event log
// stays authoritative; this only keeps listings cheap.
func (b *Backend) UpdateLatestModel(ctx context.Context, id types.SessionID, model string) error {
	res, err := b.db.ExecContext(ctx,
		`UPDATE sessions SET latest_model = ?, updated_at = ? WHERE id = ?`,
		model, formatTime(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("update model for session %s: %w", id, err)
	}
	return requireOneRow(res, id)
}

// UpdateLatestModelTx is UpdateLatestModel inside a transaction, used
// when a config.model_switch event lands.
func (b *Backend) UpdateLatestModelTx(ctx context.Context, tx *sql.Tx, id types.SessionID, model string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET latest_model = ?, updated_at = ? WHERE id = ?`,
		model, formatTime(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("update model for session %s: %w", id, err)
	}
	return requireOneRow(res, id)
}

// UpdateSessionTitle sets the display title.
func (b *Backend) UpdateSessionTitle(ctx context.Context, id types.SessionID, title string) error {
	res, err := b.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, formatTime(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("update title for session %s: %w", id, err)
	}
	return requireOneRow(res, id)
}

// DeleteSession removes a session, its events and its search entries.
// This is an administrative escape hatch: normal cleanup is session.end,
// which preserves history.
func (b *Backend) DeleteSession(ctx context.Context, id types.SessionID) error {
	return b.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM events_fts WHERE session_id = ?`, id.String()); err != nil {
			return fmt.Errorf("delete search entries for session %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM events WHERE session_id = ?`, id.String()); err != nil {
			return fmt.Errorf("delete events for session %s: %w", id, err)
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM sessions WHERE id = ?`, id.String())
		if err != nil {
			return fmt.Errorf("delete session %s: %w", id, err)
		}
		return requireOneRow(res, id)
	})
}

// GetSessionPreviews returns listing rows with the latest user prompt
// and latest assistant text, one window-function query instead of a
// replay per session.
func (b *Backend) GetSessionPreviews(ctx context.Context, opts ListSessionsOptions) ([]*types.SessionPreview, error) {
	sessions, err := b.ListSessions(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	ids := make([]any, len(sessions))
	placeholders := strings.Repeat("?,", len(sessions))
	placeholders = placeholders[:len(placeholders)-1]
	for i, s := range sessions {
		ids[i] = s.ID.String()
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT session_id, type, payload FROM (
			SELECT session_id, type, payload,
				ROW_NUMBER() OVER (
					PARTITION BY session_id, type
					ORDER BY sequence DESC
				) AS rn
			FROM events
			WHERE session_id IN (`+placeholders+`)
			  AND type IN ('message.user', 'message.assistant')
		) WHERE rn = 1`, ids...)
	if err != nil {
		return nil, fmt.Errorf("get session previews: %w", err)
	}
	defer rows.Close()

	type snippet struct{ user, assistant string }
	snippets := make(map[types.SessionID]*snippet, len(sessions))
	for rows.Next() {
		var sid, typ, payload string
		if err := rows.Scan(&sid, &typ, &payload); err != nil {
			return nil, fmt.Errorf("scan preview row: %w", err)
		}
		sn := snippets[types.SessionID(sid)]
		if sn == nil {
			sn = &snippet{}
			snippets[types.SessionID(sid)] = sn
		}
		text := extractMessageText(json.RawMessage(payload))
		if typ == string(types.EventMessageUser) {
			sn.user = text
		} else {
			sn.assistant = text
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	previews := make([]*types.SessionPreview, len(sessions))
	for i, s := range sessions {
		p := &types.SessionPreview{Session: s}
		if sn := snippets[s.ID]; sn != nil {
			p.LastUserMessage = sn.user
			p.LastAssistantText = sn.assistant
		}
		previews[i] = p
	}
	return previews, nil
}

func requireOneRow(res sql.Result, id types.SessionID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

func scanSession(row rowScanner) (*types.Session, error) {
	var (
		s                              types.Session
		id, workspaceID                string
		rootEventID, headEventID       sql.NullString
		parentSessionID, forkFromEvent sql.NullString
		createdAt, updatedAt, activity string
		endedAt                        sql.NullString
	)
	err := row.Scan(
		&id, &workspaceID, &rootEventID, &headEventID, &s.LatestModel, &s.Provider,
		&s.WorkingDirectory, &s.Title, &parentSessionID, &forkFromEvent,
		&s.EventCount, &s.MessageCount, &s.InputTokens, &s.OutputTokens,
		&s.CacheReadTokens, &s.CacheCreationTokens, &s.LastTurnInputTokens,
		&s.CostUSD, &createdAt, &updatedAt, &activity, &endedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	s.ID = types.SessionID(id)
	s.WorkspaceID = types.WorkspaceID(workspaceID)
	s.RootEventID = types.EventID(rootEventID.String)
	s.HeadEventID = types.EventID(headEventID.String)
	if parentSessionID.Valid {
		pid := types.SessionID(parentSessionID.String)
		s.ParentSessionID = &pid
	}
	if forkFromEvent.Valid {
		fid := types.EventID(forkFromEvent.String)
		s.ForkFromEventID = &fid
	}

	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if s.LastActivityAt, err = parseTime(activity); err != nil {
		return nil, err
	}
	if s.EndedAt, err = parseTimePtr(endedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
