// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/chronicle/pkg/types"
)

// SearchResult is one FTS5 hit with a highlighted snippet.
type SearchResult struct {
	EventID   types.EventID   `json:"eventId"`
	SessionID types.SessionID `json:"sessionId"`
	Type      types.EventType `json:"type"`
	Snippet   string          `json:"snippet"`
	Rank      float64         `json:"rank"`
}

// SearchOptions filters SearchEvents.
type SearchOptions struct {
	WorkspaceID types.WorkspaceID
	SessionID   types.SessionID
	Types       []types.EventType
	Limit       int
}

// IndexEventForSearch adds an event's text content to the FTS5 index.
// Indexing is best-effort and runs after the write transaction commits:
// a failed index write is logged, never surfaced, because the event log
// is the source of truth and the index can always be rebuilt.
func (b *Backend) IndexEventForSearch(ctx context.Context, ev *types.SessionEvent) {
	content := ExtractSearchContent(ev)
	if content == "" {
		return
	}

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO events_fts (event_id, session_id, workspace_id, type, content)
		VALUES (?, ?, ?, ?, ?)`,
		ev.ID.String(), ev.SessionID.String(), ev.WorkspaceID.String(),
		ev.Type.String(), content)
	if err != nil {
		b.logger.Warn("search indexing failed",
			zap.String("event_id", ev.ID.String()),
			zap.Error(err))
	}
}

// SearchEvents runs a full-text query with BM25 ranking.
func (b *Backend) SearchEvents(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	// bm25() needs the real table name, not an alias. Lower = better.
	sqlQuery := `
		SELECT event_id, session_id, type,
		       snippet(events_fts, 4, '<b>', '</b>', '…', 32),
		       bm25(events_fts)
		FROM events_fts
		WHERE events_fts MATCH ?`
	args := []any{convertToFTS5Query(query)}

	if !opts.SessionID.IsEmpty() {
		sqlQuery += ` AND session_id = ?`
		args = append(args, opts.SessionID.String())
	}
	if !opts.WorkspaceID.IsEmpty() {
		sqlQuery += ` AND workspace_id = ?`
		args = append(args, opts.WorkspaceID.String())
	}
	if len(opts.Types) > 0 {
		placeholders := strings.Repeat("?,", len(opts.Types))
		sqlQuery += ` AND type IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, t := range opts.Types {
			args = append(args, t.String())
		}
	}
	sqlQuery += ` ORDER BY bm25(events_fts) LIMIT ?`
	args = append(args, limit)

	rows, err := b.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer rows.Close()

	var results []*SearchResult
	for rows.Next() {
		var (
			r                   SearchResult
			eventID, sessionID  string
			typ                 string
		)
		if err := rows.Scan(&eventID, &sessionID, &typ, &r.Snippet, &r.Rank); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		r.EventID = types.EventID(eventID)
		r.SessionID = types.SessionID(sessionID)
		r.Type = types.EventType(typ)
		results = append(results, &r)
	}
	return results, rows.Err()
}

// RebuildSessionSearchIndex drops and re-creates a session's search
// entries from its events. Used after sync or index corruption.
func (b *Backend) RebuildSessionSearchIndex(ctx context.Context, sessionID types.SessionID) (int, error) {
	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM events_fts WHERE session_id = ?`, sessionID.String()); err != nil {
		return 0, fmt.Errorf("clear search index for session %s: %w", sessionID, err)
	}

	events, err := b.GetEventsBySession(ctx, sessionID, 0, 0)
	if err != nil {
		return 0, err
	}

	indexed := 0
	for _, ev := range events {
		content := ExtractSearchContent(ev)
		if content == "" {
			continue
		}
		_, err := b.db.ExecContext(ctx, `
			INSERT INTO events_fts (event_id, session_id, workspace_id, type, content)
			VALUES (?, ?, ?, ?, ?)`,
			ev.ID.String(), ev.SessionID.String(), ev.WorkspaceID.String(),
			ev.Type.String(), content)
		if err != nil {
			return indexed, fmt.Errorf("reindex event %s: %w", ev.ID, err)
		}
		indexed++
	}
	return indexed, nil
}

// ExtractSearchContent pulls indexable text from an event payload.
// Only content-bearing types are indexed.
func ExtractSearchContent(ev *types.SessionEvent) string {
	switch ev.Type {
	case types.EventMessageUser, types.EventMessageAssistant:
		var payload struct {
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return ""
		}
		return extractMessageText(payload.Content)
	case types.EventMessageSystem:
		var payload types.SystemMessagePayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return ""
		}
		return payload.Content
	case types.EventCompactSummary:
		var payload types.CompactSummaryPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return ""
		}
		return payload.Summary
	case types.EventToolResult:
		var payload types.ToolResultPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return ""
		}
		return extractMessageText(payload.Content)
	default:
		return ""
	}
}

// extractMessageText flattens message content to plain text: either a
// JSON string, or an array of blocks whose text fields are joined with
// newlines. Wrapped payload objects fall back to their content field.
func extractMessageText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(content, &blocks); err == nil {
		var parts []string
		for _, blk := range blocks {
			if blk.Text != "" {
				parts = append(parts, blk.Text)
			}
		}
		return strings.Join(parts, "\n")
	}

	var wrapped struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(content, &wrapped); err == nil && len(wrapped.Content) > 0 {
		return extractMessageText(wrapped.Content)
	}
	return ""
}

// convertToFTS5Query turns a free-text query into an FTS5 OR query:
// "sql database optimization" matches any document containing any term.
func convertToFTS5Query(query string) string {
	words := strings.Fields(strings.TrimSpace(query))
	if len(words) <= 1 {
		return query
	}
	return strings.Join(words, " OR ")
}
