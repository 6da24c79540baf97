// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import "time"

// Workspace groups sessions by project directory. The path is the
// natural key; ids exist so sessions can reference workspaces cheaply.
type Workspace struct {
	ID             WorkspaceID `json:"id"`
	Path           string      `json:"path"`
	Name           string      `json:"name"`
	CreatedAt      time.Time   `json:"createdAt"`
	LastActivityAt time.Time   `json:"lastActivityAt"`
}

// Session is a mutable head pointer into the event tree plus cached
// counters. Everything here except the id is derivable by replaying
// events; the row exists so listing and billing queries never replay.
type Session struct {
	ID          SessionID   `json:"id"`
	WorkspaceID WorkspaceID `json:"workspaceId"`

	// RootEventID is the session's first event (session.start or
	// session.fork). HeadEventID is the latest; appends advance it.
	RootEventID EventID `json:"rootEventId"`
	HeadEventID EventID `json:"headEventId"`

	// LatestModel caches the last model seen in a session.start or
	// config.model_switch event. The event log is authoritative.
	LatestModel      string `json:"latestModel"`
	Provider         string `json:"provider,omitempty"`
	WorkingDirectory string `json:"workingDirectory"`
	Title            string `json:"title,omitempty"`

	// ParentSessionID and ForkFromEventID are set only on forked
	// sessions and mirror the session.fork root's payload.
	ParentSessionID *SessionID `json:"parentSessionId,omitempty"`
	ForkFromEventID *EventID   `json:"forkFromEventId,omitempty"`

	// Cached counters, maintained transactionally with each append.
	// They cover this session's own events only, not inherited fork
	// history, except the token counters which track spend attributed
	// to this session.
	EventCount   int64 `json:"eventCount"`
	MessageCount int64 `json:"messageCount"`

	InputTokens         int64 `json:"inputTokens"`
	OutputTokens        int64 `json:"outputTokens"`
	CacheReadTokens     int64 `json:"cacheReadTokens"`
	CacheCreationTokens int64 `json:"cacheCreationTokens"`

	// LastTurnInputTokens is the context-window occupancy after the
	// most recent assistant turn. Overwritten, never accumulated.
	LastTurnInputTokens int64 `json:"lastTurnInputTokens"`

	// CostUSD is the accumulated dollar cost of every event that
	// carried token usage, assistant turns foremost.
	CostUSD float64 `json:"costUsd"`

	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
}

// IsForked reports whether the session was created by forking.
func (s *Session) IsForked() bool { return s.ParentSessionID != nil }

// IsEnded reports whether the session has a session.end marker.
func (s *Session) IsEnded() bool { return s.EndedAt != nil }

// TokenUsage assembles the cached counters into a TokenUsage value.
func (s *Session) TokenUsage() TokenUsage {
	return TokenUsage{
		InputTokens:         s.InputTokens,
		OutputTokens:        s.OutputTokens,
		CacheReadTokens:     s.CacheReadTokens,
		CacheCreationTokens: s.CacheCreationTokens,
	}
}

// SessionPreview is a listing row: the session plus the latest user
// prompt and latest assistant response, for display without replay.
type SessionPreview struct {
	Session           *Session `json:"session"`
	LastUserMessage   string   `json:"lastUserMessage,omitempty"`
	LastAssistantText string   `json:"lastAssistantText,omitempty"`
}
