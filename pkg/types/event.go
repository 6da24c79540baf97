// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"encoding/json"
	"time"
)

// EventType discriminates the payload of a SessionEvent. The set is
// closed: unknown types are rejected at append time so a corrupted or
// future-schema event can never silently enter a session's history.
type EventType string

const (
	// Session lifecycle.
	EventSessionStart EventType = "session.start"
	EventSessionEnd   EventType = "session.end"
	EventSessionFork  EventType = "session.fork"

	// Conversation messages.
	EventMessageUser      EventType = "message.user"
	EventMessageAssistant EventType = "message.assistant"
	EventMessageSystem    EventType = "message.system"
	EventMessageDeleted   EventType = "message.deleted"

	// Tool execution.
	EventToolCall   EventType = "tool.call"
	EventToolResult EventType = "tool.result"

	// Configuration changes.
	EventConfigModelSwitch    EventType = "config.model_switch"
	EventConfigReasoningLevel EventType = "config.reasoning_level"
	EventConfigPromptUpdate   EventType = "config.prompt_update"

	// Context management.
	EventCompactBoundary EventType = "compact.boundary"
	EventCompactSummary  EventType = "compact.summary"
	EventContextCleared  EventType = "context.cleared"

	// Working-state ledger.
	EventLedgerUpdate EventType = "ledger.update"

	// Streaming markers.
	EventStreamTurnStart EventType = "stream.turn_start"
	EventStreamTurnEnd   EventType = "stream.turn_end"

	// Notifications.
	EventNotificationInterrupted    EventType = "notification.interrupted"
	EventNotificationSubagentResult EventType = "notification.subagent_result"

	// Errors surfaced mid-session.
	EventErrorAgent    EventType = "error.agent"
	EventErrorTool     EventType = "error.tool"
	EventErrorProvider EventType = "error.provider"
)

// allEventTypes is the closed set used by IsValid.
var allEventTypes = map[EventType]struct{}{
	EventSessionStart: {}, EventSessionEnd: {}, EventSessionFork: {},
	EventMessageUser: {}, EventMessageAssistant: {}, EventMessageSystem: {}, EventMessageDeleted: {},
	EventToolCall: {}, EventToolResult: {},
	EventConfigModelSwitch: {}, EventConfigReasoningLevel: {}, EventConfigPromptUpdate: {},
	EventCompactBoundary: {}, EventCompactSummary: {}, EventContextCleared: {},
	EventLedgerUpdate: {},
	EventStreamTurnStart: {}, EventStreamTurnEnd: {},
	EventNotificationInterrupted: {}, EventNotificationSubagentResult: {},
	EventErrorAgent: {}, EventErrorTool: {}, EventErrorProvider: {},
}

// IsValid reports whether t is a known event type.
func (t EventType) IsValid() bool {
	_, ok := allEventTypes[t]
	return ok
}

// IsMessage reports whether t carries conversation content
// (user, assistant, or system message).
func (t EventType) IsMessage() bool {
	return t == EventMessageUser || t == EventMessageAssistant || t == EventMessageSystem
}

// IsConfig reports whether t records a configuration change.
func (t EventType) IsConfig() bool {
	return t == EventConfigModelSwitch || t == EventConfigReasoningLevel || t == EventConfigPromptUpdate
}

// IsError reports whether t records an error.
func (t EventType) IsError() bool {
	return t == EventErrorAgent || t == EventErrorTool || t == EventErrorProvider
}

// IsStreaming reports whether t is a streaming turn marker.
func (t EventType) IsStreaming() bool {
	return t == EventStreamTurnStart || t == EventStreamTurnEnd
}

// IsDeletable reports whether an event of this type may be targeted by a
// message.deleted tombstone.
func (t EventType) IsDeletable() bool {
	return t == EventMessageUser || t == EventMessageAssistant || t == EventToolResult
}

func (t EventType) String() string { return string(t) }

// SessionEvent is one immutable node in a session's event tree. Events
// are append-only: nothing ever updates or removes a row once written.
// ParentID threads events into a tree whose branches may cross session
// boundaries (a fork's root points at an event in the source session).
type SessionEvent struct {
	// ID is the globally unique event identifier.
	ID EventID `json:"id"`

	// ParentID points at the previous event in the chain. Nil only for
	// the root event of a session that was not forked.
	ParentID *EventID `json:"parentId"`

	// SessionID is the session this event was appended to.
	SessionID SessionID `json:"sessionId"`

	// WorkspaceID denormalizes the owning workspace for filtering.
	WorkspaceID WorkspaceID `json:"workspaceId"`

	// Timestamp is the append time in UTC.
	Timestamp time.Time `json:"timestamp"`

	// Type discriminates Payload.
	Type EventType `json:"type"`

	// Sequence is the session-scoped position: 0 for the root, then
	// gap-free increments. A fork restarts at 0 in the new session.
	Sequence int64 `json:"sequence"`

	// Payload is the type-specific body, kept opaque at this layer and
	// decoded on demand via the Decode* helpers in payloads.go.
	Payload json.RawMessage `json:"payload"`
}

// IsRoot reports whether the event has no parent.
func (e *SessionEvent) IsRoot() bool { return e.ParentID == nil }
