// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID prefixes. Every identifier in the store is a prefixed UUIDv7 so
// that a bare string is self-describing in logs and databases, and so
// that a fork of a fork can never confuse a session id with an event id.
const (
	SessionIDPrefix   = "sess_"
	EventIDPrefix     = "evt_"
	WorkspaceIDPrefix = "ws_"
	ToolCallIDPrefix  = "toolu_"
)

// SessionID identifies a session (a head pointer into the event tree).
type SessionID string

// EventID identifies a single immutable event.
type EventID string

// WorkspaceID identifies a workspace (a project directory grouping sessions).
type WorkspaceID string

// ToolCallID correlates a tool.call event with its tool.result.
type ToolCallID string

// newPrefixedID returns prefix + UUIDv7. UUIDv7 is time-ordered, so ids
// sort roughly by creation time, which keeps SQLite b-tree inserts
// append-mostly.
func newPrefixedID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the entropy source does; fall back to v4
		// rather than propagating an error through every constructor.
		id = uuid.New()
	}
	return prefix + id.String()
}

// NewSessionID generates a new session identifier.
func NewSessionID() SessionID { return SessionID(newPrefixedID(SessionIDPrefix)) }

// NewEventID generates a new event identifier.
func NewEventID() EventID { return EventID(newPrefixedID(EventIDPrefix)) }

// NewWorkspaceID generates a new workspace identifier.
func NewWorkspaceID() WorkspaceID { return WorkspaceID(newPrefixedID(WorkspaceIDPrefix)) }

// NewToolCallID generates a new tool call identifier.
func NewToolCallID() ToolCallID { return ToolCallID(newPrefixedID(ToolCallIDPrefix)) }

func (id SessionID) String() string   { return string(id) }
func (id EventID) String() string     { return string(id) }
func (id WorkspaceID) String() string { return string(id) }
func (id ToolCallID) String() string  { return string(id) }

// IsEmpty reports whether the id is the zero value.
func (id SessionID) IsEmpty() bool   { return id == "" }
func (id EventID) IsEmpty() bool     { return id == "" }
func (id WorkspaceID) IsEmpty() bool { return id == "" }
func (id ToolCallID) IsEmpty() bool  { return id == "" }

// Valid reports whether the id carries the expected prefix.
func (id SessionID) Valid() bool   { return strings.HasPrefix(string(id), SessionIDPrefix) }
func (id EventID) Valid() bool     { return strings.HasPrefix(string(id), EventIDPrefix) }
func (id WorkspaceID) Valid() bool { return strings.HasPrefix(string(id), WorkspaceIDPrefix) }
func (id ToolCallID) Valid() bool  { return strings.HasPrefix(string(id), ToolCallIDPrefix) }

// ParseSessionID validates s as a session id.
func ParseSessionID(s string) (SessionID, error) {
	if !strings.HasPrefix(s, SessionIDPrefix) {
		return "", fmt.Errorf("invalid session id %q: missing %q prefix", s, SessionIDPrefix)
	}
	return SessionID(s), nil
}

// ParseEventID validates s as an event id.
func ParseEventID(s string) (EventID, error) {
	if !strings.HasPrefix(s, EventIDPrefix) {
		return "", fmt.Errorf("invalid event id %q: missing %q prefix", s, EventIDPrefix)
	}
	return EventID(s), nil
}

// ParseWorkspaceID validates s as a workspace id.
func ParseWorkspaceID(s string) (WorkspaceID, error) {
	if !strings.HasPrefix(s, WorkspaceIDPrefix) {
		return "", fmt.Errorf("invalid workspace id %q: missing %q prefix", s, WorkspaceIDPrefix)
	}
	return WorkspaceID(s), nil
}

// ShortID returns the last 8 characters of an id for compact display.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
