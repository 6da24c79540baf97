// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import "errors"

// Sentinel errors returned by the backend. Callers match them with
// errors.Is; the wrapped message carries the offending id.
var (
	// ErrSessionNotFound indicates the session id does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEventNotFound indicates the event id does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrWorkspaceNotFound indicates the workspace does not exist.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrDuplicateEvent indicates an insert with an id that already
	// exists. Mirror-sync re-inserts hit this; fresh appends never
	// should.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrInvalidOperation indicates a request that violates an
	// append-only invariant, such as deleting a non-deletable event
	// type or appending to a parent outside the session's history.
	ErrInvalidOperation = errors.New("invalid operation")
)
