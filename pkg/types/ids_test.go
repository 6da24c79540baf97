// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDsCarryPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewSessionID().String(), "sess_"))
	assert.True(t, strings.HasPrefix(NewEventID().String(), "evt_"))
	assert.True(t, strings.HasPrefix(NewWorkspaceID().String(), "ws_"))
	assert.True(t, strings.HasPrefix(NewToolCallID().String(), "toolu_"))
}

func TestNewIDsAreUnique(t *testing.T) {
	seen := make(map[EventID]bool)
	for i := 0; i < 1000; i++ {
		id := NewEventID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestIDsSortByCreationTime(t *testing.T) {
	// UUIDv7 ids are time-ordered; ids created in sequence should
	// compare in order (same-millisecond ties use random bits but the
	// counter makes monotonicity within a process extremely likely).
	first := NewEventID()
	var last EventID
	for i := 0; i < 100; i++ {
		last = NewEventID()
	}
	assert.Less(t, first.String(), last.String())
}

func TestParseEventID(t *testing.T) {
	id := NewEventID()
	parsed, err := ParseEventID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseEventID("sess_not-an-event")
	assert.Error(t, err)

	_, err = ParseEventID("")
	assert.Error(t, err)
}

func TestParseSessionAndWorkspaceIDs(t *testing.T) {
	sid, err := ParseSessionID(NewSessionID().String())
	require.NoError(t, err)
	assert.True(t, sid.Valid())

	wid, err := ParseWorkspaceID(NewWorkspaceID().String())
	require.NoError(t, err)
	assert.True(t, wid.Valid())

	_, err = ParseSessionID("evt_wrong")
	assert.Error(t, err)
}

func TestIsEmpty(t *testing.T) {
	var zero SessionID
	assert.True(t, zero.IsEmpty())
	assert.False(t, NewSessionID().IsEmpty())
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", ShortID("abc"))
	id := "evt_0123456789abcdef"
	assert.Equal(t, "89abcdef", ShortID(id))
}
