// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/chronicle/pkg/types"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chronicle.db")
	b, err := Open(path, Options{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

// seedSession inserts a workspace, session and session.start root event
// directly through the backend, bypassing the façade.
func seedSession(t *testing.T, b *Backend) *types.Session {
	t.Helper()
	ctx := context.Background()

	var session *types.Session
	err := b.WithTx(ctx, func(tx *sql.Tx) error {
		ws, err := b.GetOrCreateWorkspace(ctx, tx, "/tmp/project", "project")
		if err != nil {
			return err
		}

		now := time.Now()
		session = &types.Session{
			ID:               types.NewSessionID(),
			WorkspaceID:      ws.ID,
			LatestModel:      "claude-sonnet-4-5",
			Provider:         "anthropic",
			WorkingDirectory: "/tmp/project",
			CreatedAt:        now,
			UpdatedAt:        now,
			LastActivityAt:   now,
		}
		if err := b.InsertSession(ctx, tx, session); err != nil {
			return err
		}

		payload, err := types.EncodePayload(types.SessionStartPayload{
			WorkingDirectory: "/tmp/project",
			Model:            "claude-sonnet-4-5",
		})
		if err != nil {
			return err
		}
		root := &types.SessionEvent{
			ID:          types.NewEventID(),
			SessionID:   session.ID,
			WorkspaceID: ws.ID,
			Timestamp:   now,
			Type:        types.EventSessionStart,
			Sequence:    0,
			Payload:     payload,
		}
		if err := b.InsertEvent(ctx, tx, root); err != nil {
			return err
		}
		if err := b.UpdateSessionRoot(ctx, tx, session.ID, root.ID); err != nil {
			return err
		}
		session.RootEventID = root.ID
		session.HeadEventID = root.ID
		return b.IncrementSessionCounters(ctx, tx, session.ID, CounterDeltas{Events: 1})
	})
	require.NoError(t, err)
	return session
}

// appendEvent chains an event onto the session head for test setup.
func appendEvent(t *testing.T, b *Backend, s *types.Session, typ types.EventType, payload string) *types.SessionEvent {
	t.Helper()
	ctx := context.Background()

	var ev *types.SessionEvent
	err := b.WithTx(ctx, func(tx *sql.Tx) error {
		seq, err := b.NextSequence(ctx, tx, s.ID)
		if err != nil {
			return err
		}
		parent := s.HeadEventID
		ev = &types.SessionEvent{
			ID:          types.NewEventID(),
			ParentID:    &parent,
			SessionID:   s.ID,
			WorkspaceID: s.WorkspaceID,
			Timestamp:   time.Now(),
			Type:        typ,
			Sequence:    seq,
			Payload:     []byte(payload),
		}
		if err := b.InsertEvent(ctx, tx, ev); err != nil {
			return err
		}
		if err := b.UpdateSessionHead(ctx, tx, s.ID, ev.ID); err != nil {
			return err
		}
		return b.IncrementSessionCounters(ctx, tx, s.ID, CounterDeltas{Events: 1})
	})
	require.NoError(t, err)
	s.HeadEventID = ev.ID
	return ev
}

func TestOpenInitializeIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronicle.db")
	logger := zaptest.NewLogger(t)

	b, err := Open(path, Options{}, logger)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	// Reopening an existing database must not fail on existing tables.
	b, err = Open(path, Options{}, logger)
	require.NoError(t, err)
	require.NoError(t, b.Close())
}

func TestGetOrCreateWorkspaceUpsert(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	var first, second *types.Workspace
	require.NoError(t, b.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		first, err = b.GetOrCreateWorkspace(ctx, tx, "/home/dev/app", "app")
		return err
	}))
	require.NoError(t, b.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		second, err = b.GetOrCreateWorkspace(ctx, tx, "/home/dev/app", "app")
		return err
	}))

	assert.Equal(t, first.ID, second.ID, "same path must resolve to same workspace")

	ws, err := b.GetWorkspaceByPath(ctx, "/home/dev/app")
	require.NoError(t, err)
	assert.Equal(t, first.ID, ws.ID)
}

func TestGetWorkspaceNotFound(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.GetWorkspace(context.Background(), types.NewWorkspaceID())
	assert.ErrorIs(t, err, ErrWorkspaceNotFound)

	_, err = b.GetWorkspaceByPath(context.Background(), "/nowhere")
	assert.ErrorIs(t, err, ErrWorkspaceNotFound)
}

func TestSessionRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	s := seedSession(t, b)

	got, err := b.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "claude-sonnet-4-5", got.LatestModel)
	assert.Equal(t, s.RootEventID, got.RootEventID)
	assert.Equal(t, s.RootEventID, got.HeadEventID)
	assert.Equal(t, int64(1), got.EventCount)
	assert.Nil(t, got.EndedAt)
	assert.Nil(t, got.ParentSessionID)
}

func TestGetSessionNotFound(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.GetSession(context.Background(), types.NewSessionID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetSessionsByIDsBatch(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	s1 := seedSession(t, b)

	missing := types.NewSessionID()
	got, err := b.GetSessionsByIDs(ctx, []types.SessionID{s1.ID, missing})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, s1.ID)
	assert.NotContains(t, got, missing)

	empty, err := b.GetSessionsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNextSequenceGapFree(t *testing.T) {
	b := newTestBackend(t)
	s := seedSession(t, b)

	for i := 1; i <= 5; i++ {
		ev := appendEvent(t, b, s, types.EventMessageUser, `{"content":"hi","turn":1}`)
		assert.Equal(t, int64(i), ev.Sequence)
	}

	events, err := b.GetEventsBySession(context.Background(), s.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 6)
	for i, ev := range events {
		assert.Equal(t, int64(i), ev.Sequence)
	}
}

func TestInsertDuplicateEventID(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	s := seedSession(t, b)
	ev := appendEvent(t, b, s, types.EventMessageUser, `{"content":"hi","turn":1}`)

	err := b.WithTx(ctx, func(tx *sql.Tx) error {
		dup := *ev
		dup.Sequence = 99
		return b.InsertEvent(ctx, tx, &dup)
	})
	assert.ErrorIs(t, err, ErrDuplicateEvent)
}

func TestReinsertIdenticalEventIsDuplicate(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	s := seedSession(t, b)
	ev := appendEvent(t, b, s, types.EventMessageUser, `{"content":"hi","turn":1}`)

	// Same id AND same sequence, the shape a peer-store sync replays.
	// Must classify as a duplicate, not as a sequence collision.
	err := b.WithTx(ctx, func(tx *sql.Tx) error {
		dup := *ev
		return b.InsertEvent(ctx, tx, &dup)
	})
	assert.ErrorIs(t, err, ErrDuplicateEvent)
}

func TestSequenceUniqueConstraint(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	s := seedSession(t, b)

	// Two events claiming the same (session, sequence) must collide.
	err := b.WithTx(ctx, func(tx *sql.Tx) error {
		ev := &types.SessionEvent{
			ID:          types.NewEventID(),
			SessionID:   s.ID,
			WorkspaceID: s.WorkspaceID,
			Timestamp:   time.Now(),
			Type:        types.EventMessageUser,
			Sequence:    0, // taken by the root
			Payload:     []byte(`{}`),
		}
		return b.InsertEvent(ctx, tx, ev)
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateEvent, "sequence collision is not an id collision")
}

func TestWithTxRollsBackCompletely(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	s := seedSession(t, b)

	boom := errors.New("boom")
	err := b.WithTx(ctx, func(tx *sql.Tx) error {
		seq, err := b.NextSequence(ctx, tx, s.ID)
		if err != nil {
			return err
		}
		parent := s.HeadEventID
		ev := &types.SessionEvent{
			ID:          types.NewEventID(),
			ParentID:    &parent,
			SessionID:   s.ID,
			WorkspaceID: s.WorkspaceID,
			Timestamp:   time.Now(),
			Type:        types.EventMessageUser,
			Sequence:    seq,
			Payload:     []byte(`{}`),
		}
		if err := b.InsertEvent(ctx, tx, ev); err != nil {
			return err
		}
		if err := b.UpdateSessionHead(ctx, tx, s.ID, ev.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Neither the event nor the head update may have landed.
	got, err := b.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.RootEventID, got.HeadEventID)

	events, err := b.GetEventsBySession(ctx, s.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestGetAncestorsOrdering(t *testing.T) {
	b := newTestBackend(t)
	s := seedSession(t, b)
	e1 := appendEvent(t, b, s, types.EventMessageUser, `{"content":"q","turn":1}`)
	e2 := appendEvent(t, b, s, types.EventMessageAssistant, `{"content":"a","turn":1,"tokenUsage":{}}`)

	chain, err := b.GetAncestors(context.Background(), e2.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, s.RootEventID, chain[0].ID)
	assert.Equal(t, e1.ID, chain[1].ID)
	assert.Equal(t, e2.ID, chain[2].ID)
}

func TestGetAncestorsUnknownEvent(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.GetAncestors(context.Background(), types.NewEventID())
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestGetChildrenBranchPoint(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	s := seedSession(t, b)
	branchPoint := appendEvent(t, b, s, types.EventMessageUser, `{"content":"q","turn":1}`)
	child1 := appendEvent(t, b, s, types.EventMessageAssistant, `{"content":"a1","turn":1,"tokenUsage":{}}`)

	// Second child of branchPoint, inserted directly (a fork would
	// produce this shape in another session).
	var child2 *types.SessionEvent
	require.NoError(t, b.WithTx(ctx, func(tx *sql.Tx) error {
		seq, err := b.NextSequence(ctx, tx, s.ID)
		if err != nil {
			return err
		}
		pid := branchPoint.ID
		child2 = &types.SessionEvent{
			ID:          types.NewEventID(),
			ParentID:    &pid,
			SessionID:   s.ID,
			WorkspaceID: s.WorkspaceID,
			Timestamp:   time.Now(),
			Type:        types.EventMessageAssistant,
			Sequence:    seq,
			Payload:     []byte(`{"content":"a2","turn":1,"tokenUsage":{}}`),
		}
		return b.InsertEvent(ctx, tx, child2)
	}))

	children, err := b.GetChildren(ctx, branchPoint.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	ids := []types.EventID{children[0].ID, children[1].ID}
	assert.Contains(t, ids, child1.ID)
	assert.Contains(t, ids, child2.ID)
}

func TestGetEventsSince(t *testing.T) {
	b := newTestBackend(t)
	s := seedSession(t, b)
	appendEvent(t, b, s, types.EventMessageUser, `{"content":"one","turn":1}`)
	e2 := appendEvent(t, b, s, types.EventMessageAssistant, `{"content":"two","turn":1,"tokenUsage":{}}`)

	events, err := b.GetEventsSince(context.Background(), s.ID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, e2.ID, events[0].ID)

	all, err := b.GetEventsSince(context.Background(), s.ID, -1)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestIncrementCountersAccumulateAndOverwrite(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	s := seedSession(t, b)

	apply := func(d CounterDeltas) {
		require.NoError(t, b.WithTx(ctx, func(tx *sql.Tx) error {
			return b.IncrementSessionCounters(ctx, tx, s.ID, d)
		}))
	}

	lastTurn1 := int64(1000)
	apply(CounterDeltas{Events: 1, Messages: 1, InputTokens: 1000, OutputTokens: 200, LastTurnInputTokens: &lastTurn1, CostUSD: 0.01})
	lastTurn2 := int64(1800)
	apply(CounterDeltas{Events: 1, Messages: 1, InputTokens: 1500, OutputTokens: 300, LastTurnInputTokens: &lastTurn2, CostUSD: 0.02})
	// No assistant turn: lastTurn stays.
	apply(CounterDeltas{Events: 1})

	got, err := b.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.EventCount)
	assert.Equal(t, int64(2), got.MessageCount)
	assert.Equal(t, int64(2500), got.InputTokens, "input tokens accumulate")
	assert.Equal(t, int64(500), got.OutputTokens)
	assert.Equal(t, int64(1800), got.LastTurnInputTokens, "last turn tokens overwrite")
	assert.InDelta(t, 0.03, got.CostUSD, 1e-9)
}

func TestEndAndReviveSession(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	s := seedSession(t, b)

	require.NoError(t, b.WithTx(ctx, func(tx *sql.Tx) error {
		return b.MarkSessionEnded(ctx, tx, s.ID, time.Now())
	}))
	got, err := b.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsEnded())

	// Ended sessions drop out of default listings.
	active, err := b.ListSessions(ctx, ListSessionsOptions{})
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, b.ClearSessionEnded(ctx, s.ID))
	got, err = b.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsEnded())
}

func TestUpdateLatestModelAndTitle(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	s := seedSession(t, b)

	require.NoError(t, b.UpdateLatestModel(ctx, s.ID, "claude-haiku-4-5"))
	require.NoError(t, b.UpdateSessionTitle(ctx, s.ID, "refactor storage layer"))

	got, err := b.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4-5", got.LatestModel)
	assert.Equal(t, "refactor storage layer", got.Title)

	assert.ErrorIs(t, b.UpdateLatestModel(ctx, types.NewSessionID(), "m"), ErrSessionNotFound)
}

func TestDeleteSessionRemovesEverything(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	s := seedSession(t, b)
	ev := appendEvent(t, b, s, types.EventMessageUser, `{"content":"find me","turn":1}`)
	b.IndexEventForSearch(ctx, ev)

	require.NoError(t, b.DeleteSession(ctx, s.ID))

	_, err := b.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	events, err := b.GetEventsBySession(ctx, s.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	results, err := b.SearchEvents(ctx, "find", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestListWorkspaces(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := b.GetOrCreateWorkspace(ctx, tx, "/a", "a")
		if err != nil {
			return err
		}
		_, err = b.GetOrCreateWorkspace(ctx, tx, "/b", "b")
		return err
	}))

	workspaces, err := b.ListWorkspaces(ctx)
	require.NoError(t, err)
	assert.Len(t, workspaces, 2)
}
