// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package session is the write and read façade over the event store.
// Every mutation becomes an immutable event appended to a session's
// chain inside one transaction; state is reconstructed by replaying the
// ancestor chain of a head event.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/chronicle/internal/csync"
	"github.com/teradata-labs/chronicle/pkg/storage"
	"github.com/teradata-labs/chronicle/pkg/types"
)

// Store coordinates appends and reconstruction over a storage backend.
type Store struct {
	backend *storage.Backend
	logger  *zap.Logger

	// Per-session mutexes serialize in-process writers so concurrent
	// appends to one session queue instead of colliding on the
	// UNIQUE(session_id, sequence) constraint. The constraint remains
	// the cross-process backstop.
	locks *csync.Map[types.SessionID, *sync.Mutex]
}

// NewStore creates a Store over the given backend.
func NewStore(backend *storage.Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		locks:   csync.NewMap[types.SessionID, *sync.Mutex](),
	}
}

// lockSession acquires the per-session write lock and returns the
// unlock function.
func (s *Store) lockSession(id types.SessionID) func() {
	lock := s.locks.GetOrSet(id, func() *sync.Mutex { return &sync.Mutex{} })
	lock.Lock()
	return lock.Unlock
}

func (s *Store) dropSessionLock(id types.SessionID) {
	s.locks.Delete(id)
}

// CreateSessionOptions configures CreateSession.
type CreateSessionOptions struct {
	// WorkspacePath is the project directory; the workspace is created
	// on first use.
	WorkspacePath string
	// WorkspaceName defaults to the last path element.
	WorkspaceName string

	Model string
	// Provider defaults from the model name when empty.
	Provider     string
	Title        string
	SystemPrompt string
}

// CreateSessionResult is a new session with its root event.
type CreateSessionResult struct {
	Session   *types.Session
	RootEvent *types.SessionEvent
}

// CreateSession creates a workspace (if needed), a session row and its
// session.start root event in one transaction.
func (s *Store) CreateSession(ctx context.Context, opts CreateSessionOptions) (*CreateSessionResult, error) {
	if opts.WorkspacePath == "" {
		return nil, fmt.Errorf("%w: workspace path required", storage.ErrInvalidOperation)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: model required", storage.ErrInvalidOperation)
	}

	provider := opts.Provider
	if provider == "" {
		provider = types.DetectProvider(opts.Model)
	}
	name := opts.WorkspaceName
	if name == "" {
		name = lastPathElement(opts.WorkspacePath)
	}

	var result CreateSessionResult
	err := s.backend.WithTx(ctx, func(tx *sql.Tx) error {
		ws, err := s.backend.GetOrCreateWorkspace(ctx, tx, opts.WorkspacePath, name)
		if err != nil {
			return err
		}

		now := time.Now()
		session := &types.Session{
			ID:               types.NewSessionID(),
			WorkspaceID:      ws.ID,
			LatestModel:      opts.Model,
			Provider:         provider,
			WorkingDirectory: opts.WorkspacePath,
			Title:            opts.Title,
			CreatedAt:        now,
			UpdatedAt:        now,
			LastActivityAt:   now,
		}
		if err := s.backend.InsertSession(ctx, tx, session); err != nil {
			return err
		}

		payload, err := types.EncodePayload(types.SessionStartPayload{
			WorkingDirectory: opts.WorkspacePath,
			Model:            opts.Model,
			Provider:         provider,
			SystemPrompt:     opts.SystemPrompt,
			Title:            opts.Title,
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
		if err := s.backend.InsertEvent(ctx, tx, root); err != nil {
			return err
		}
		if err := s.backend.UpdateSessionRoot(ctx, tx, session.ID, root.ID); err != nil {
			return err
		}
		if err := s.backend.IncrementSessionCounters(ctx, tx, session.ID, storage.CounterDeltas{Events: 1}); err != nil {
			return err
		}

		session.RootEventID = root.ID
		session.HeadEventID = root.ID
		session.EventCount = 1
		result.Session = session
		result.RootEvent = root
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session created",
		zap.String("session_id", result.Session.ID.String()),
		zap.String("workspace", opts.WorkspacePath),
		zap.String("model", opts.Model))
	return &result, nil
}

// AppendOptions configures Append.
type AppendOptions struct {
	SessionID types.SessionID
	Type      types.EventType

	// Payload is marshaled if not already a json.RawMessage.
	Payload any

	// ParentID overrides the session head as the parent, creating a
	// branch. Nil appends to the head.
	ParentID *types.EventID
}

// Append writes one event to a session's chain: sequence assignment,
// event insert, head advance and counter updates land in a single
// transaction. Search indexing runs after commit, best-effort.
func (s *Store) Append(ctx context.Context, opts AppendOptions) (*types.SessionEvent, error) {
	if !opts.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown event type %q", storage.ErrInvalidOperation, opts.Type)
	}
	if opts.Type == types.EventSessionStart || opts.Type == types.EventSessionFork {
		return nil, fmt.Errorf("%w: %s events are roots, created by CreateSession or Fork", storage.ErrInvalidOperation, opts.Type)
	}

	payload, err := rawPayload(opts.Payload)
	if err != nil {
		return nil, err
	}

	unlock := s.lockSession(opts.SessionID)
	defer unlock()

	var ev *types.SessionEvent
	err = s.backend.WithTx(ctx, func(tx *sql.Tx) error {
		session, err := s.backend.GetSessionTx(ctx, tx, opts.SessionID)
		if err != nil {
			return err
		}

		parentID := opts.ParentID
		if parentID == nil {
			if session.HeadEventID.IsEmpty() {
				return fmt.Errorf("%w: session %s has no head event", storage.ErrInvalidOperation, session.ID)
			}
			head := session.HeadEventID
			parentID = &head
		} else if _, err := s.backend.GetEventTx(ctx, tx, *parentID); err != nil {
			return err
		}

		seq, err := s.backend.NextSequence(ctx, tx, session.ID)
		if err != nil {
			return err
		}

		ev = &types.SessionEvent{
			ID:          types.NewEventID(),
			ParentID:    parentID,
			SessionID:   session.ID,
			WorkspaceID: session.WorkspaceID,
			Timestamp:   time.Now(),
			Type:        opts.Type,
			Sequence:    seq,
			Payload:     payload,
		}
		if err := s.backend.InsertEvent(ctx, tx, ev); err != nil {
			return err
		}
		if err := s.backend.UpdateSessionHead(ctx, tx, session.ID, ev.ID); err != nil {
			return err
		}

		deltas, err := counterDeltas(session, ev)
		if err != nil {
			return err
		}
		if err := s.backend.IncrementSessionCounters(ctx, tx, session.ID, deltas); err != nil {
			return err
		}

		// Event-type side effects on the session row, same transaction.
		switch ev.Type {
		case types.EventSessionEnd:
			if err := s.backend.MarkSessionEnded(ctx, tx, session.ID, ev.Timestamp); err != nil {
				return err
			}
		case types.EventConfigModelSwitch:
			sw, err := types.DecodePayload[types.ModelSwitchPayload](ev)
			if err != nil {
				return err
			}
			if err := s.backend.UpdateLatestModelTx(ctx, tx, session.ID, sw.NewModel); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.backend.IndexEventForSearch(ctx, ev)
	return ev, nil
}

// counterDeltas computes the session counter changes for one event.
func counterDeltas(session *types.Session, ev *types.SessionEvent) (storage.CounterDeltas, error) {
	d := storage.CounterDeltas{Events: 1}

	switch ev.Type {
	case types.EventMessageUser:
		d.Messages = 1
	case types.EventMessageAssistant:
		d.Messages = 1
		msg, err := types.DecodePayload[types.AssistantMessagePayload](ev)
		if err != nil {
			return d, err
		}
		usage := msg.TokenUsage
		d.InputTokens = usage.InputTokens
		d.OutputTokens = usage.OutputTokens
		d.CacheReadTokens = usage.CacheReadTokens
		d.CacheCreationTokens = usage.CacheCreationTokens

		// Context occupancy after this turn. The provider-computed
		// figure wins when present; otherwise everything the model
		// read approximates it.
		lastTurn := usage.InputTokens + usage.CacheReadTokens + usage.CacheCreationTokens
		if msg.ContextWindowTokens != nil {
			lastTurn = *msg.ContextWindowTokens
		}
		d.LastTurnInputTokens = &lastTurn

		if msg.CostUSD != nil {
			d.CostUSD = *msg.CostUSD
		} else {
			model := msg.Model
			if model == "" {
				model = session.LatestModel
			}
			d.CostUSD = types.DeriveCost(model, usage)
		}

	default:
		// Any other payload carrying tokenUsage (subagent results,
		// tool results with usage attached) still counts toward the
		// session totals. Unlike the assistant path this is lenient:
		// a payload without the field is simply not billed.
		var probe struct {
			TokenUsage *types.TokenUsage `json:"tokenUsage"`
			CostUSD    *float64          `json:"costUsd"`
			Model      string            `json:"model"`
		}
		if len(ev.Payload) == 0 || json.Unmarshal(ev.Payload, &probe) != nil || probe.TokenUsage == nil {
			break
		}
		usage := *probe.TokenUsage
		d.InputTokens = usage.InputTokens
		d.OutputTokens = usage.OutputTokens
		d.CacheReadTokens = usage.CacheReadTokens
		d.CacheCreationTokens = usage.CacheCreationTokens
		if probe.CostUSD != nil {
			d.CostUSD = *probe.CostUSD
		} else {
			model := probe.Model
			if model == "" {
				model = session.LatestModel
			}
			d.CostUSD = types.DeriveCost(model, usage)
		}
	}
	return d, nil
}

// ForkOptions configures Fork.
type ForkOptions struct {
	// Model overrides the source session's latest model.
	Model string
	Title string
	// Name labels the fork in its session.fork payload.
	Name string
}

// Fork creates a new session branching from an event in an existing
// one. No events are copied: the new session's session.fork root points
// at the source event, so the fork inherits history through the parent
// chain and diverges from there. Forking a forked session works the
// same way; the chain just crosses two session boundaries.
func (s *Store) Fork(ctx context.Context, fromEventID types.EventID, opts ForkOptions) (*CreateSessionResult, error) {
	var result CreateSessionResult
	err := s.backend.WithTx(ctx, func(tx *sql.Tx) error {
		source, err := s.backend.GetEventTx(ctx, tx, fromEventID)
		if err != nil {
			return err
		}
		sourceSession, err := s.backend.GetSessionTx(ctx, tx, source.SessionID)
		if err != nil {
			return err
		}

		model := opts.Model
		if model == "" {
			model = sourceSession.LatestModel
		}

		now := time.Now()
		parentID := sourceSession.ID
		forkFrom := source.ID
		session := &types.Session{
			ID:               types.NewSessionID(),
			WorkspaceID:      sourceSession.WorkspaceID,
			LatestModel:      model,
			Provider:         sourceSession.Provider,
			WorkingDirectory: sourceSession.WorkingDirectory,
			Title:            opts.Title,
			ParentSessionID:  &parentID,
			ForkFromEventID:  &forkFrom,
			CreatedAt:        now,
			UpdatedAt:        now,
			LastActivityAt:   now,
		}
		if err := s.backend.InsertSession(ctx, tx, session); err != nil {
			return err
		}

		payload, err := types.EncodePayload(types.SessionForkPayload{
			SourceSessionID: sourceSession.ID,
			SourceEventID:   source.ID,
			Name:            opts.Name,
		})
		if err != nil {
			return err
		}

		// The root's parent crosses into the source session. Sequence
		// restarts at 0: sequences are session-scoped positions, not
		// tree depths.
		sourceEventID := source.ID
		root := &types.SessionEvent{
			ID:          types.NewEventID(),
			ParentID:    &sourceEventID,
			SessionID:   session.ID,
			WorkspaceID: session.WorkspaceID,
			Timestamp:   now,
			Type:        types.EventSessionFork,
			Sequence:    0,
			Payload:     payload,
		}
		if err := s.backend.InsertEvent(ctx, tx, root); err != nil {
			return err
		}
		if err := s.backend.UpdateSessionRoot(ctx, tx, session.ID, root.ID); err != nil {
			return err
		}
		if err := s.backend.IncrementSessionCounters(ctx, tx, session.ID, storage.CounterDeltas{Events: 1}); err != nil {
			return err
		}

		session.RootEventID = root.ID
		session.HeadEventID = root.ID
		session.EventCount = 1
		result.Session = session
		result.RootEvent = root
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session forked",
		zap.String("session_id", result.Session.ID.String()),
		zap.String("source_event", fromEventID.String()))
	return &result, nil
}

// DeleteMessage appends a message.deleted tombstone targeting an
// earlier event. The target row is never touched; reconstruction skips
// tombstoned events. Deleting an already-deleted message appends a
// second tombstone, which reconstruction treats the same as one.
func (s *Store) DeleteMessage(ctx context.Context, sessionID types.SessionID, targetEventID types.EventID, reason string) (*types.SessionEvent, error) {
	target, err := s.backend.GetEvent(ctx, targetEventID)
	if err != nil {
		return nil, err
	}
	if !target.Type.IsDeletable() {
		return nil, fmt.Errorf("%w: cannot delete %s event %s", storage.ErrInvalidOperation, target.Type, targetEventID)
	}

	session, err := s.backend.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// The target must be visible from this session's head, which
	// covers both own events and history inherited through forks.
	chain, err := s.backend.GetAncestors(ctx, session.HeadEventID)
	if err != nil {
		return nil, err
	}
	visible := false
	for _, ev := range chain {
		if ev.ID == targetEventID {
			visible = true
			break
		}
	}
	if !visible {
		return nil, fmt.Errorf("%w: event %s is not in the history of session %s", storage.ErrInvalidOperation, targetEventID, sessionID)
	}

	return s.Append(ctx, AppendOptions{
		SessionID: sessionID,
		Type:      types.EventMessageDeleted,
		Payload: types.MessageDeletedPayload{
			TargetEventID: targetEventID,
			TargetType:    target.Type,
			Reason:        reason,
		},
	})
}

// Compact records a compaction: a compact.boundary marking what was
// summarized, then the compact.summary carrying the replacement text.
// Reconstruction replaces everything before the summary with a
// synthetic exchange built from it.
func (s *Store) Compact(ctx context.Context, sessionID types.SessionID, summary string, originalTokens, compactedTokens int64) (*types.SessionEvent, error) {
	boundary, err := s.Append(ctx, AppendOptions{
		SessionID: sessionID,
		Type:      types.EventCompactBoundary,
		Payload: types.CompactBoundaryPayload{
			OriginalTokens:  originalTokens,
			CompactedTokens: compactedTokens,
		},
	})
	if err != nil {
		return nil, err
	}
	return s.Append(ctx, AppendOptions{
		SessionID: sessionID,
		Type:      types.EventCompactSummary,
		Payload: types.CompactSummaryPayload{
			Summary:         summary,
			BoundaryEventID: boundary.ID,
		},
	})
}

// ClearContext records a context.cleared event; reconstruction drops
// everything before it with no replacement.
func (s *Store) ClearContext(ctx context.Context, sessionID types.SessionID, tokensBefore int64, reason string) (*types.SessionEvent, error) {
	return s.Append(ctx, AppendOptions{
		SessionID: sessionID,
		Type:      types.EventContextCleared,
		Payload: types.ContextClearedPayload{
			TokensBefore: tokensBefore,
			Reason:       reason,
		},
	})
}

// EndSession appends a session.end event, which also stamps the
// session row's ended_at in the same transaction.
func (s *Store) EndSession(ctx context.Context, sessionID types.SessionID, reason string) (*types.SessionEvent, error) {
	return s.Append(ctx, AppendOptions{
		SessionID: sessionID,
		Type:      types.EventSessionEnd,
		Payload:   types.SessionEndPayload{Reason: reason},
	})
}

// ClearSessionEnded revives an ended session so it can accept appends
// and reappear in listings.
func (s *Store) ClearSessionEnded(ctx context.Context, sessionID types.SessionID) error {
	return s.backend.ClearSessionEnded(ctx, sessionID)
}

// UpdateLatestModel refreshes only the cached model column. It does not
// append an event; record a config.model_switch when the change itself
// must be part of history.
func (s *Store) UpdateLatestModel(ctx context.Context, sessionID types.SessionID, model string) error {
	return s.backend.UpdateLatestModel(ctx, sessionID, model)
}

// UpdateSessionTitle sets the display title.
func (s *Store) UpdateSessionTitle(ctx context.Context, sessionID types.SessionID, title string) error {
	return s.backend.UpdateSessionTitle(ctx, sessionID, title)
}

// DeleteSession permanently removes a session and its events. This is
// administrative cleanup; EndSession is the normal path.
func (s *Store) DeleteSession(ctx context.Context, sessionID types.SessionID) error {
	unlock := s.lockSession(sessionID)
	defer unlock()
	defer s.dropSessionLock(sessionID)
	return s.backend.DeleteSession(ctx, sessionID)
}

// GetSession fetches a session row.
func (s *Store) GetSession(ctx context.Context, id types.SessionID) (*types.Session, error) {
	return s.backend.GetSession(ctx, id)
}

// GetSessionsByIDs batch-fetches session rows.
func (s *Store) GetSessionsByIDs(ctx context.Context, ids []types.SessionID) (map[types.SessionID]*types.Session, error) {
	return s.backend.GetSessionsByIDs(ctx, ids)
}

// GetEvent fetches a single event.
func (s *Store) GetEvent(ctx context.Context, id types.EventID) (*types.SessionEvent, error) {
	return s.backend.GetEvent(ctx, id)
}

// GetEventsBySession returns a session's own events in sequence order.
func (s *Store) GetEventsBySession(ctx context.Context, id types.SessionID, limit, offset int) ([]*types.SessionEvent, error) {
	return s.backend.GetEventsBySession(ctx, id, limit, offset)
}

// GetEventsSince returns events after a sequence number, for sync.
func (s *Store) GetEventsSince(ctx context.Context, id types.SessionID, afterSeq int64) ([]*types.SessionEvent, error) {
	return s.backend.GetEventsSince(ctx, id, afterSeq)
}

// ListSessions lists sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context, opts storage.ListSessionsOptions) ([]*types.Session, error) {
	return s.backend.ListSessions(ctx, opts)
}

// ListWorkspaces lists workspaces, most recently active first.
func (s *Store) ListWorkspaces(ctx context.Context) ([]*types.Workspace, error) {
	return s.backend.ListWorkspaces(ctx)
}

// GetSessionPreviews returns listing rows with message snippets.
func (s *Store) GetSessionPreviews(ctx context.Context, opts storage.ListSessionsOptions) ([]*types.SessionPreview, error) {
	return s.backend.GetSessionPreviews(ctx, opts)
}

// Search runs a full-text query across all sessions.
func (s *Store) Search(ctx context.Context, query string, opts storage.SearchOptions) ([]*storage.SearchResult, error) {
	return s.backend.SearchEvents(ctx, query, opts)
}

// SearchInSession scopes a full-text query to one session.
func (s *Store) SearchInSession(ctx context.Context, sessionID types.SessionID, query string, limit int) ([]*storage.SearchResult, error) {
	return s.backend.SearchEvents(ctx, query, storage.SearchOptions{SessionID: sessionID, Limit: limit})
}

// WasInterrupted reports whether a session's last assistant output was
// cut off: an assistant message with no stream.turn_end after it.
func (s *Store) WasInterrupted(ctx context.Context, sessionID types.SessionID) (bool, error) {
	events, err := s.backend.GetEventsBySession(ctx, sessionID, 0, 0)
	if err != nil {
		return false, err
	}
	lastAssistant, lastTurnEnd := int64(-1), int64(-1)
	for _, ev := range events {
		switch ev.Type {
		case types.EventMessageAssistant:
			lastAssistant = ev.Sequence
		case types.EventStreamTurnEnd:
			lastTurnEnd = ev.Sequence
		}
	}
	return lastAssistant >= 0 && lastAssistant > lastTurnEnd, nil
}

func rawPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return types.EncodePayload(payload)
	}
}

func lastPathElement(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if idx := strings.LastIndexByte(trimmed, '/'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if trimmed == "" {
		return path
	}
	return trimmed
}
