// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/teradata-labs/chronicle/pkg/types"
)

// Synthetic messages injected when a compact.summary replaces the
// replayed prefix. The exact wording is part of the persisted
// conversation contract: reconstructing the same chain twice must
// produce byte-identical transcripts.
const (
	compactedContextPrefix = "[Context from earlier in this conversation]\n\n"
	compactedContextAck    = "I understand. I'll keep this context in mind as we continue."
)

// ReconstructionResult is everything a replay derives from an event
// chain. Token totals are not here: they live on the session row and
// include deleted messages.
type ReconstructionResult struct {
	Messages         []types.MessageWithEventID
	TurnCount        int64
	Model            string
	WorkingDirectory string
	SystemPrompt     string
	ReasoningLevel   string
	Ledger           *types.LedgerUpdatePayload
	IsEnded          bool
}

// ReconstructMessages replays an ancestor chain (root first) into the
// conversation visible at its tip.
//
// The replay is two passes. The first collects overlays that affect
// earlier events: tombstones from message.deleted, plus the latest
// config and ledger values. The second folds the chain in order,
// skipping tombstoned events and applying the destructive resets
// (compact.summary, context.cleared) exactly where they occur.
func ReconstructMessages(events []*types.SessionEvent) (*ReconstructionResult, error) {
	result := &ReconstructionResult{}

	// Pass 1: overlays.
	tombstoned := make(map[types.EventID]struct{})
	for _, ev := range events {
		switch ev.Type {
		case types.EventMessageDeleted:
			del, err := types.DecodePayload[types.MessageDeletedPayload](ev)
			if err != nil {
				return nil, err
			}
			tombstoned[del.TargetEventID] = struct{}{}
		case types.EventConfigReasoningLevel:
			lvl, err := types.DecodePayload[types.ReasoningLevelPayload](ev)
			if err != nil {
				return nil, err
			}
			result.ReasoningLevel = lvl.NewLevel
		case types.EventLedgerUpdate:
			ledger, err := types.DecodePayload[types.LedgerUpdatePayload](ev)
			if err != nil {
				return nil, err
			}
			result.Ledger = ledger
		}
	}

	// Pass 2: fold.
	for _, ev := range events {
		if _, dead := tombstoned[ev.ID]; dead {
			continue
		}

		switch ev.Type {
		case types.EventSessionStart:
			start, err := types.DecodePayload[types.SessionStartPayload](ev)
			if err != nil {
				return nil, err
			}
			result.Model = start.Model
			result.WorkingDirectory = start.WorkingDirectory
			if start.SystemPrompt != "" {
				result.SystemPrompt = start.SystemPrompt
			}

		case types.EventConfigModelSwitch:
			sw, err := types.DecodePayload[types.ModelSwitchPayload](ev)
			if err != nil {
				return nil, err
			}
			result.Model = sw.NewModel

		case types.EventConfigPromptUpdate:
			// The event only stores a hash, so replay can't recover the
			// prompt text; the marker records that it changed and which
			// version is live.
			upd, err := types.DecodePayload[types.PromptUpdatePayload](ev)
			if err != nil {
				return nil, err
			}
			result.SystemPrompt = fmt.Sprintf("[Updated prompt - hash: %s]", upd.NewHash)

		case types.EventMessageUser:
			msg, err := types.DecodePayload[types.UserMessagePayload](ev)
			if err != nil {
				return nil, err
			}
			id := ev.ID
			result.Messages = append(result.Messages, types.MessageWithEventID{
				Message: types.Message{Role: "user", Content: msg.Content},
				EventID: &id,
			})

		case types.EventMessageAssistant:
			msg, err := types.DecodePayload[types.AssistantMessagePayload](ev)
			if err != nil {
				return nil, err
			}
			id := ev.ID
			result.Messages = append(result.Messages, types.MessageWithEventID{
				Message: types.Message{Role: "assistant", Content: msg.Content},
				EventID: &id,
			})
			if msg.Turn > result.TurnCount {
				result.TurnCount = msg.Turn
			}

		case types.EventCompactSummary:
			// The compacted prefix is replaced by a synthetic exchange
			// carrying the summary. Nil event ids mark the pair as
			// having no backing events.
			sum, err := types.DecodePayload[types.CompactSummaryPayload](ev)
			if err != nil {
				return nil, err
			}
			result.Messages = result.Messages[:0]
			result.Messages = append(result.Messages,
				types.MessageWithEventID{
					Message: types.Message{Role: "user", Content: mustJSONString(compactedContextPrefix + sum.Summary)},
				},
				types.MessageWithEventID{
					Message: types.Message{Role: "assistant", Content: mustJSONString(compactedContextAck)},
				},
			)

		case types.EventContextCleared:
			result.Messages = result.Messages[:0]

		case types.EventSessionEnd:
			result.IsEnded = true
		}

		// tool.result is deliberately not folded into messages: the
		// runtime embeds results in the next message.user, so replaying
		// them here would duplicate content. message.system, tool.call,
		// streaming markers, notifications and errors carry no
		// conversation text either.
	}
	return result, nil
}

// DeriveModelFromEvents recomputes the effective model from a chain,
// the source of truth behind the session row's latestModel cache.
func DeriveModelFromEvents(events []*types.SessionEvent) (string, error) {
	model := ""
	for _, ev := range events {
		switch ev.Type {
		case types.EventSessionStart:
			start, err := types.DecodePayload[types.SessionStartPayload](ev)
			if err != nil {
				return "", err
			}
			model = start.Model
		case types.EventConfigModelSwitch:
			sw, err := types.DecodePayload[types.ModelSwitchPayload](ev)
			if err != nil {
				return "", err
			}
			model = sw.NewModel
		}
	}
	return model, nil
}

// GetMessagesAt reconstructs the conversation visible at an event: the
// replay of its ancestor chain, whichever sessions that chain crosses.
func (s *Store) GetMessagesAt(ctx context.Context, eventID types.EventID) ([]types.MessageWithEventID, error) {
	chain, err := s.backend.GetAncestors(ctx, eventID)
	if err != nil {
		return nil, err
	}
	result, err := ReconstructMessages(chain)
	if err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// GetStateAt reconstructs full session state at an event. Token totals
// and cost come from the owning session's counters, so messages deleted
// by tombstones still count: spend is history, not state.
func (s *Store) GetStateAt(ctx context.Context, eventID types.EventID) (*types.SessionState, error) {
	head, err := s.backend.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	session, err := s.backend.GetSession(ctx, head.SessionID)
	if err != nil {
		return nil, err
	}
	chain, err := s.backend.GetAncestors(ctx, eventID)
	if err != nil {
		return nil, err
	}

	replay, err := ReconstructMessages(chain)
	if err != nil {
		return nil, err
	}

	model := replay.Model
	if model == "" {
		model = session.LatestModel
	}
	workingDir := replay.WorkingDirectory
	if workingDir == "" {
		workingDir = session.WorkingDirectory
	}

	return &types.SessionState{
		SessionID:        session.ID,
		WorkspaceID:      session.WorkspaceID,
		HeadEventID:      head.ID,
		Model:            model,
		WorkingDirectory: workingDir,
		Messages:         replay.Messages,
		TokenUsage:       session.TokenUsage(),
		CostUSD:          session.CostUSD,
		TurnCount:        replay.TurnCount,
		SystemPrompt:     replay.SystemPrompt,
		ReasoningLevel:   replay.ReasoningLevel,
		Ledger:           replay.Ledger,
		IsEnded:          replay.IsEnded || session.IsEnded(),
		Timestamp:        head.Timestamp,
	}, nil
}

// GetSessionState reconstructs state at a session's current head.
func (s *Store) GetSessionState(ctx context.Context, sessionID types.SessionID) (*types.SessionState, error) {
	session, err := s.backend.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.HeadEventID.IsEmpty() {
		return nil, fmt.Errorf("session %s has no head event", sessionID)
	}
	return s.GetStateAt(ctx, session.HeadEventID)
}

func mustJSONString(s string) json.RawMessage {
	raw, err := json.Marshal(s)
	if err != nil {
		// Marshaling a string cannot fail.
		panic(err)
	}
	return raw
}
