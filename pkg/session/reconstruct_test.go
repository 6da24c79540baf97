// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/chronicle/pkg/types"
)

// chainBuilder assembles an in-memory ancestor chain for pure
// reconstruction tests, no database involved.
type chainBuilder struct {
	sessionID types.SessionID
	events    []*types.SessionEvent
	seq       int64
}

func newChain() *chainBuilder {
	return &chainBuilder{sessionID: types.NewSessionID()}
}

func (c *chainBuilder) add(typ types.EventType, payload any) *types.SessionEvent {
	raw, err := types.EncodePayload(payload)
	if err != nil {
		panic(err)
	}
	ev := &types.SessionEvent{
		ID:        types.NewEventID(),
		SessionID: c.sessionID,
		Type:      typ,
		Sequence:  c.seq,
		Payload:   raw,
	}
	if len(c.events) > 0 {
		pid := c.events[len(c.events)-1].ID
		ev.ParentID = &pid
	}
	c.seq++
	c.events = append(c.events, ev)
	return ev
}

func (c *chainBuilder) start(model string) *types.SessionEvent {
	return c.add(types.EventSessionStart, types.SessionStartPayload{
		WorkingDirectory: "/work", Model: model,
	})
}

func (c *chainBuilder) user(text string, turn int64) *types.SessionEvent {
	raw, _ := json.Marshal(text)
	return c.add(types.EventMessageUser, types.UserMessagePayload{Content: raw, Turn: turn})
}

func (c *chainBuilder) assistant(text string, turn int64) *types.SessionEvent {
	raw, _ := json.Marshal(text)
	return c.add(types.EventMessageAssistant, types.AssistantMessagePayload{Content: raw, Turn: turn})
}

func plainTexts(t *testing.T, msgs []types.MessageWithEventID) []string {
	t.Helper()
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		var s string
		require.NoError(t, json.Unmarshal(m.Message.Content, &s))
		out = append(out, s)
	}
	return out
}

func TestReconstructLinearConversation(t *testing.T) {
	c := newChain()
	c.start("claude-sonnet-4-5")
	u1 := c.user("first question", 1)
	c.assistant("first answer", 1)
	c.user("second question", 2)
	c.assistant("second answer", 2)

	result, err := ReconstructMessages(c.events)
	require.NoError(t, err)

	assert.Equal(t, []string{"first question", "first answer", "second question", "second answer"},
		plainTexts(t, result.Messages))
	assert.Equal(t, int64(2), result.TurnCount)
	assert.Equal(t, "claude-sonnet-4-5", result.Model)
	assert.Equal(t, "/work", result.WorkingDirectory)
	assert.False(t, result.IsEnded)

	// Every message carries its backing event id.
	require.NotNil(t, result.Messages[0].EventID)
	assert.Equal(t, u1.ID, *result.Messages[0].EventID)
}

func TestReconstructEmptyChain(t *testing.T) {
	result, err := ReconstructMessages(nil)
	require.NoError(t, err)
	assert.Empty(t, result.Messages)
	assert.Equal(t, int64(0), result.TurnCount)
}

func TestReconstructSkipsTombstonedEvents(t *testing.T) {
	c := newChain()
	c.start("claude-sonnet-4-5")
	c.user("keep", 1)
	doomed := c.assistant("delete me", 1)
	c.add(types.EventMessageDeleted, types.MessageDeletedPayload{
		TargetEventID: doomed.ID, TargetType: doomed.Type,
	})

	result, err := ReconstructMessages(c.events)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, plainTexts(t, result.Messages))
}

func TestReconstructTombstoneBeforeTargetInChainOrder(t *testing.T) {
	// Tombstones are collected in pass 1, so one that appears later in
	// the chain still hides its target; two tombstones for the same
	// target behave like one.
	c := newChain()
	c.start("claude-sonnet-4-5")
	doomed := c.user("delete me", 1)
	c.user("keep", 2)
	c.add(types.EventMessageDeleted, types.MessageDeletedPayload{TargetEventID: doomed.ID, TargetType: doomed.Type})
	c.add(types.EventMessageDeleted, types.MessageDeletedPayload{TargetEventID: doomed.ID, TargetType: doomed.Type})

	result, err := ReconstructMessages(c.events)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, plainTexts(t, result.Messages))
}

func TestReconstructCompactionReplacesPrefix(t *testing.T) {
	c := newChain()
	c.start("claude-sonnet-4-5")
	c.user("old question", 1)
	c.assistant("old answer", 1)
	boundary := c.add(types.EventCompactBoundary, types.CompactBoundaryPayload{OriginalTokens: 90_000, CompactedTokens: 2_000})
	c.add(types.EventCompactSummary, types.CompactSummaryPayload{
		Summary: "We discussed the storage schema.", BoundaryEventID: boundary.ID,
	})
	c.user("new question", 2)
	c.assistant("new answer", 2)

	result, err := ReconstructMessages(c.events)
	require.NoError(t, err)

	texts := plainTexts(t, result.Messages)
	require.Len(t, texts, 4)
	assert.Equal(t, "[Context from earlier in this conversation]\n\nWe discussed the storage schema.", texts[0])
	assert.Equal(t, "I understand. I'll keep this context in mind as we continue.", texts[1])
	assert.Equal(t, "new question", texts[2])
	assert.Equal(t, "new answer", texts[3])

	// Synthetic pair has no backing events.
	assert.Nil(t, result.Messages[0].EventID)
	assert.Nil(t, result.Messages[1].EventID)
	assert.Equal(t, "user", result.Messages[0].Message.Role)
	assert.Equal(t, "assistant", result.Messages[1].Message.Role)

	// Turn count still reflects the full history.
	assert.Equal(t, int64(2), result.TurnCount)
}

func TestReconstructContextClearedResetsWithNothing(t *testing.T) {
	c := newChain()
	c.start("claude-sonnet-4-5")
	c.user("before", 1)
	c.assistant("gone too", 1)
	c.add(types.EventContextCleared, types.ContextClearedPayload{TokensBefore: 50_000, TokensAfter: 0})
	c.user("after", 2)

	result, err := ReconstructMessages(c.events)
	require.NoError(t, err)
	assert.Equal(t, []string{"after"}, plainTexts(t, result.Messages))
}

func TestReconstructModelSwitch(t *testing.T) {
	c := newChain()
	c.start("claude-sonnet-4-5")
	c.user("q", 1)
	c.add(types.EventConfigModelSwitch, types.ModelSwitchPayload{
		PreviousModel: "claude-sonnet-4-5", NewModel: "claude-opus-4-5",
	})

	result, err := ReconstructMessages(c.events)
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4-5", result.Model)

	model, err := DeriveModelFromEvents(c.events)
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4-5", model)
}

func TestReconstructIgnoresNonConversationEvents(t *testing.T) {
	c := newChain()
	c.start("claude-sonnet-4-5")
	c.add(types.EventStreamTurnStart, nil)
	c.user("q", 1)
	c.add(types.EventToolCall, types.ToolCallPayload{ToolCallID: "toolu_1", Name: "bash", Arguments: json.RawMessage(`{}`), Turn: 1})
	c.add(types.EventToolResult, types.ToolResultPayload{ToolCallID: "toolu_1", Content: json.RawMessage(`"output"`)})
	c.assistant("a", 1)
	c.add(types.EventStreamTurnEnd, nil)
	c.add(types.EventErrorProvider, types.ErrorPayload{Message: "rate limited"})

	result, err := ReconstructMessages(c.events)
	require.NoError(t, err)
	assert.Equal(t, []string{"q", "a"}, plainTexts(t, result.Messages),
		"tool results are embedded in following user messages, never replayed directly")
}

func TestReconstructOverlays(t *testing.T) {
	c := newChain()
	c.add(types.EventSessionStart, types.SessionStartPayload{
		WorkingDirectory: "/work", Model: "claude-sonnet-4-5", SystemPrompt: "be terse",
	})
	c.add(types.EventConfigReasoningLevel, types.ReasoningLevelPayload{NewLevel: "medium"})
	c.add(types.EventConfigReasoningLevel, types.ReasoningLevelPayload{PreviousLevel: "medium", NewLevel: "high"})
	c.add(types.EventLedgerUpdate, types.LedgerUpdatePayload{Title: "migrate schema", EntryType: "task", Status: "in_progress"})
	c.add(types.EventLedgerUpdate, types.LedgerUpdatePayload{Title: "migrate schema", EntryType: "task", Status: "done"})
	c.add(types.EventSessionEnd, types.SessionEndPayload{Reason: "finished"})

	result, err := ReconstructMessages(c.events)
	require.NoError(t, err)
	assert.Equal(t, "be terse", result.SystemPrompt)
	assert.Equal(t, "high", result.ReasoningLevel, "latest reasoning level wins")
	require.NotNil(t, result.Ledger)
	assert.Equal(t, "done", result.Ledger.Status, "latest ledger wins")
	assert.True(t, result.IsEnded)
}

func TestReconstructPromptUpdateMarker(t *testing.T) {
	c := newChain()
	c.add(types.EventSessionStart, types.SessionStartPayload{
		WorkingDirectory: "/work", Model: "claude-sonnet-4-5", SystemPrompt: "Original",
	})
	c.user("hello", 1)
	c.add(types.EventConfigPromptUpdate, types.PromptUpdatePayload{NewHash: "abc123"})

	result, err := ReconstructMessages(c.events)
	require.NoError(t, err)
	assert.Equal(t, "[Updated prompt - hash: abc123]", result.SystemPrompt)

	// A later update supersedes the earlier marker.
	c.add(types.EventConfigPromptUpdate, types.PromptUpdatePayload{NewHash: "def456"})
	result, err = ReconstructMessages(c.events)
	require.NoError(t, err)
	assert.Equal(t, "[Updated prompt - hash: def456]", result.SystemPrompt)
}

func TestReconstructCorruptPayloadFails(t *testing.T) {
	c := newChain()
	c.start("claude-sonnet-4-5")
	ev := c.user("fine", 1)
	ev.Payload = json.RawMessage(`{broken`)

	_, err := ReconstructMessages(c.events)
	assert.Error(t, err)
}

func TestGetStateAtHistoricalPoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := createSession(t, s).Session.ID

	_, err := s.Append(ctx, AppendOptions{SessionID: id, Type: types.EventMessageUser, Payload: userText("one", 1)})
	require.NoError(t, err)
	mid, err := s.Append(ctx, AppendOptions{SessionID: id, Type: types.EventMessageAssistant, Payload: assistantText("two", 1, types.TokenUsage{InputTokens: 100})})
	require.NoError(t, err)
	_, err = s.Append(ctx, AppendOptions{SessionID: id, Type: types.EventMessageUser, Payload: userText("three", 2)})
	require.NoError(t, err)

	// State at the mid-point excludes later messages.
	state, err := s.GetStateAt(ctx, mid.ID)
	require.NoError(t, err)
	assert.Equal(t, mid.ID, state.HeadEventID)
	assert.Equal(t, []string{"one", "two"}, messageTexts(t, state.Messages))
	assert.Equal(t, int64(1), state.TurnCount)
	assert.Equal(t, "claude-sonnet-4-5", state.Model)
	assert.Equal(t, "/home/dev/project", state.WorkingDirectory)

	// Counters always reflect the session row, not the replay point.
	assert.Equal(t, int64(100), state.TokenUsage.InputTokens)

	full, err := s.GetSessionState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, messageTexts(t, full.Messages))
}

func TestLinearRoundTrip(t *testing.T) {
	// Append a known conversation, reconstruct at the head, and expect
	// exactly the appended messages in order.
	s := newTestStore(t)
	ctx := context.Background()
	id := createSession(t, s).Session.ID

	want := []string{"alpha", "bravo", "charlie", "delta"}
	for i, text := range want {
		typ := types.EventMessageUser
		var payload any = userText(text, int64(i/2+1))
		if i%2 == 1 {
			typ = types.EventMessageAssistant
			payload = assistantText(text, int64(i/2+1), types.TokenUsage{})
		}
		_, err := s.Append(ctx, AppendOptions{SessionID: id, Type: typ, Payload: payload})
		require.NoError(t, err)
	}

	state, err := s.GetSessionState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, want, messageTexts(t, state.Messages))
	assert.Equal(t, int64(2), state.TurnCount)
}
