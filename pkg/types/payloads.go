// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"encoding/json"
	"fmt"
)

// TokenUsage records token consumption for a single assistant turn.
// All fields are cumulative within the turn, not across the session.
type TokenUsage struct {
	InputTokens         int64 `json:"inputTokens"`
	OutputTokens        int64 `json:"outputTokens"`
	CacheReadTokens     int64 `json:"cacheReadTokens"`
	CacheCreationTokens int64 `json:"cacheCreationTokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheCreationTokens += other.CacheCreationTokens
}

// Total returns the sum of all token counts.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheCreationTokens
}

// ContextTokens returns the number of tokens occupying the context
// window after the turn: everything the model read plus what it wrote.
func (u TokenUsage) ContextTokens() int64 {
	return u.InputTokens + u.CacheReadTokens + u.CacheCreationTokens + u.OutputTokens
}

// SessionStartPayload is the body of the session.start root event.
type SessionStartPayload struct {
	WorkingDirectory string `json:"workingDirectory"`
	Model            string `json:"model"`
	Provider         string `json:"provider,omitempty"`
	SystemPrompt     string `json:"systemPrompt,omitempty"`
	Title            string `json:"title,omitempty"`
}

// SessionEndPayload is the body of a session.end event.
type SessionEndPayload struct {
	Reason     string `json:"reason"`
	DurationMS int64  `json:"durationMs,omitempty"`
}

// SessionForkPayload is the body of the session.fork root event in a
// forked session. The fork event's parentId points at SourceEventID, so
// the payload is informational; the tree structure alone is enough to
// reconstruct the fork.
type SessionForkPayload struct {
	SourceSessionID SessionID `json:"sourceSessionId"`
	SourceEventID   EventID   `json:"sourceEventId"`
	Name            string    `json:"name,omitempty"`
}

// UserMessagePayload is the body of a message.user event. Content is
// kept raw: it is either a plain string or an array of content blocks
// (text, image, tool_result) in provider wire format.
type UserMessagePayload struct {
	Content json.RawMessage `json:"content"`
	Turn    int64           `json:"turn"`
}

// AssistantMessagePayload is the body of a message.assistant event.
type AssistantMessagePayload struct {
	Content    json.RawMessage `json:"content"`
	Turn       int64           `json:"turn"`
	TokenUsage TokenUsage      `json:"tokenUsage"`
	StopReason string          `json:"stopReason,omitempty"`
	Model      string          `json:"model,omitempty"`

	// ContextWindowTokens, when set, is the authoritative count of
	// tokens in the context window after this turn. It overrides the
	// InputTokens-derived estimate when updating the session's
	// lastTurnInputTokens counter.
	ContextWindowTokens *int64 `json:"contextWindowTokens,omitempty"`

	// CostUSD, when set, is the pre-computed cost of this turn. When
	// absent the store derives it from TokenUsage and the model's
	// pricing table.
	CostUSD *float64 `json:"costUsd,omitempty"`
}

// SystemMessagePayload is the body of a message.system event.
type SystemMessagePayload struct {
	Content string `json:"content"`
}

// MessageDeletedPayload is the body of a message.deleted tombstone.
// The target event is never mutated; reconstruction skips it.
type MessageDeletedPayload struct {
	TargetEventID EventID   `json:"targetEventId"`
	TargetType    EventType `json:"targetType"`
	Turn          *int64    `json:"turn,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// ToolCallPayload is the body of a tool.call event.
type ToolCallPayload struct {
	ToolCallID ToolCallID      `json:"toolCallId"`
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
	Turn       int64           `json:"turn"`
}

// ToolResultPayload is the body of a tool.result event.
type ToolResultPayload struct {
	ToolCallID ToolCallID      `json:"toolCallId"`
	Content    json.RawMessage `json:"content"`
	IsError    bool            `json:"isError"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// ModelSwitchPayload is the body of a config.model_switch event.
type ModelSwitchPayload struct {
	PreviousModel string `json:"previousModel"`
	NewModel      string `json:"newModel"`
}

// ReasoningLevelPayload is the body of a config.reasoning_level event.
type ReasoningLevelPayload struct {
	PreviousLevel string `json:"previousLevel,omitempty"`
	NewLevel      string `json:"newLevel"`
}

// PromptUpdatePayload is the body of a config.prompt_update event. Only
// a hash of the new prompt is stored; prompts themselves may be large
// and are owned by the runtime, not the event log.
type PromptUpdatePayload struct {
	NewHash string `json:"newHash"`
}

// CompactBoundaryPayload marks the point up to which history was
// compacted. The matching compact.summary follows it.
type CompactBoundaryPayload struct {
	OriginalTokens  int64  `json:"originalTokens"`
	CompactedTokens int64  `json:"compactedTokens"`
	Reason          string `json:"reason,omitempty"`
}

// CompactSummaryPayload carries the summary text that replaces the
// compacted prefix during reconstruction.
type CompactSummaryPayload struct {
	Summary         string  `json:"summary"`
	BoundaryEventID EventID `json:"boundaryEventId"`
}

// ContextClearedPayload is the body of a context.cleared event. Unlike
// compaction, clearing discards the replayed prefix with no replacement.
type ContextClearedPayload struct {
	TokensBefore int64  `json:"tokensBefore"`
	TokensAfter  int64  `json:"tokensAfter"`
	Reason       string `json:"reason,omitempty"`
}

// LedgerUpdatePayload snapshots the agent's working-state ledger. Only
// the latest ledger.update in a chain is live; earlier ones are history.
type LedgerUpdatePayload struct {
	Title     string   `json:"title"`
	EntryType string   `json:"entryType"`
	Status    string   `json:"status"`
	Input     string   `json:"input,omitempty"`
	Actions   []string `json:"actions,omitempty"`
	Lessons   []string `json:"lessons,omitempty"`
}

// InterruptedPayload is the body of a notification.interrupted event.
type InterruptedPayload struct {
	Turn   *int64 `json:"turn,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// SubagentResultPayload is the body of a notification.subagent_result event.
type SubagentResultPayload struct {
	SubagentSessionID SessionID       `json:"subagentSessionId"`
	Result            json.RawMessage `json:"result"`
	IsError           bool            `json:"isError,omitempty"`
}

// ErrorPayload is the shared body of error.agent, error.tool and
// error.provider events.
type ErrorPayload struct {
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// DecodePayload unmarshals an event payload into the typed struct for
// its event type.
func DecodePayload[T any](e *SessionEvent) (*T, error) {
	var payload T
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload for event %s: %w", e.Type, e.ID, err)
	}
	return &payload, nil
}

// EncodePayload marshals a typed payload for storage in a SessionEvent.
func EncodePayload(payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return raw, nil
}
