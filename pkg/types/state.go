// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"encoding/json"
	"time"
)

// Message is one reconstructed conversation message in provider wire
// shape: role plus content, where content is either a plain string or
// an array of content blocks.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`

	// ToolCallID is set when the message embeds a tool result.
	ToolCallID *ToolCallID `json:"toolCallId,omitempty"`

	// IsError marks an embedded tool result as failed.
	IsError bool `json:"isError,omitempty"`
}

// MessageWithEventID pairs a reconstructed message with the event that
// produced it. EventID is nil for synthetic messages injected by
// compaction, which have no backing event.
type MessageWithEventID struct {
	Message Message  `json:"message"`
	EventID *EventID `json:"eventId"`
}

// SessionState is the full state of a session at a point in its
// history, produced by replaying the ancestor chain of a head event.
type SessionState struct {
	SessionID   SessionID   `json:"sessionId"`
	WorkspaceID WorkspaceID `json:"workspaceId"`
	HeadEventID EventID     `json:"headEventId"`

	// Model is the effective model at the head: the last session.start
	// or config.model_switch seen in the chain, falling back to the
	// session's cached latestModel.
	Model            string `json:"model"`
	WorkingDirectory string `json:"workingDirectory"`

	Messages []MessageWithEventID `json:"messages"`

	// TokenUsage and CostUSD come from the session row's counters, so
	// they include deleted messages: spend is history, not state.
	TokenUsage TokenUsage `json:"tokenUsage"`
	CostUSD    float64    `json:"costUsd"`

	// TurnCount is the highest assistant turn number seen in the chain.
	TurnCount int64 `json:"turnCount"`

	SystemPrompt   string               `json:"systemPrompt,omitempty"`
	ReasoningLevel string               `json:"reasoningLevel,omitempty"`
	Ledger         *LedgerUpdatePayload `json:"ledger,omitempty"`

	IsEnded   bool      `json:"isEnded"`
	Timestamp time.Time `json:"timestamp"`
}
