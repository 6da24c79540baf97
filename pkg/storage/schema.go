// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

// schemaDDL creates all tables, indices and the FTS5 search table.
// Every statement is idempotent so Initialize can run on every open.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS workspaces (
	id               TEXT PRIMARY KEY,
	path             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	last_activity_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id                    TEXT PRIMARY KEY,
	workspace_id          TEXT NOT NULL REFERENCES workspaces(id),
	root_event_id         TEXT,
	head_event_id         TEXT,
	latest_model          TEXT NOT NULL,
	provider              TEXT NOT NULL DEFAULT '',
	working_directory     TEXT NOT NULL,
	title                 TEXT NOT NULL DEFAULT '',
	parent_session_id     TEXT,
	fork_from_event_id    TEXT,
	event_count           INTEGER NOT NULL DEFAULT 0,
	message_count         INTEGER NOT NULL DEFAULT 0,
	input_tokens          INTEGER NOT NULL DEFAULT 0,
	output_tokens         INTEGER NOT NULL DEFAULT 0,
	cache_read_tokens     INTEGER NOT NULL DEFAULT 0,
	cache_creation_tokens INTEGER NOT NULL DEFAULT 0,
	last_turn_input_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd              REAL NOT NULL DEFAULT 0,
	created_at            TEXT NOT NULL,
	updated_at            TEXT NOT NULL,
	last_activity_at      TEXT NOT NULL,
	ended_at              TEXT
);

CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES sessions(id),
	parent_id    TEXT,
	sequence     INTEGER NOT NULL,
	type         TEXT NOT NULL,
	timestamp    TEXT NOT NULL,
	payload      TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	UNIQUE(session_id, sequence)
);

CREATE INDEX IF NOT EXISTS idx_events_session_seq ON events(session_id, sequence);
CREATE INDEX IF NOT EXISTS idx_events_parent ON events(parent_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(session_id, type);
CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace_id);
CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity_at DESC);

CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
	event_id UNINDEXED,
	session_id UNINDEXED,
	workspace_id UNINDEXED,
	type UNINDEXED,
	content,
	tokenize = 'porter unicode61'
);
`
