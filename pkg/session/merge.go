// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package session

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/teradata-labs/chronicle/pkg/storage"
	"github.com/teradata-labs/chronicle/pkg/types"
)

// MergeEventLogs unions two event slices for the same session, as seen
// by two stores syncing with each other. Event ids are globally unique,
// so identity is exact: duplicates keep the local copy. The result is
// ordered by sequence, ties broken by timestamp.
func MergeEventLogs(local, remote []*types.SessionEvent) []*types.SessionEvent {
	seen := make(map[types.EventID]struct{}, len(local))
	merged := make([]*types.SessionEvent, 0, len(local)+len(remote))
	for _, ev := range local {
		seen[ev.ID] = struct{}{}
		merged = append(merged, ev)
	}
	for _, ev := range remote {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		merged = append(merged, ev)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Sequence != merged[j].Sequence {
			return merged[i].Sequence < merged[j].Sequence
		}
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// ImportEvents inserts events synced from a peer store, skipping ones
// already present, then advances the session head to the event with
// the highest sequence. Counters are not recomputed here; callers
// rebuild the search index and counters from the log after a bulk
// import if they need exact figures.
func (s *Store) ImportEvents(ctx context.Context, sessionID types.SessionID, events []*types.SessionEvent) (int, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	imported := 0
	var newest *types.SessionEvent
	for _, ev := range events {
		if ev.SessionID != sessionID {
			return imported, errors.New("imported event belongs to a different session")
		}
		err := s.backend.WithTx(ctx, func(tx *sql.Tx) error {
			return s.backend.InsertEvent(ctx, tx, ev)
		})
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateEvent) {
				continue
			}
			return imported, err
		}
		s.backend.IndexEventForSearch(ctx, ev)
		imported++
		if newest == nil || ev.Sequence > newest.Sequence {
			newest = ev
		}
	}

	if newest != nil {
		session, err := s.backend.GetSession(ctx, sessionID)
		if err != nil {
			return imported, err
		}
		head, err := s.backend.GetEvent(ctx, session.HeadEventID)
		if err != nil {
			return imported, err
		}
		if newest.Sequence > head.Sequence {
			err = s.backend.WithTx(ctx, func(tx *sql.Tx) error {
				return s.backend.UpdateSessionHead(ctx, tx, sessionID, newest.ID)
			})
			if err != nil {
				return imported, err
			}
		}
	}
	return imported, nil
}
