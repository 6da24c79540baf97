// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/teradata-labs/chronicle/pkg/types"
)

// GetAncestors returns the chain from the root to the given event,
// crossing fork boundaries.
func (s *Store) GetAncestors(ctx context.Context, eventID types.EventID) ([]*types.SessionEvent, error) {
	return s.backend.GetAncestors(ctx, eventID)
}

// GetChildren returns an event's direct children; more than one marks
// a branch point.
func (s *Store) GetChildren(ctx context.Context, eventID types.EventID) ([]*types.SessionEvent, error) {
	return s.backend.GetChildren(ctx, eventID)
}

// GetDescendants returns the full subtree below an event.
func (s *Store) GetDescendants(ctx context.Context, eventID types.EventID) ([]*types.SessionEvent, error) {
	return s.backend.GetDescendants(ctx, eventID)
}

// RenderTree draws a session's event tree as indented ASCII, one line
// per event, fanning out at branch points. Forked descendants in other
// sessions appear too, labeled with their session id.
func (s *Store) RenderTree(ctx context.Context, sessionID types.SessionID) (string, error) {
	session, err := s.backend.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.RootEventID.IsEmpty() {
		return "", fmt.Errorf("session %s has no root event", sessionID)
	}

	root, err := s.backend.GetEvent(ctx, session.RootEventID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := s.renderSubtree(ctx, &sb, root, "", true, sessionID); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (s *Store) renderSubtree(ctx context.Context, sb *strings.Builder, ev *types.SessionEvent, prefix string, isLast bool, homeSession types.SessionID) error {
	connector := "├── "
	childPrefix := prefix + "│   "
	if isLast {
		connector = "└── "
		childPrefix = prefix + "    "
	}
	if prefix == "" && ev.IsRoot() {
		connector = ""
		childPrefix = ""
	}

	label := fmt.Sprintf("[%d] %s %s", ev.Sequence, ev.Type, types.ShortID(ev.ID.String()))
	if ev.SessionID != homeSession {
		label += fmt.Sprintf(" (session %s)", types.ShortID(ev.SessionID.String()))
	}
	sb.WriteString(prefix + connector + label + "\n")

	children, err := s.backend.GetChildren(ctx, ev.ID)
	if err != nil {
		return err
	}
	for i, child := range children {
		if err := s.renderSubtree(ctx, sb, child, childPrefix, i == len(children)-1, homeSession); err != nil {
			return err
		}
	}
	return nil
}
