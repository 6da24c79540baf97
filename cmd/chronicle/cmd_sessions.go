// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/chronicle/pkg/storage"
	"github.com/teradata-labs/chronicle/pkg/types"
)

var (
	sessionsLimit int
	sessionsAll   bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions with conversation previews",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		previews, err := store.GetSessionPreviews(cmd.Context(), storage.ListSessionsOptions{
			Limit:        sessionsLimit,
			IncludeEnded: sessionsAll,
		})
		if err != nil {
			return err
		}
		if len(previews) == 0 {
			fmt.Println("no sessions")
			return nil
		}

		for _, p := range previews {
			s := p.Session
			title := s.Title
			if title == "" {
				title = truncate(p.LastUserMessage, 60)
			}
			if title == "" {
				title = "(empty)"
			}
			status := ""
			if s.IsEnded() {
				status = " [ended]"
			}
			fmt.Printf("%s%s\n", s.ID, status)
			fmt.Printf("  %s · %s · %d msgs · %s tokens · %s\n",
				title, s.LatestModel, s.MessageCount,
				types.FormatTokens(s.TokenUsage().Total()),
				types.FormatCost(s.CostUSD))
			if p.LastAssistantText != "" {
				fmt.Printf("  ↳ %s\n", truncate(p.LastAssistantText, 80))
			}
		}
		return nil
	},
}

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "List workspaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		workspaces, err := store.ListWorkspaces(cmd.Context())
		if err != nil {
			return err
		}
		for _, ws := range workspaces {
			fmt.Printf("%s  %s\n", ws.ID, ws.Path)
		}
		return nil
	},
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to list")
	sessionsCmd.Flags().BoolVar(&sessionsAll, "all", false, "include ended sessions")
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(workspacesCmd)
}
