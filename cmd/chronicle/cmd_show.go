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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/chronicle/pkg/session"
	"github.com/teradata-labs/chronicle/pkg/types"
)

var showAtEvent string

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session's reconstructed transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, err := types.ParseSessionID(args[0])
		if err != nil {
			return err
		}

		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		state, err := reconstructAt(cmd, store, sessionID)
		if err != nil {
			return err
		}

		fmt.Printf("session  %s\n", state.SessionID)
		fmt.Printf("model    %s\n", state.Model)
		fmt.Printf("turns    %d · %s tokens · %s\n\n",
			state.TurnCount,
			types.FormatTokens(state.TokenUsage.Total()),
			types.FormatCost(state.CostUSD))

		for _, m := range state.Messages {
			marker := ""
			if m.EventID == nil {
				marker = " (synthetic)"
			}
			fmt.Printf("── %s%s\n%s\n\n", m.Message.Role, marker, renderContent(m.Message.Content))
		}
		return nil
	},
}

func reconstructAt(cmd *cobra.Command, store *session.Store, sessionID types.SessionID) (*types.SessionState, error) {
	if showAtEvent != "" {
		eventID, err := types.ParseEventID(showAtEvent)
		if err != nil {
			return nil, err
		}
		return store.GetStateAt(cmd.Context(), eventID)
	}
	return store.GetSessionState(cmd.Context(), sessionID)
}

// renderContent flattens message content for terminal display.
func renderContent(content json.RawMessage) string {
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var blocks []map[string]any
	if err := json.Unmarshal(content, &blocks); err == nil {
		out := ""
		for _, blk := range blocks {
			if text, ok := blk["text"].(string); ok {
				if out != "" {
					out += "\n"
				}
				out += text
			}
		}
		if out != "" {
			return out
		}
	}
	return string(content)
}

func init() {
	showCmd.Flags().StringVar(&showAtEvent, "at", "", "reconstruct at a specific event id instead of the head")
	rootCmd.AddCommand(showCmd)
}
