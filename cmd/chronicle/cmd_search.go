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
	searchSession string
	searchLimit   int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search across session events",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		opts := storage.SearchOptions{Limit: searchLimit}
		if searchSession != "" {
			sessionID, err := types.ParseSessionID(searchSession)
			if err != nil {
				return err
			}
			opts.SessionID = sessionID
		}

		results, err := store.Search(cmd.Context(), strings.Join(args, " "), opts)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}

		for _, r := range results {
			fmt.Printf("%s  %s  %s\n", r.SessionID, r.Type, r.EventID)
			fmt.Printf("  %s\n", r.Snippet)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchSession, "session", "", "restrict search to one session")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum results")
	rootCmd.AddCommand(searchCmd)
}
