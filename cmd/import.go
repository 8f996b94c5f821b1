package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iksnae/analyst-stream/internal"
	"github.com/spf13/cobra"
)

var (
	importTitle        string
	importConversation string
	importPrompt       string
)

// importCmd records stream files into the event store
var importCmd = &cobra.Command{
	Use:   "import <stream-file>...",
	Short: "Record stream files into the event store",
	Long: `Read UI-message stream events from JSONL or SSE files and store them as a conversation.

Each file becomes its own conversation unless --conversation names an existing
one, in which case the events are appended to it. Use "-" to read stdin.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		for _, path := range args {
			events, err := readStreamFile(path)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				internal.PrintWarning(fmt.Sprintf("%s: no events found", path))
				continue
			}
			if importPrompt != "" {
				events = append([]internal.StreamEvent{{Type: internal.EventUserMessage, Text: importPrompt}}, events...)
			}

			id := importConversation
			if id == "" {
				rec, err := store.CreateConversation(ctx, titleFor(importTitle, path))
				if err != nil {
					return err
				}
				id = rec.ID
			} else {
				rec, err := store.FindConversation(ctx, id)
				if err != nil {
					return err
				}
				id = rec.ID
			}

			if err := store.AppendEvents(ctx, id, events); err != nil {
				return err
			}
			internal.PrintSuccess(fmt.Sprintf("Recorded %d event(s) from %s as %s", len(events), path, id))
		}
		return nil
	},
}

func readStreamFile(path string) ([]internal.StreamEvent, error) {
	if path == "-" {
		return internal.ReadAllEvents(os.Stdin, "stdin")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream file: %w", err)
	}
	defer f.Close()
	return internal.ReadAllEvents(f, path)
}

// titleFor prefers an explicit title, then the stream file's base name
func titleFor(title, path string) string {
	if title != "" {
		return title
	}
	if path == "-" {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVarP(&importTitle, "title", "t", "", "Conversation title (default: file name)")
	importCmd.Flags().StringVarP(&importConversation, "conversation", "c", "", "Append to an existing conversation id or prefix")
	importCmd.Flags().StringVar(&importPrompt, "prompt", "", "Record a user turn before the imported events")
}
