package cmd

import (
	"fmt"

	"github.com/iksnae/analyst-stream/internal"
	"github.com/spf13/cobra"
)

var (
	limit         int
	showCode      bool
	showComposite bool
	showEvents    bool
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show a recorded conversation",
	Long: `Replay a conversation from the event store and display it with tool cards,
reasoning blocks and the extracted strategy. Any unique id prefix is accepted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if showEvents {
			return writeEvents(cmd, store, args[0])
		}

		t, err := newLoader(store).Load(cmd.Context(), args[0])
		if err != nil {
			if internal.IsNotFound(err) {
				return fmt.Errorf("conversation %s not found", args[0])
			}
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case showComposite:
			code := t.Composite()
			if code == "" {
				return fmt.Errorf("conversation %s has no strategies", t.ID)
			}
			fmt.Fprintln(out, code)
			return nil
		case showCode:
			if t.Artifact == nil {
				return fmt.Errorf("conversation %s has no strategy", t.ID)
			}
			fmt.Fprintln(out, t.Artifact.Code)
			return nil
		}

		renderer, err := newViewRenderer()
		if err != nil {
			return err
		}
		renderer.RenderTranscript(out, limitMessages(t, limit))
		return nil
	},
}

// writeEvents prints the stored stream so it can be imported again
func writeEvents(cmd *cobra.Command, store *internal.EventStore, idOrPrefix string) error {
	rec, err := store.FindConversation(cmd.Context(), idOrPrefix)
	if err != nil {
		if internal.IsNotFound(err) {
			return fmt.Errorf("conversation %s not found", idOrPrefix)
		}
		return err
	}
	events, err := store.LoadEvents(cmd.Context(), rec.ID)
	if err != nil {
		return err
	}
	return internal.EncodeEvents(cmd.OutOrStdout(), events)
}

// limitMessages keeps the last n messages; n <= 0 keeps everything
func limitMessages(t *internal.Transcript, n int) *internal.Transcript {
	if n <= 0 || len(t.Messages) <= n {
		return t
	}
	trimmed := *t
	trimmed.Messages = t.Messages[len(t.Messages)-n:]
	return &trimmed
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "l", 0, "Show only the last N messages")
	showCmd.Flags().BoolVar(&showCode, "code", false, "Print only the latest strategy code")
	showCmd.Flags().BoolVar(&showComposite, "composite", false, "Print only the composite strategy")
	showCmd.Flags().BoolVar(&showEvents, "events", false, "Print the recorded stream events as JSONL")
}
